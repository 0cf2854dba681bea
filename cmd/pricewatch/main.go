package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricewatch/internal/cache"
	"github.com/smallbiznis/pricewatch/internal/clock"
	"github.com/smallbiznis/pricewatch/internal/config"
	"github.com/smallbiznis/pricewatch/internal/detection"
	"github.com/smallbiznis/pricewatch/internal/migration"
	"github.com/smallbiznis/pricewatch/internal/observability"
	"github.com/smallbiznis/pricewatch/internal/purchasing"
	"github.com/smallbiznis/pricewatch/internal/resolution"
	"github.com/smallbiznis/pricewatch/internal/server"
	"github.com/smallbiznis/pricewatch/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		cache.Module,

		// Functional Domains
		purchasing.Module,
		resolution.Module,
		detection.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
