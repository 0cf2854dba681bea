package migration

import (
	"strings"

	"github.com/smallbiznis/pricewatch/internal/config"
	purchasingdomain "github.com/smallbiznis/pricewatch/internal/purchasing/domain"
	resolutiondomain "github.com/smallbiznis/pricewatch/internal/resolution/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !strings.EqualFold(cfg.DBType, "postgres") {
			log.Info("running gorm auto-migrate", zap.String("dialect", cfg.DBType))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		version, err := RunMigrations(sqlDB)
		if err != nil {
			return err
		}
		log.Info("schema up to date", zap.Uint("version", version), zap.String("table", SchemaTable))
		return nil
	}),
)

// AutoMigrate creates the schema from the gorm models on dialects without SQL migrations.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&purchasingdomain.InvoiceLine{},
		&purchasingdomain.Agreement{},
		&resolutiondomain.Resolution{},
	)
}
