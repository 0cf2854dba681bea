package cache

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pricewatch/internal/clock"
	"github.com/smallbiznis/pricewatch/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(NewResultStore),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Clock     clock.Clock
	Log       *zap.Logger
}

// NewResultStore picks the backing store from CACHE_DRIVER.
func NewResultStore(p Params) ResultStore {
	log := p.Log.Named("cache")
	cfg := p.Config.Cache

	if cfg.Driver != config.CacheDriverRedis {
		log.Info("using in-memory result cache", zap.Duration("ttl", cfg.TTL))
		return NewMemoryResultStore(p.Clock)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis result cache unreachable, runs will recompute", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	log.Info("using redis result cache", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.TTL))
	return NewRedisResultStore(client, cfg.KeyPrefix)
}
