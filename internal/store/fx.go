package store

import (
	"context"
	"fmt"

	"github.com/souqline/entitlements/internal/config"
	"github.com/souqline/entitlements/internal/store/gormstore"
	"github.com/souqline/entitlements/internal/store/memstore"
	"github.com/souqline/entitlements/internal/store/redisstore"
	"github.com/souqline/entitlements/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// Provide builds the durable store backend selected by configuration.
func Provide(p Params) (Store, error) {
	log := p.Log.Named("store")

	switch p.Config.StoreBackend {
	case config.StoreBackendRedis:
		client := redisstore.NewClient(p.Config)
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				_ = ctx
				return client.Close()
			},
		})
		log.Info("using redis state store", zap.String("addr", p.Config.RedisAddr))
		return redisstore.New(client)

	case config.StoreBackendPostgres, config.StoreBackendSQLite:
		gdb, err := db.Open(db.Config{
			Type:            p.Config.StoreBackend,
			Host:            p.Config.DBHost,
			Port:            p.Config.DBPort,
			Name:            p.Config.DBName,
			User:            p.Config.DBUser,
			Password:        p.Config.DBPassword,
			SSLMode:         p.Config.DBSSLMode,
			MaxIdleConn:     p.Config.DBMaxIdleConn,
			MaxOpenConn:     p.Config.DBMaxOpenConn,
			ConnMaxLifetime: p.Config.DBConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open state store db: %w", err)
		}
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				_ = ctx
				sqlDB, err := gdb.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		})
		log.Info("using relational state store", zap.String("type", p.Config.StoreBackend))
		return gormstore.New(gdb)

	default:
		log.Warn("using in-memory state store; entity state will not survive restarts")
		return memstore.New(), nil
	}
}

var Module = fx.Module("store",
	fx.Provide(Provide),
)
