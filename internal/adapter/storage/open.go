package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-ledger/internal/config"
	"github.com/rl1809/inventory-ledger/internal/logger"
	"github.com/rl1809/inventory-ledger/internal/port"
)

// OpenDocumentStore connects the store selected by cfg.Store.Driver and
// returns it with a function releasing its connections.
func OpenDocumentStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (port.DocumentStore, func() error, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	ctx = logg.WithField(ctx, "driver", cfg.Store.Driver)

	switch cfg.Store.Driver {
	case config.StoreDriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}

		store, err := NewMySQLStore(db, cfg.Store.Collection, cfg.Store.TxMaxAttempts)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if cfg.Store.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				db.Close()
				return nil, nil, err
			}
			logg.Info(ctx, "ledger table ensured")
		}
		logg.Info(ctx, "connected to mysql")
		return store, db.Close, nil

	case config.StoreDriverRedis:
		opts, err := redisOptions(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		logg.Info(ctx, "connected to redis")
		return NewRedisStore(rdb, cfg.Store.Collection, cfg.Store.TxMaxAttempts), rdb.Close, nil

	case config.StoreDriverMemory:
		logg.Warn(ctx, "using in-memory ledger store; data is lost on exit")
		return NewMemoryStore(cfg.Store.TxMaxAttempts), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if cfg.PoolSize > 0 {
			opts.PoolSize = cfg.PoolSize
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, nil
}
