package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"morpho-rate-alerts/internal/config"
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Open builds the state store selected by state.backend.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (StateStore, error) {
	switch cfg.State.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.State.FilePath, logger), nil
	case config.BackendPostgres:
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(pool, PostgresOptions{
			MarketKey: cfg.Market.UniqueKey,
			ChainID:   cfg.Market.ChainID,
			LockKey:   cfg.Database.AdvisoryLockKey,
		}, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisStore(client, RedisOptions{
			KeyPrefix: cfg.Redis.KeyPrefix,
			MarketKey: cfg.Market.UniqueKey,
			ChainID:   cfg.Market.ChainID,
			LockTTL:   cfg.Redis.LockTTL,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}
