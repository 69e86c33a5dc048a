package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	createAlertStateSQL = `CREATE TABLE IF NOT EXISTS alert_state (
        market_key  TEXT        NOT NULL,
        chain_id    INTEGER     NOT NULL,
        was_above   BOOLEAN     NOT NULL DEFAULT FALSE,
        updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (market_key, chain_id)
    );`

	selectAlertStateSQL = `SELECT was_above
    FROM alert_state
    WHERE market_key = $1
      AND chain_id = $2;`

	upsertAlertStateSQL = `INSERT INTO alert_state (
        market_key,
        chain_id,
        was_above,
        updated_at
    ) VALUES (
        $1,$2,$3,now()
    )
    ON CONFLICT (market_key, chain_id) DO UPDATE
    SET was_above  = EXCLUDED.was_above,
        updated_at = EXCLUDED.updated_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresOptions identify the state row and the advisory lock.
// A zero LockKey derives one from MarketKey and ChainID.
type PostgresOptions struct {
	MarketKey string
	ChainID   int
	LockKey   int64
}

// AdvisoryLockKey maps a market and chain onto a postgres advisory lock key,
// so watchers of different markets sharing one database never block each other.
func AdvisoryLockKey(marketKey string, chainID int) int64 {
	return int64(xxhash.Sum64String(strconv.Itoa(chainID) + ":" + marketKey))
}

// PostgresStore keeps one alert_state row per market and chain.
type PostgresStore struct {
	pool   *pgxpool.Pool
	opts   PostgresOptions
	logger zerolog.Logger
}

// NewPostgresStore wires a pgx pool into a state store.
func NewPostgresStore(pool *pgxpool.Pool, opts PostgresOptions, logger zerolog.Logger) *PostgresStore {
	if opts.LockKey == 0 {
		opts.LockKey = AdvisoryLockKey(opts.MarketKey, opts.ChainID)
	}
	return &PostgresStore{
		pool:   pool,
		opts:   opts,
		logger: logger.With().Str("component", "state_postgres").Str("market", opts.MarketKey).Logger(),
	}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the alert_state table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createAlertStateSQL); err != nil {
		return fmt.Errorf("create alert_state table: %w", err)
	}
	return nil
}

// Load reads the market row; no row or any error yields the default state.
func (s *PostgresStore) Load(ctx context.Context) AlertState {
	pool, err := s.getPool()
	if err != nil {
		s.logger.Warn().Err(err).Msg("load state failed; using default state")
		return DefaultState()
	}

	var state AlertState
	err = pool.QueryRow(ctx, selectAlertStateSQL, s.opts.MarketKey, s.opts.ChainID).Scan(&state.WasAbove)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Info().Msg("no stored state; using default state")
		} else {
			s.logger.Warn().Err(err).Msg("load state failed; using default state")
		}
		return DefaultState()
	}
	return state
}

// Save upserts the market row.
func (s *PostgresStore) Save(ctx context.Context, state AlertState) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, upsertAlertStateSQL, s.opts.MarketKey, s.opts.ChainID, state.WasAbove); err != nil {
		return fmt.Errorf("upsert alert state: %w", err)
	}
	return nil
}

// TryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryLock(ctx context.Context) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, s.opts.LockKey).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, s.opts.LockKey); err != nil {
			s.logger.Warn().Err(err).Msg("advisory unlock failed")
		}
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ StateStore = (*PostgresStore)(nil)
	_ Locker     = (*PostgresStore)(nil)
)
