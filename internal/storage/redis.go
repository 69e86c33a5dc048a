package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOptions identify the state key and tune the lock.
type RedisOptions struct {
	KeyPrefix string
	MarketKey string
	ChainID   int
	LockTTL   time.Duration
}

// RedisStore keeps the alert state as a JSON string value.
type RedisStore struct {
	client *redis.Client
	opts   RedisOptions
	logger zerolog.Logger
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client *redis.Client, opts RedisOptions, logger zerolog.Logger) *RedisStore {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "ratealert"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Minute
	}
	return &RedisStore{
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", "state_redis").Str("market", opts.MarketKey).Logger(),
	}
}

func (s *RedisStore) stateKey() string {
	return fmt.Sprintf("%s:state:%d:%s", s.opts.KeyPrefix, s.opts.ChainID, s.opts.MarketKey)
}

func (s *RedisStore) lockKey() string {
	return s.stateKey() + ":lock"
}

// Load reads the state key; a missing key or any error yields the default state.
func (s *RedisStore) Load(ctx context.Context) AlertState {
	if s.client == nil {
		s.logger.Warn().Err(ErrNotConfigured).Msg("load state failed; using default state")
		return DefaultState()
	}

	raw, err := s.client.Get(ctx, s.stateKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.logger.Info().Msg("no stored state; using default state")
		} else {
			s.logger.Warn().Err(err).Msg("load state failed; using default state")
		}
		return DefaultState()
	}

	var state AlertState
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Warn().Err(err).Msg("decode stored state failed; using default state")
		return DefaultState()
	}
	return state
}

// Save overwrites the state key without expiry.
func (s *RedisStore) Save(ctx context.Context, state AlertState) error {
	if s.client == nil {
		return ErrNotConfigured
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, s.stateKey(), payload, 0).Err(); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// TryLock sets the lock key with NX and a TTL so a crashed run cannot hold it forever.
func (s *RedisStore) TryLock(ctx context.Context) (func(), bool, error) {
	if s.client == nil {
		return nil, false, ErrNotConfigured
	}

	token := uuid.NewString()
	acquired, err := s.client.SetNX(ctx, s.lockKey(), token, s.opts.LockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire redis lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// only delete the lock if it still carries our token
		if err := releaseLockScript.Run(ctxUnlock, s.client, []string{s.lockKey()}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("release redis lock failed")
		}
	}
	return unlock, true, nil
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// Close closes the redis client.
func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

var (
	_ StateStore = (*RedisStore)(nil)
	_ Locker     = (*RedisStore)(nil)
)
