package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileStore keeps the alert state as a small JSON document on local disk.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger.With().Str("component", "state_file").Str("path", path).Logger()}
}

// Load reads the state file, falling back to the default on any error.
func (s *FileStore) Load(ctx context.Context) AlertState {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info().Msg("state file not found; using default state")
		} else {
			s.logger.Warn().Err(err).Msg("read state file failed; using default state")
		}
		return DefaultState()
	}

	var state AlertState
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Warn().Err(err).Msg("decode state file failed; using default state")
		return DefaultState()
	}
	return state
}

// Save writes the state atomically: a temp file in the same directory is renamed over the target.
func (s *FileStore) Save(ctx context.Context, state AlertState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// TryLock takes an exclusive advisory lock on "<path>.lock" without blocking.
func (s *FileStore) TryLock(ctx context.Context) (func(), bool, error) {
	lockPath := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, false, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open lock file: %w", err)
	}

	acquired, err := tryLockFile(f)
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("lock state file: %w", err)
	}
	if !acquired {
		f.Close()
		return nil, false, nil
	}

	unlock := func() {
		if err := unlockFile(f); err != nil {
			s.logger.Warn().Err(err).Msg("release state lock failed")
		}
		f.Close()
	}
	return unlock, true, nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

var (
	_ StateStore = (*FileStore)(nil)
	_ Locker     = (*FileStore)(nil)
)
