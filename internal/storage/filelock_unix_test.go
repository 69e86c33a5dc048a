//go:build unix

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestFileStoreTryLockExclusive(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	first := NewFileStore(path, zerolog.Nop())
	second := NewFileStore(path, zerolog.Nop())

	unlock, ok, err := first.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("首次加锁应成功: ok=%v err=%v", ok, err)
	}

	if _, ok, err := second.TryLock(ctx); err != nil || ok {
		t.Fatalf("锁被占用时不应成功: ok=%v err=%v", ok, err)
	}

	unlock()

	unlock2, ok, err := second.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("释放后应可重新加锁: ok=%v err=%v", ok, err)
	}
	unlock2()
}
