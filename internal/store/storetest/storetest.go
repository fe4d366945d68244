// Package storetest opens throwaway SQLite stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/catalogsync/internal/store"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// New returns a migrated store backed by a SQLite file in a temporary
// directory, driven by the returned clock. The store is closed when the
// test ends.
func New(t testing.TB) (*store.Store, *Clock) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := store.Open(context.Background(), "sqlite:"+path, store.PoolOptions{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)

	clock := &Clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.SetClock(clock.Now)

	if _, err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s, clock
}
