package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/crmhub/internal/cache"
)

const (
	defaultRateWindow = time.Minute
	rateSweepInterval = time.Minute
)

// RateStore counts hits for a key inside a fixed window. It returns the
// count including this hit and the time left until the window resets.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

type rateWindow struct {
	hits    int
	resetAt time.Time
}

// localRateStore keeps windows in process memory. Expired windows are swept
// on the write path at most once per rateSweepInterval.
type localRateStore struct {
	mu        sync.Mutex
	windows   map[string]rateWindow
	now       func() time.Time
	nextSweep time.Time
}

// NewMemoryRateStore returns a RateStore private to this process.
func NewMemoryRateStore() RateStore {
	return newLocalRateStore(time.Now)
}

func newLocalRateStore(now func() time.Time) *localRateStore {
	return &localRateStore{windows: make(map[string]rateWindow), now: now}
}

func (s *localRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = defaultRateWindow
	}
	at := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(at)
	w, ok := s.windows[key]
	if !ok || !at.Before(w.resetAt) {
		w = rateWindow{resetAt: at.Add(window)}
	}
	w.hits++
	s.windows[key] = w
	return w.hits, w.resetAt.Sub(at), nil
}

func (s *localRateStore) sweep(at time.Time) {
	if at.Before(s.nextSweep) {
		return
	}
	for key, w := range s.windows {
		if !at.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
	s.nextSweep = at.Add(rateSweepInterval)
}

func (s *localRateStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// sharedRateStore delegates counting to a cache.Store so every API instance
// sees the same windows.
type sharedRateStore struct {
	backend cache.Store
}

// NewRedisRateStore counts through the Redis cache.
func NewRedisRateStore(store cache.Store) RateStore {
	return sharedRateStoreFor(store)
}

// NewDatabaseRateStore counts through the cache_entries table.
func NewDatabaseRateStore(store cache.Store) RateStore {
	return sharedRateStoreFor(store)
}

// A nil backend yields a nil RateStore, which RateLimit treats as disabled.
func sharedRateStoreFor(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return sharedRateStore{backend: store}
}

func (s sharedRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = defaultRateWindow
	}
	hits, ttl, err := s.backend.IncrementWithTTL(ctx, key, window)
	if err != nil {
		return 0, 0, err
	}
	return int(hits), ttl, nil
}
