package kvstore

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps everything in process. Only suitable for a single
// instance; counters and registry entries are lost on restart.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, time.Minute)}
}

func (s *MemoryStore) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		// Add fails when a live entry exists, Increment fails when it has
		// expired in between; one of the two wins on every pass.
		if err := s.cache.Add(key, int64(1), ttl); err == nil {
			return 1, nil
		}
		if n, err := s.cache.IncrementInt64(key, 1); err == nil {
			return n, nil
		}
	}
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	v, found := s.cache.Get(key)
	if !found {
		return "", ErrNotFound
	}
	str, ok := v.(string)
	if !ok {
		return "", ErrNotFound
	}
	return str, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
