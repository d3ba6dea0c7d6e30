package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const localCleanupInterval = 10 * time.Minute

// LocalStore keeps entries in process memory. It serves single-instance
// deployments that run without Redis.
type LocalStore struct {
	items *gocache.Cache
}

func NewLocalStore(defaultTTL time.Duration) *LocalStore {
	return &LocalStore{items: gocache.New(defaultTTL, localCleanupInterval)}
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return v.([]byte), nil
}

// Set stores a copy of value; a non-positive ttl uses the store default.
func (s *LocalStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (s *LocalStore) Len() int {
	return s.items.ItemCount()
}
