// Package idempotency replays the stored response of an operator request
// that is retried with the same Idempotency-Key.
package idempotency

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
)

// Header carries the caller's idempotency key.
const Header = "Idempotency-Key"

type Record struct {
	Status int
	Body   map[string]any
}

type Store interface {
	GetIdempotencyRecord(ctx context.Context, key, endpoint string) (Record, bool, error)
	SaveIdempotencyRecord(ctx context.Context, key, endpoint string, rec Record) error
}

func Replay(ctx context.Context, st Store, key, endpoint string) (Record, bool, error) {
	if key == "" {
		return Record{}, false, nil
	}
	return st.GetIdempotencyRecord(ctx, key, endpoint)
}

func Save(ctx context.Context, st Store, key, endpoint string, status int, body map[string]any) error {
	if key == "" {
		return nil
	}
	return st.SaveIdempotencyRecord(ctx, key, endpoint, Record{Status: status, Body: body})
}

// MemoryStore keeps the most recent records in a bounded LRU.
type MemoryStore struct {
	cache *lru.Cache
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c}, nil
}

func cacheKey(key, endpoint string) string { return endpoint + "\x00" + key }

func (m *MemoryStore) GetIdempotencyRecord(ctx context.Context, key, endpoint string) (Record, bool, error) {
	v, ok := m.cache.Get(cacheKey(key, endpoint))
	if !ok {
		return Record{}, false, nil
	}
	return v.(Record), true, nil
}

func (m *MemoryStore) SaveIdempotencyRecord(ctx context.Context, key, endpoint string, rec Record) error {
	m.cache.Add(cacheKey(key, endpoint), rec)
	return nil
}
