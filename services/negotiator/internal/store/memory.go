package store

import (
	"context"
	"sync"

	"github.com/accordsai/negotiation/pkg/domain"
	"github.com/accordsai/negotiation/pkg/keylock"
)

// Memory is an in-process Store for tests and single-run demos.
type Memory struct {
	locks *keylock.Table

	mu     sync.RWMutex
	values map[string]domain.Amount
}

func NewMemory() *Memory {
	return &Memory{locks: keylock.New(), values: map[string]domain.Amount{}}
}

func (m *Memory) Add(ctx context.Context, id string, role domain.Role, value domain.Amount) error {
	canon, err := normalize(id, role, value)
	if err != nil {
		return err
	}
	unlock := m.locks.Lock(key(id, role))
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.put(key(id, role), canon)
	return nil
}

func (m *Memory) Update(ctx context.Context, id string, role domain.Role, value domain.Amount) error {
	canon, err := normalize(id, role, value)
	if err != nil {
		return err
	}
	k := key(id, role)
	unlock := m.locks.Lock(k)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.get(k); !ok {
		return notFound(id, role)
	}
	m.put(k, canon)
	return nil
}

func (m *Memory) Query(ctx context.Context, id string, role domain.Role) (domain.Amount, error) {
	if err := checkKey(id, role); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, ok := m.get(key(id, role))
	if !ok {
		return "", notFound(id, role)
	}
	return v, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) get(k string) (domain.Amount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[k]
	return v, ok
}

func (m *Memory) put(k string, v domain.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[k] = v
}
