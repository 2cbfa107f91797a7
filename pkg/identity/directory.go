package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/accordsai/negotiation/pkg/errors"
)

// Directory resolves a party reference (a well-known name or an agent id)
// to the registered Party.
type Directory interface {
	ResolveWellKnown(ctx context.Context, ref string) (Party, error)
}

// Registry is a Directory that also accepts registrations. A name, once
// bound, keeps its key.
type Registry interface {
	Directory
	Register(ctx context.Context, reg Registration) error
}

// MemoryDirectory is an in-process Registry. It is safe for concurrent use.
type MemoryDirectory struct {
	mu     sync.RWMutex
	byName map[string]Party
	byKey  map[string]Party
}

// NewMemoryDirectory returns a directory seeded with trusted parties. It
// panics on a malformed or conflicting seed.
func NewMemoryDirectory(parties ...Party) *MemoryDirectory {
	d := &MemoryDirectory{byName: map[string]Party{}, byKey: map[string]Party{}}
	for _, p := range parties {
		if err := d.bind(p); err != nil {
			panic(err)
		}
	}
	return d
}

// Register binds reg.Party after checking its proof of possession.
// Registering the same party again is a no-op.
func (d *MemoryDirectory) Register(ctx context.Context, reg Registration) error {
	if err := validParty(reg.Party); err != nil {
		return err
	}
	if err := reg.Verify(); err != nil {
		return err
	}
	return d.bind(reg.Party)
}

func validParty(p Party) error {
	if !IsValidAgentID(p.Key) {
		return errors.Join(errors.ErrInvalidInput, errors.New("party key must be a valid agent id"))
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.Join(errors.ErrInvalidInput, errors.New("party name is required"))
	}
	return nil
}

func (d *MemoryDirectory) bind(p Party) error {
	if err := validParty(p); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.byName[p.Name]; ok {
		if old.Key == p.Key {
			return nil
		}
		return fmt.Errorf("%w: %s is already registered to another key", errors.ErrConflict, p.Name)
	}
	if old, ok := d.byKey[p.Key]; ok {
		return fmt.Errorf("%w: key is already registered as %s", errors.ErrConflict, old.Name)
	}
	d.byName[p.Name] = p
	d.byKey[p.Key] = p
	return nil
}

func (d *MemoryDirectory) ResolveWellKnown(ctx context.Context, ref string) (Party, error) {
	ref = strings.TrimSpace(ref)
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.byName[ref]; ok {
		return p, nil
	}
	if p, ok := d.byKey[ref]; ok {
		return p, nil
	}
	return Party{}, errors.NewNotFoundError("party", ref)
}

// CachingDirectory memoizes successful resolutions of an upstream Directory
// in a bounded LRU cache. Misses are not cached.
type CachingDirectory struct {
	upstream Directory
	cache    *lru.Cache
}

func NewCachingDirectory(upstream Directory, size int) (*CachingDirectory, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachingDirectory{upstream: upstream, cache: c}, nil
}

func (d *CachingDirectory) ResolveWellKnown(ctx context.Context, ref string) (Party, error) {
	if v, ok := d.cache.Get(ref); ok {
		return v.(Party), nil
	}
	p, err := d.upstream.ResolveWellKnown(ctx, ref)
	if err != nil {
		return Party{}, err
	}
	d.cache.Add(ref, p)
	return p, nil
}

// Forget drops a cached entry.
func (d *CachingDirectory) Forget(ref string) {
	d.cache.Remove(ref)
}
