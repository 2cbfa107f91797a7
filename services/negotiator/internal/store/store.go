// Package store keeps a party's private negotiation values, one per
// (negotiation id, role). Values never leave the party except when they
// are revealed to the counterparty.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/accordsai/negotiation/pkg/config"
	"github.com/accordsai/negotiation/pkg/db"
	"github.com/accordsai/negotiation/pkg/domain"
	"github.com/accordsai/negotiation/pkg/errors"
)

// Store is the AttributeStore. Writers on the same key serialize; writers
// on different keys never contend.
type Store interface {
	// Add records value for (id, role), overwriting an orphaned row left by
	// an earlier attempt.
	Add(ctx context.Context, id string, role domain.Role, value domain.Amount) error
	// Update replaces an existing value and fails with NotFound otherwise.
	Update(ctx context.Context, id string, role domain.Role, value domain.Amount) error
	// Query returns the value for (id, role) or a NotFoundError.
	Query(ctx context.Context, id string, role domain.Role) (domain.Amount, error)
	Close() error
}

// PrivateValue is one stored row.
type PrivateValue struct {
	NegotiationID string        `json:"negotiation_id"`
	Role          domain.Role   `json:"role"`
	Value         domain.Amount `json:"value"`
}

func key(id string, role domain.Role) string { return id + "/" + string(role) }

func notFound(id string, role domain.Role) error {
	return errors.NewNotFoundError("private value", key(id, role))
}

// normalize validates the key and returns the canonical amount.
func normalize(id string, role domain.Role, value domain.Amount) (domain.Amount, error) {
	if err := checkKey(id, role); err != nil {
		return "", err
	}
	canon, err := domain.ParseAmount(string(value))
	if err != nil {
		return "", errors.Join(errors.ErrInvalidInput, err)
	}
	return canon, nil
}

func checkKey(id string, role domain.Role) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		return fmt.Errorf("%w: negotiation id %q", errors.ErrInvalidInput, id)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: role %q", errors.ErrInvalidInput, role)
	}
	return nil
}

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DSN, cfg.Pool)
		if err != nil {
			return nil, fmt.Errorf("connect store: %w", err)
		}
		s := NewPostgres(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure store schema: %w", err)
		}
		return s, nil
	case "leveldb":
		return OpenLevel(cfg.Path)
	}
	return nil, fmt.Errorf("%w: unknown store driver %q", errors.ErrInvalidInput, cfg.Driver)
}
