package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/identity"
	"github.com/accordsai/negotiation/pkg/ledger"
	"github.com/accordsai/negotiation/pkg/signature"
)

// Local is an in-process Network. Nodes attach their Handler under their
// party key; dialing a party calls its handler directly.
type Local struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewLocal() *Local {
	return &Local{handlers: map[string]Handler{}}
}

func (l *Local) Attach(p identity.Party, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[p.Key] = h
}

func (l *Local) Detach(p identity.Party) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, p.Key)
}

func (l *Local) Dial(ctx context.Context, self *identity.Signer, to identity.Party) (Counterparty, error) {
	l.mu.RLock()
	h, ok := l.handlers[to.Key]
	l.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("peer", to.String())
	}
	return &localCounterparty{from: self.Party, to: to, h: h}, nil
}

type localCounterparty struct {
	from identity.Party
	to   identity.Party
	h    Handler
}

func (c *localCounterparty) Party() identity.Party { return c.to }

// call runs fn on its own goroutine so a handler that never returns still
// lets the caller's context end the round-trip.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("peer round-trip: %w", ctx.Err())
	}
}

func (c *localCounterparty) RequestSignature(ctx context.Context, tx ledger.Transaction) (signature.Envelope, error) {
	return call(ctx, func() (signature.Envelope, error) { return c.h.HandleSign(ctx, c.from, tx) })
}

func (c *localCounterparty) ExchangeReveal(ctx context.Context, r Reveal) (Reveal, error) {
	return call(ctx, func() (Reveal, error) { return c.h.HandleReveal(ctx, c.from, r) })
}
