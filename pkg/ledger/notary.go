package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/identity"
)

// head is a compare-and-set register holding the unconsumed state of one
// negotiation. Registers of different negotiations never contend.
type head struct {
	mut     sync.Mutex
	ver     int64
	current *StateAndRef
	history []FinalizedTransaction
}

// compareAndSet installs next if the register still holds old (nil for a
// negotiation that does not exist yet). It returns the actual head.
func (h *head) compareAndSet(old *StateAndRef, next StateAndRef, ftx FinalizedTransaction) (int64, *StateAndRef, bool) {
	h.mut.Lock()
	defer h.mut.Unlock()

	if (old == nil) != (h.current == nil) {
		return h.ver, h.current, false
	}
	if old != nil && !old.Same(*h.current) {
		return h.ver, h.current, false
	}
	h.ver++
	h.current = &next
	h.history = append(h.history, ftx)
	return h.ver, h.current, true
}

func (h *head) snapshot() (*StateAndRef, []FinalizedTransaction) {
	h.mut.Lock()
	defer h.mut.Unlock()
	hist := make([]FinalizedTransaction, len(h.history))
	copy(hist, h.history)
	return h.current, hist
}

// Notary is the in-memory reference substrate. It verifies, checks
// signatures and finalizes transactions one negotiation head at a time.
type Notary struct {
	*identity.MemoryDirectory

	verify VerifyFunc
	now    func() time.Time

	mu    sync.Mutex
	heads map[string]*head
	seq   int64
}

// NewNotary returns a Notary that runs verify on every submission.
func NewNotary(verify VerifyFunc, parties ...identity.Party) *Notary {
	return &Notary{
		MemoryDirectory: identity.NewMemoryDirectory(parties...),
		verify:          verify,
		now:             time.Now,
		heads:           map[string]*head{},
	}
}

func (n *Notary) register(id string, create bool) *head {
	n.mu.Lock()
	defer n.mu.Unlock()
	h, ok := n.heads[id]
	if !ok && create {
		h = &head{}
		n.heads[id] = h
	}
	return h
}

func (n *Notary) nextSeq() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	return n.seq
}

func (n *Notary) CurrentState(ctx context.Context, id string) (StateAndRef, error) {
	if err := ctx.Err(); err != nil {
		return StateAndRef{}, err
	}
	h := n.register(id, false)
	if h == nil {
		return StateAndRef{}, errors.NewNotFoundError("ledger state", id)
	}
	cur, _ := h.snapshot()
	if cur == nil {
		return StateAndRef{}, errors.NewNotFoundError("ledger state", id)
	}
	return *cur, nil
}

func (n *Notary) History(ctx context.Context, id string) ([]FinalizedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := n.register(id, false)
	if h == nil {
		return nil, errors.NewNotFoundError("ledger state", id)
	}
	_, hist := h.snapshot()
	if len(hist) == 0 {
		return nil, errors.NewNotFoundError("ledger state", id)
	}
	return hist, nil
}

func (n *Notary) Submit(ctx context.Context, tx Transaction) (FinalizedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return FinalizedTransaction{}, err
	}
	id := tx.NegotiationID()
	txID := tx.ID()
	if len(tx.Outputs) != 1 || len(tx.Inputs) > 1 {
		return FinalizedTransaction{}, errors.NewSubmissionError(
			fmt.Sprintf("expected one output and at most one input, got %d/%d", len(tx.Outputs), len(tx.Inputs)),
			errors.ErrInvalidInput).WithNegotiation(id).WithTx(txID).WithRetryable(false)
	}
	if n.verify != nil {
		if err := n.verify(tx); err != nil {
			return FinalizedTransaction{}, err
		}
	}
	if err := tx.VerifySignatures(); err != nil {
		return FinalizedTransaction{}, errors.NewSubmissionError("signature check failed", err).
			WithNegotiation(id).WithTx(txID).WithRetryable(false)
	}

	var old *StateAndRef
	if len(tx.Inputs) == 1 {
		in := tx.Inputs[0]
		old = &in
	}
	h := n.register(id, old == nil)
	if h == nil {
		return FinalizedTransaction{}, errors.NewSubmissionError("input refers to an unknown negotiation", errors.ErrConflict).
			WithNegotiation(id).WithTx(txID)
	}
	// Last chance to back out; after the swap the transition is final.
	if err := ctx.Err(); err != nil {
		return FinalizedTransaction{}, err
	}
	ftx := FinalizedTransaction{Tx: tx, Sequence: n.nextSeq(), FinalizedAt: n.now().UTC()}
	if _, actual, ok := h.compareAndSet(old, tx.OutputRef(0), ftx); !ok {
		msg := "input already consumed"
		if old == nil {
			msg = "negotiation already exists"
		} else if actual == nil {
			msg = "negotiation head missing"
		}
		return FinalizedTransaction{}, errors.NewSubmissionError(msg, errors.ErrConflict).
			WithNegotiation(id).WithTx(txID)
	}
	return ftx, nil
}

var _ Substrate = (*Notary)(nil)
