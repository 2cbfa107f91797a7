package ledger

import (
	"context"

	"github.com/accordsai/negotiation/pkg/identity"
)

// Ledger is the substrate a negotiation runs on. It orders transitions
// per negotiation id and finalizes each one atomically.
type Ledger interface {
	// CurrentState returns the unconsumed head for id, or a NotFoundError.
	CurrentState(ctx context.Context, id string) (StateAndRef, error)
	// Submit finalizes a fully signed transaction. A head that moved since
	// the inputs were read fails with a retryable SubmissionError.
	Submit(ctx context.Context, tx Transaction) (FinalizedTransaction, error)
	// History lists the finalized transactions of id in order.
	History(ctx context.Context, id string) ([]FinalizedTransaction, error)
}

// Substrate is a Ledger that also resolves and registers identities.
type Substrate interface {
	Ledger
	identity.Registry
}

// VerifyFunc checks a transaction against the contract rules.
type VerifyFunc func(tx Transaction) error
