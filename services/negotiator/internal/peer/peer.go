// Package peer carries the party-to-party half of the protocol: asking the
// counterparty to co-sign a transaction and exchanging revealed values.
package peer

import (
	"context"

	"github.com/accordsai/negotiation/pkg/domain"
	"github.com/accordsai/negotiation/pkg/identity"
	"github.com/accordsai/negotiation/pkg/ledger"
	"github.com/accordsai/negotiation/pkg/signature"
)

// Reveal discloses one side's private value for a negotiation.
type Reveal struct {
	NegotiationID string        `json:"negotiation_id"`
	Role          domain.Role   `json:"role"`
	Value         domain.Amount `json:"value"`
}

// Handler is the responder side a node exposes to its counterparties.
// from has already been authenticated by the transport.
type Handler interface {
	HandleSign(ctx context.Context, from identity.Party, tx ledger.Transaction) (signature.Envelope, error)
	HandleReveal(ctx context.Context, from identity.Party, r Reveal) (Reveal, error)
}

// Counterparty is the initiator's view of the other party. Each call is
// one blocking request/response round-trip.
type Counterparty interface {
	Party() identity.Party
	RequestSignature(ctx context.Context, tx ledger.Transaction) (signature.Envelope, error)
	ExchangeReveal(ctx context.Context, r Reveal) (Reveal, error)
}

// Network connects a local signer to a counterparty.
type Network interface {
	Dial(ctx context.Context, self *identity.Signer, to identity.Party) (Counterparty, error)
}
