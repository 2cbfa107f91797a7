// Package ledger holds the shared-ledger data model: the states a
// negotiation moves through, the transactions that link them, and the
// substrate interface parties submit those transactions to.
package ledger

import (
	"github.com/accordsai/negotiation/pkg/canonhash"
	"github.com/accordsai/negotiation/pkg/domain"
	"github.com/accordsai/negotiation/pkg/identity"
)

// Kind discriminates the State union.
type Kind string

const (
	KindProposal Kind = "proposal"
	KindMismatch Kind = "mismatch"
	KindTrade    Kind = "trade"
)

// Proposal is the live record of a negotiation. A commitment is empty
// until the side it belongs to has sealed its value.
type Proposal struct {
	ID               string         `json:"id"`
	Buyer            identity.Party `json:"buyer"`
	Seller           identity.Party `json:"seller"`
	Proposer         identity.Party `json:"proposer"`
	Proposee         identity.Party `json:"proposee"`
	BuyerCommitment  string         `json:"buyer_commitment,omitempty"`
	SellerCommitment string         `json:"seller_commitment,omitempty"`
}

func (p Proposal) Participants() []identity.Party {
	return []identity.Party{p.Proposer, p.Proposee}
}

func (p Proposal) PartyFor(r domain.Role) identity.Party {
	if r == domain.Buyer {
		return p.Buyer
	}
	return p.Seller
}

// RoleOf returns the role party plays in p.
func (p Proposal) RoleOf(party identity.Party) (domain.Role, bool) {
	switch {
	case p.Buyer.Equal(party):
		return domain.Buyer, true
	case p.Seller.Equal(party):
		return domain.Seller, true
	}
	return "", false
}

func (p Proposal) CommitmentFor(r domain.Role) string {
	if r == domain.Buyer {
		return p.BuyerCommitment
	}
	return p.SellerCommitment
}

// WithCommitment returns a copy of p with r's commitment set to c.
func (p Proposal) WithCommitment(r domain.Role, c string) Proposal {
	if r == domain.Buyer {
		p.BuyerCommitment = c
	} else {
		p.SellerCommitment = c
	}
	return p
}

func (p Proposal) BothCommitted() bool {
	return p.BuyerCommitment != "" && p.SellerCommitment != ""
}

// Mismatch is the terminal record of a negotiation whose revealed values
// differ. Both values are disclosed.
type Mismatch struct {
	ID          string         `json:"id"`
	Buyer       identity.Party `json:"buyer"`
	Seller      identity.Party `json:"seller"`
	Proposer    identity.Party `json:"proposer"`
	Proposee    identity.Party `json:"proposee"`
	BuyerValue  domain.Amount  `json:"buyer_value"`
	SellerValue domain.Amount  `json:"seller_value"`
}

// Trade is the terminal record of a matched negotiation.
type Trade struct {
	ID          string         `json:"id"`
	Buyer       identity.Party `json:"buyer"`
	Seller      identity.Party `json:"seller"`
	AgreedValue domain.Amount  `json:"agreed_value"`
}

// State is one ledger record. Exactly the member named by Kind is set.
type State struct {
	Kind     Kind      `json:"kind"`
	Proposal *Proposal `json:"proposal,omitempty"`
	Mismatch *Mismatch `json:"mismatch,omitempty"`
	Trade    *Trade    `json:"trade,omitempty"`
}

func NewProposalState(p Proposal) State { return State{Kind: KindProposal, Proposal: &p} }

func NewMismatchState(m Mismatch) State { return State{Kind: KindMismatch, Mismatch: &m} }

func NewTradeState(t Trade) State { return State{Kind: KindTrade, Trade: &t} }

// WellFormed reports whether exactly the member named by Kind is set.
func (s State) WellFormed() bool {
	set := 0
	for _, ok := range []bool{s.Proposal != nil, s.Mismatch != nil, s.Trade != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return false
	}
	switch s.Kind {
	case KindProposal:
		return s.Proposal != nil
	case KindMismatch:
		return s.Mismatch != nil
	case KindTrade:
		return s.Trade != nil
	}
	return false
}

func (s State) Terminal() bool { return s.Kind == KindMismatch || s.Kind == KindTrade }

func (s State) NegotiationID() string {
	switch {
	case s.Kind == KindProposal && s.Proposal != nil:
		return s.Proposal.ID
	case s.Kind == KindMismatch && s.Mismatch != nil:
		return s.Mismatch.ID
	case s.Kind == KindTrade && s.Trade != nil:
		return s.Trade.ID
	}
	return ""
}

// Participants are the parties whose signatures a transaction consuming
// this state needs when it carries no command.
func (s State) Participants() []identity.Party {
	switch {
	case s.Kind == KindProposal && s.Proposal != nil:
		return s.Proposal.Participants()
	case s.Kind == KindMismatch && s.Mismatch != nil:
		return []identity.Party{s.Mismatch.Proposer, s.Mismatch.Proposee}
	case s.Kind == KindTrade && s.Trade != nil:
		return []identity.Party{s.Trade.Buyer, s.Trade.Seller}
	}
	return nil
}

// StateRef locates a state as output Index of transaction TxID.
type StateRef struct {
	TxID  string `json:"tx_id"`
	Index int    `json:"index"`
}

type StateAndRef struct {
	State State    `json:"state"`
	Ref   StateRef `json:"ref"`
}

// Same reports whether s and o name the same ledger output with the same
// content.
func (s StateAndRef) Same(o StateAndRef) bool {
	return s.Ref == o.Ref && s.State.Equal(o.State)
}

// Equal compares states by their canonical encoding.
func (s State) Equal(o State) bool {
	ha, _, errA := canonhash.CanonicalSHA256(s)
	hb, _, errB := canonhash.CanonicalSHA256(o)
	return errA == nil && errB == nil && ha == hb
}
