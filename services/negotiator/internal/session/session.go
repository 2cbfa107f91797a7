package session

import (
	"fmt"
	"sync"

	"github.com/accordsai/negotiation/pkg/domain"
	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/identity"
	"github.com/accordsai/negotiation/pkg/ledger"
)

type Phase string

const (
	PhaseInitial       Phase = "Initial"
	PhaseProposed      Phase = "Proposed"
	PhaseCommittedSelf Phase = "CommittedSelf"
	PhaseCommittedBoth Phase = "CommittedBoth"
	PhaseRevealedSelf  Phase = "RevealedSelf"
	PhaseRevealedBoth  Phase = "RevealedBoth"
	PhaseReconciled    Phase = "Reconciled"
	PhaseAborted       Phase = "Aborted"
)

// Session is this node's view of one negotiation. Committed and
// reconciled progress lives on the ledger; the session only adds what the
// ledger cannot know: reveals and the abort cause.
type Session struct {
	id           string
	role         domain.Role
	counterparty identity.Party

	mu            sync.Mutex
	revealedSelf  bool
	revealedOther bool
	cause         error
}

func newSession(id string, role domain.Role, counterparty identity.Party) *Session {
	return &Session{id: id, role: role, counterparty: counterparty}
}

// abort records err as the abort cause. It reports false when the session
// had already been aborted.
func (s *Session) abort(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause != nil {
		return false
	}
	s.cause = err
	return true
}

// check returns ErrSessionAborted, carrying the original cause, once the
// session is aborted.
func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrSessionAborted, s.id, s.cause)
	}
	return nil
}

func (s *Session) markRevealed(self, other bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revealedSelf = s.revealedSelf || self
	s.revealedOther = s.revealedOther || other
}

// Snapshot is the operator's view of a session.
type Snapshot struct {
	NegotiationID        string         `json:"negotiation_id"`
	Role                 domain.Role    `json:"role"`
	Counterparty         identity.Party `json:"counterparty"`
	Phase                Phase          `json:"phase"`
	StateKind            ledger.Kind    `json:"state_kind,omitempty"`
	BuyerCommitted       bool           `json:"buyer_committed"`
	SellerCommitted      bool           `json:"seller_committed"`
	SelfRevealed         bool           `json:"self_revealed"`
	CounterpartyRevealed bool           `json:"counterparty_revealed"`
	AbortReason          string         `json:"abort_reason,omitempty"`
}

// snapshot combines the session with the ledger head (nil when the
// negotiation has not been finalized yet).
func (s *Session) snapshot(head *ledger.State) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		NegotiationID:        s.id,
		Role:                 s.role,
		Counterparty:         s.counterparty,
		SelfRevealed:         s.revealedSelf,
		CounterpartyRevealed: s.revealedOther,
	}
	if head != nil {
		snap.StateKind = head.Kind
		if head.Kind == ledger.KindProposal {
			snap.BuyerCommitted = head.Proposal.BuyerCommitment != ""
			snap.SellerCommitted = head.Proposal.SellerCommitment != ""
		} else {
			snap.BuyerCommitted, snap.SellerCommitted = true, true
		}
	}

	mine, theirs := snap.BuyerCommitted, snap.SellerCommitted
	if s.role == domain.Seller {
		mine, theirs = theirs, mine
	}
	switch {
	case s.cause != nil:
		snap.Phase = PhaseAborted
		snap.AbortReason = s.cause.Error()
	case head == nil:
		snap.Phase = PhaseInitial
	case head.Terminal():
		snap.Phase = PhaseReconciled
	case s.revealedOther:
		snap.Phase = PhaseRevealedBoth
	case s.revealedSelf:
		snap.Phase = PhaseRevealedSelf
	case mine && theirs:
		snap.Phase = PhaseCommittedBoth
	case mine:
		snap.Phase = PhaseCommittedSelf
	default:
		snap.Phase = PhaseProposed
	}
	return snap
}
