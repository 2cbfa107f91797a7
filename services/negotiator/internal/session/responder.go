package session

import (
	"context"
	"fmt"

	"github.com/accordsai/negotiation/pkg/commitment"
	"github.com/accordsai/negotiation/pkg/contract"
	"github.com/accordsai/negotiation/pkg/domain"
	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/identity"
	"github.com/accordsai/negotiation/pkg/ledger"
	"github.com/accordsai/negotiation/pkg/signature"
	"github.com/accordsai/negotiation/services/negotiator/internal/peer"
)

var _ peer.Handler = (*Node)(nil)

func refuse(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errors.ErrRefused}, args...)...)
}

// HandleSign co-signs a transition proposed by from after checking it
// against the contract and against this node's own private value.
func (n *Node) HandleSign(ctx context.Context, from identity.Party, tx ledger.Transaction) (signature.Envelope, error) {
	if len(tx.Commands) == 0 {
		return n.signReconcile(ctx, from, tx)
	}
	if len(tx.Commands) == 1 {
		switch tx.Commands[0].Intent {
		case ledger.IntentPropose:
			return n.signPropose(ctx, from, tx)
		case ledger.IntentCommit, ledger.IntentModify:
			return n.signUpdate(ctx, from, tx)
		}
	}
	if err := contract.Verify(tx); err != nil {
		return signature.Envelope{}, err
	}
	return signature.Envelope{}, refuse("unsupported transition for %s", tx.NegotiationID())
}

func (n *Node) cosign(s *Session, tx ledger.Transaction, intent string) (signature.Envelope, error) {
	env, err := n.signer.Sign(tx.Unsigned(), ledger.SigningContext)
	if err != nil {
		return signature.Envelope{}, err
	}
	n.log.WithNegotiation(s.id).Info("co-signed transition", "intent", intent, "tx_id", tx.ID())
	return env, nil
}

func (n *Node) signPropose(ctx context.Context, from identity.Party, tx ledger.Transaction) (signature.Envelope, error) {
	if err := contract.Verify(tx); err != nil {
		return signature.Envelope{}, err
	}
	p := *tx.Outputs[0].Proposal
	if !p.Proposee.Equal(n.Party()) {
		return signature.Envelope{}, refuse("%s does not name this node as proposee", p.ID)
	}
	if !p.Proposer.Equal(from) {
		return signature.Envelope{}, refuse("%s is proposed by %s, not by the requester", p.ID, p.Proposer)
	}
	role, _ := p.RoleOf(n.Party())

	n.mu.Lock()
	s, exists := n.sessions[p.ID]
	if !exists {
		s = newSession(p.ID, role, from)
		n.sessions[p.ID] = s
	}
	n.mu.Unlock()
	if exists {
		if err := s.check(); err != nil {
			return signature.Envelope{}, err
		}
		if !s.counterparty.Equal(from) || s.role != role {
			return signature.Envelope{}, refuse("negotiation %s already exists with different parties", p.ID)
		}
	}
	return n.cosign(s, tx, string(ledger.IntentPropose))
}

// responderSession returns the live session of tx's negotiation, which
// must be run with from.
func (n *Node) responderSession(ctx context.Context, from identity.Party, tx ledger.Transaction) (*Session, error) {
	s, err := n.session(ctx, tx.NegotiationID())
	if err != nil {
		return nil, err
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	if !s.counterparty.Equal(from) {
		return nil, fmt.Errorf("%w: %s is not the counterparty of %s", errors.ErrUnauthorized, from, s.id)
	}
	return s, nil
}

// onHead refuses tx unless its single input is the current ledger head
// of s. The requester supplies the input, so it is never trusted.
func (n *Node) onHead(ctx context.Context, s *Session, tx ledger.Transaction) (ledger.Proposal, error) {
	head, err := n.ledger.CurrentState(ctx, s.id)
	if err != nil {
		return ledger.Proposal{}, err
	}
	if len(tx.Inputs) != 1 || !tx.Inputs[0].Same(head) {
		return ledger.Proposal{}, refuse("%s does not consume the current head of %s", tx.ID(), s.id)
	}
	if head.State.Kind != ledger.KindProposal || head.State.Proposal == nil {
		return ledger.Proposal{}, refuse("%s is already %s", s.id, head.State.Kind)
	}
	return *head.State.Proposal, nil
}

// sealsStored checks that c, this node's commitment on the ledger, still
// seals the value it stored for role.
func (n *Node) sealsStored(ctx context.Context, s *Session, role domain.Role, c string) error {
	v, err := n.store.Query(ctx, s.id, role)
	if err != nil {
		return err
	}
	if !commitment.VerifyAmount(v, c) {
		return n.fail(s, errors.NewIntegrityError("stored value does not match own commitment").
			WithNegotiation(s.id).WithRole(string(role)).WithDigests(c, commitment.SealAmount(v)))
	}
	return nil
}

// signUpdate handles Commit and Modify: the requester's side is the only
// one that may change and this node's commitment on the ledger head must
// survive unchanged and still seal its stored value.
func (n *Node) signUpdate(ctx context.Context, from identity.Party, tx ledger.Transaction) (signature.Envelope, error) {
	s, err := n.responderSession(ctx, from, tx)
	if err != nil {
		return signature.Envelope{}, err
	}
	intent := tx.Commands[0].Intent
	if err := contract.Verify(tx); err != nil {
		return signature.Envelope{}, n.fail(s, err)
	}
	in, err := n.onHead(ctx, s, tx)
	if err != nil {
		return signature.Envelope{}, err
	}
	out := *tx.Outputs[0].Proposal
	mine, theirs := s.role, s.role.Opposite()

	if out.CommitmentFor(mine) != in.CommitmentFor(mine) {
		return signature.Envelope{}, n.fail(s, refuse("%s would change this node's commitment", intent))
	}
	if out.CommitmentFor(theirs) == in.CommitmentFor(theirs) {
		return signature.Envelope{}, n.fail(s, refuse("%s does not change the requester's commitment", intent))
	}
	if intent == ledger.IntentModify && in.CommitmentFor(mine) != "" {
		return signature.Envelope{}, n.fail(s, refuse("modify after this node committed"))
	}
	if c := in.CommitmentFor(mine); c != "" {
		if err := n.sealsStored(ctx, s, mine, c); err != nil {
			return signature.Envelope{}, err
		}
	}
	return n.cosign(s, tx, string(intent))
}

// signReconcile recomputes the outcome from this node's copies of both
// values and refuses any other outcome.
func (n *Node) signReconcile(ctx context.Context, from identity.Party, tx ledger.Transaction) (signature.Envelope, error) {
	s, err := n.responderSession(ctx, from, tx)
	if err != nil {
		return signature.Envelope{}, err
	}
	if err := contract.Verify(tx); err != nil {
		return signature.Envelope{}, n.fail(s, err)
	}
	in, err := n.onHead(ctx, s, tx)
	if err != nil {
		return signature.Envelope{}, err
	}
	buyer, err := n.store.Query(ctx, s.id, domain.Buyer)
	if err != nil {
		return signature.Envelope{}, refuse("reconcile before reveal: %v", err)
	}
	seller, err := n.store.Query(ctx, s.id, domain.Seller)
	if err != nil {
		return signature.Envelope{}, refuse("reconcile before reveal: %v", err)
	}
	if err := n.sealsStored(ctx, s, s.role, in.CommitmentFor(s.role)); err != nil {
		return signature.Envelope{}, err
	}
	if err := contract.VerifyOutcome(tx, buyer, seller); err != nil {
		return signature.Envelope{}, n.fail(s, refuse("outcome disagrees with revealed values: %v", err))
	}
	return n.cosign(s, tx, contract.IntentReconcile)
}

// HandleReveal accepts the counterparty's value if it seals to the
// commitment on the ledger and answers with this node's own value.
func (n *Node) HandleReveal(ctx context.Context, from identity.Party, r peer.Reveal) (peer.Reveal, error) {
	s, err := n.session(ctx, r.NegotiationID)
	if err != nil {
		return peer.Reveal{}, err
	}
	if err := s.check(); err != nil {
		return peer.Reveal{}, err
	}
	if !s.counterparty.Equal(from) {
		return peer.Reveal{}, fmt.Errorf("%w: %s is not the counterparty of %s", errors.ErrUnauthorized, from, s.id)
	}
	head, err := n.ledger.CurrentState(ctx, s.id)
	if err != nil {
		return peer.Reveal{}, err
	}
	if head.State.Kind != ledger.KindProposal || !head.State.Proposal.BothCommitted() {
		return peer.Reveal{}, refuse("%s is not ready for reveal", s.id)
	}
	p := *head.State.Proposal

	theirs, err := n.acceptReveal(s, p, r)
	if err != nil {
		return peer.Reveal{}, err
	}
	mine, err := n.ownValue(ctx, s, p)
	if err != nil {
		return peer.Reveal{}, err
	}
	if err := n.store.Add(ctx, s.id, theirs.Role, theirs.Value); err != nil {
		return peer.Reveal{}, err
	}
	s.markRevealed(true, true)
	n.log.WithNegotiation(s.id).WithPhase(string(PhaseRevealedBoth)).Info("values revealed")
	return peer.Reveal{NegotiationID: s.id, Role: s.role, Value: mine}, nil
}
