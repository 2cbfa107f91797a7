package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/accordsai/negotiation/pkg/commitment"
	"github.com/accordsai/negotiation/pkg/contract"
	"github.com/accordsai/negotiation/pkg/domain"
	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/ledger"
	"github.com/accordsai/negotiation/services/negotiator/internal/peer"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidInput}, args...)...)
}

func canonical(v domain.Amount) (domain.Amount, error) {
	a, err := domain.ParseAmount(string(v))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	return a, nil
}

// NewNegotiationID returns a fresh negotiation id.
func NewNegotiationID() string { return "neg_" + uuid.NewString() }

// StartProposal opens negotiation id with this node as proposer in role,
// sealing value, and returns the id (generated when id is empty).
func (n *Node) StartProposal(ctx context.Context, id string, role domain.Role, value domain.Amount, counterpartyRef string) (string, error) {
	if !role.Valid() {
		return "", invalid("unknown role %q", role)
	}
	value, err := canonical(value)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = NewNegotiationID()
	}

	unlock := n.ops.Lock(id)
	defer unlock()

	cp, err := n.dir.ResolveWellKnown(ctx, counterpartyRef)
	if err != nil {
		return "", err
	}
	if cp.Equal(n.Party()) {
		return "", invalid("counterparty %s is this node", cp)
	}
	if _, err := n.ledger.CurrentState(ctx, id); err == nil {
		return "", invalid("negotiation %s already exists on the ledger", id)
	} else if !errors.Is(err, errors.ErrNotFound) {
		return "", err
	}

	s := newSession(id, role, cp)
	if err := n.create(s); err != nil {
		return "", err
	}
	log := n.log.WithNegotiation(id).WithPhase(string(PhaseInitial))

	if err := n.store.Add(ctx, id, role, value); err != nil {
		n.forget(s)
		return "", err
	}
	p := ledger.Proposal{ID: id, Proposer: n.Party(), Proposee: cp}
	if role == domain.Buyer {
		p.Buyer, p.Seller = n.Party(), cp
	} else {
		p.Buyer, p.Seller = cp, n.Party()
	}
	p = p.WithCommitment(role, commitment.SealAmount(value))

	tx := ledger.Transaction{
		Outputs:  []ledger.State{ledger.NewProposalState(p)},
		Commands: []ledger.Command{ledger.NewCommand(ledger.IntentPropose, p.Proposer, p.Proposee)},
	}
	if _, err := n.transact(ctx, s, tx); err != nil {
		n.forget(s)
		return "", err
	}
	log.Info("proposal finalized", "role", role, "counterparty", cp.Name)
	return id, nil
}

// forget drops s after a failed start so the id can be retried. Aborted
// sessions are kept so later calls see the abort cause.
func (n *Node) forget(s *Session) {
	if s.check() != nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sessions[s.id] == s {
		delete(n.sessions, s.id)
	}
}

// begin takes the operation lock for id and returns the live session.
func (n *Node) begin(ctx context.Context, id string) (*Session, func(), error) {
	unlock := n.ops.Lock(id)
	s, err := n.session(ctx, id)
	if err == nil {
		err = s.check()
	}
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return s, unlock, nil
}

// openProposal returns the current head of s, which must still be a
// proposal naming this node in its role.
func (n *Node) openProposal(ctx context.Context, s *Session) (ledger.StateAndRef, ledger.Proposal, error) {
	head, err := n.ledger.CurrentState(ctx, s.id)
	if err != nil {
		return ledger.StateAndRef{}, ledger.Proposal{}, err
	}
	if head.State.Kind != ledger.KindProposal || head.State.Proposal == nil {
		return ledger.StateAndRef{}, ledger.Proposal{}, invalid("negotiation %s is already %s", s.id, head.State.Kind)
	}
	p := *head.State.Proposal
	if !p.PartyFor(s.role).Equal(n.Party()) {
		return ledger.StateAndRef{}, ledger.Proposal{}, invalid("this node is not the %s of %s", s.role, s.id)
	}
	return head, p, nil
}

// Commit seals value for this node's side, which must not be committed yet.
func (n *Node) Commit(ctx context.Context, id string, value domain.Amount) error {
	value, err := canonical(value)
	if err != nil {
		return err
	}
	s, unlock, err := n.begin(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	head, p, err := n.openProposal(ctx, s)
	if err != nil {
		return err
	}
	if p.CommitmentFor(s.role) != "" {
		return invalid("the %s side of %s is already committed", s.role, id)
	}
	if err := n.store.Add(ctx, id, s.role, value); err != nil {
		return err
	}
	out := p.WithCommitment(s.role, commitment.SealAmount(value))
	tx := ledger.Transaction{
		Inputs:   []ledger.StateAndRef{head},
		Outputs:  []ledger.State{ledger.NewProposalState(out)},
		Commands: []ledger.Command{ledger.NewCommand(ledger.IntentCommit, p.Proposer, p.Proposee)},
	}
	if _, err := n.transact(ctx, s, tx); err != nil {
		return err
	}
	n.log.WithNegotiation(id).WithPhase(string(PhaseCommittedSelf)).Info("commitment finalized", "role", s.role)
	return nil
}

// Modify re-seals this node's value while it is the only committed side.
// The stored value changes only once the new commitment is finalized.
func (n *Node) Modify(ctx context.Context, id string, value domain.Amount) error {
	value, err := canonical(value)
	if err != nil {
		return err
	}
	s, unlock, err := n.begin(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	head, p, err := n.openProposal(ctx, s)
	if err != nil {
		return err
	}
	if p.CommitmentFor(s.role) == "" || p.CommitmentFor(s.role.Opposite()) != "" {
		return invalid("modify needs %s to be the only committed side of %s", s.role, id)
	}
	current, err := n.store.Query(ctx, id, s.role)
	if err != nil {
		return err
	}
	if current.Equal(value) {
		return invalid("value for %s is unchanged", id)
	}

	out := p.WithCommitment(s.role, commitment.SealAmount(value))
	tx := ledger.Transaction{
		Inputs:   []ledger.StateAndRef{head},
		Outputs:  []ledger.State{ledger.NewProposalState(out)},
		Commands: []ledger.Command{ledger.NewCommand(ledger.IntentModify, p.Proposer, p.Proposee)},
	}
	if _, err := n.transact(ctx, s, tx); err != nil {
		return err
	}
	// The ledger already holds the new commitment.
	if err := n.store.Update(context.WithoutCancel(ctx), id, s.role, value); err != nil {
		n.log.WithNegotiation(id).Error("stored value lags finalized commitment", "error", err.Error())
		return err
	}
	n.log.WithNegotiation(id).Info("commitment modified", "role", s.role)
	return nil
}

// Reveal exchanges raw values with the counterparty once both sides are
// committed and returns both. A value that does not match its commitment
// aborts the session with an IntegrityError.
func (n *Node) Reveal(ctx context.Context, id string) (buyer, seller domain.Attributes, err error) {
	s, unlock, err := n.begin(ctx, id)
	if err != nil {
		return buyer, seller, err
	}
	defer unlock()

	_, p, err := n.openProposal(ctx, s)
	if err != nil {
		return buyer, seller, err
	}
	if !p.BothCommitted() {
		return buyer, seller, invalid("both sides of %s must commit before reveal", id)
	}
	mine, err := n.ownValue(ctx, s, p)
	if err != nil {
		return buyer, seller, err
	}

	theirs, err := n.store.Query(ctx, id, s.role.Opposite())
	switch {
	case err == nil:
		// Already exchanged.
	case errors.Is(err, errors.ErrNotFound):
		theirs, err = n.exchange(ctx, s, p, mine)
		if err != nil {
			return buyer, seller, err
		}
	default:
		return buyer, seller, err
	}

	if s.role == domain.Buyer {
		return domain.Attributes{Amount: mine}, domain.Attributes{Amount: theirs}, nil
	}
	return domain.Attributes{Amount: theirs}, domain.Attributes{Amount: mine}, nil
}

// ownValue reads this node's stored value and checks it still seals to
// the commitment on the ledger.
func (n *Node) ownValue(ctx context.Context, s *Session, p ledger.Proposal) (domain.Amount, error) {
	v, err := n.store.Query(ctx, s.id, s.role)
	if err != nil {
		return "", err
	}
	if c := p.CommitmentFor(s.role); !commitment.VerifyAmount(v, c) {
		return "", n.fail(s, errors.NewIntegrityError("stored value does not match own commitment").
			WithNegotiation(s.id).WithRole(string(s.role)).WithDigests(c, commitment.SealAmount(v)))
	}
	return v, nil
}

func (n *Node) exchange(ctx context.Context, s *Session, p ledger.Proposal, mine domain.Amount) (domain.Amount, error) {
	cp, err := n.net.Dial(ctx, n.signer, s.counterparty)
	if err != nil {
		return "", err
	}
	s.markRevealed(true, false)
	got, err := roundTrip(ctx, n, s.id, "reveal", func(ctx context.Context) (peer.Reveal, error) {
		return cp.ExchangeReveal(ctx, peer.Reveal{NegotiationID: s.id, Role: s.role, Value: mine})
	})
	if err != nil {
		return "", n.fail(s, err)
	}
	theirs, err := n.acceptReveal(s, p, got)
	if err != nil {
		return "", err
	}
	if err := n.store.Add(ctx, s.id, theirs.Role, theirs.Value); err != nil {
		return "", err
	}
	s.markRevealed(true, true)
	n.log.WithNegotiation(s.id).WithPhase(string(PhaseRevealedBoth)).Info("values revealed")
	return theirs.Value, nil
}

// acceptReveal checks a counterparty reveal against the ledger commitment
// for the counterparty's side.
func (n *Node) acceptReveal(s *Session, p ledger.Proposal, r peer.Reveal) (peer.Reveal, error) {
	want := s.role.Opposite()
	if r.NegotiationID != s.id || r.Role != want {
		return peer.Reveal{}, n.fail(s, errors.NewIntegrityError(
			fmt.Sprintf("reveal for %s/%s does not answer %s/%s", r.NegotiationID, r.Role, s.id, want)).
			WithNegotiation(s.id).WithRole(string(want)))
	}
	v, err := domain.ParseAmount(string(r.Value))
	if err != nil {
		return peer.Reveal{}, n.fail(s, errors.NewIntegrityError("revealed value is not an amount").
			WithNegotiation(s.id).WithRole(string(want)))
	}
	if c := p.CommitmentFor(want); !commitment.VerifyAmount(v, c) {
		return peer.Reveal{}, n.fail(s, errors.NewIntegrityError("revealed value does not match commitment").
			WithNegotiation(s.id).WithRole(string(want)).WithDigests(c, commitment.SealAmount(v)))
	}
	r.Value = v
	return r, nil
}

// Reconcile consumes the proposal into a Trade or Mismatch record using
// both revealed values. Reconciling a finished negotiation returns its
// terminal record.
func (n *Node) Reconcile(ctx context.Context, id string) (ledger.State, error) {
	s, unlock, err := n.begin(ctx, id)
	if err != nil {
		return ledger.State{}, err
	}
	defer unlock()

	head, err := n.ledger.CurrentState(ctx, id)
	if err != nil {
		return ledger.State{}, err
	}
	if head.State.Terminal() {
		return head.State, nil
	}
	_, p, err := n.openProposal(ctx, s)
	if err != nil {
		return ledger.State{}, err
	}
	if !p.BothCommitted() {
		return ledger.State{}, invalid("both sides of %s must commit before reconcile", id)
	}
	buyer, err := n.store.Query(ctx, id, domain.Buyer)
	if err != nil {
		return ledger.State{}, fmt.Errorf("reconcile %s before reveal: %w", id, err)
	}
	seller, err := n.store.Query(ctx, id, domain.Seller)
	if err != nil {
		return ledger.State{}, fmt.Errorf("reconcile %s before reveal: %w", id, err)
	}

	out := contract.Outcome(p, buyer, seller)
	tx := ledger.Transaction{
		Inputs:  []ledger.StateAndRef{head},
		Outputs: []ledger.State{out},
	}
	if err := contract.VerifyOutcome(tx, buyer, seller); err != nil {
		return ledger.State{}, n.fail(s, err)
	}
	if _, err := n.transact(ctx, s, tx); err != nil {
		return ledger.State{}, err
	}
	n.log.WithNegotiation(id).WithPhase(string(PhaseReconciled)).Info("negotiation reconciled", "outcome", out.Kind)
	return out, nil
}

// Status reports the phase of id as seen by this node.
func (n *Node) Status(ctx context.Context, id string) (Snapshot, error) {
	s, err := n.session(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	head, err := n.ledger.CurrentState(ctx, id)
	switch {
	case err == nil:
		return s.snapshot(&head.State), nil
	case errors.Is(err, errors.ErrNotFound):
		return s.snapshot(nil), nil
	}
	return Snapshot{}, err
}
