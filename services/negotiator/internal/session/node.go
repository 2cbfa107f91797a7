// Package session runs the negotiation protocol for one party. A Node
// drives the initiator side of each transition and answers the
// counterparty's co-signature and reveal requests as responder.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/accordsai/negotiation/pkg/contract"
	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/identity"
	"github.com/accordsai/negotiation/pkg/keylock"
	"github.com/accordsai/negotiation/pkg/ledger"
	"github.com/accordsai/negotiation/pkg/logging"
	"github.com/accordsai/negotiation/pkg/signature"
	"github.com/accordsai/negotiation/services/negotiator/internal/peer"
	"github.com/accordsai/negotiation/services/negotiator/internal/store"
)

// DefaultTimeout bounds a counterparty round-trip when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

type Config struct {
	Signer    *identity.Signer
	Store     store.Store
	Ledger    ledger.Ledger
	Directory identity.Directory
	Network   peer.Network
	Logger    *logging.Logger
	Timeout   time.Duration
}

// Node is one party's protocol engine.
type Node struct {
	signer  *identity.Signer
	store   store.Store
	ledger  ledger.Ledger
	dir     identity.Directory
	net     peer.Network
	log     *logging.Logger
	timeout time.Duration

	// ops serializes initiator operations per negotiation id for a whole
	// round. Responder handlers never take it.
	ops *keylock.Table

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewNode(cfg Config) (*Node, error) {
	switch {
	case cfg.Signer == nil:
		return nil, fmt.Errorf("session: signer is required")
	case cfg.Store == nil:
		return nil, fmt.Errorf("session: store is required")
	case cfg.Ledger == nil:
		return nil, fmt.Errorf("session: ledger is required")
	case cfg.Directory == nil:
		return nil, fmt.Errorf("session: directory is required")
	case cfg.Network == nil:
		return nil, fmt.Errorf("session: network is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Node{
		signer:   cfg.Signer,
		store:    cfg.Store,
		ledger:   cfg.Ledger,
		dir:      cfg.Directory,
		net:      cfg.Network,
		log:      cfg.Logger.WithParty(cfg.Signer.Party.Name),
		timeout:  cfg.Timeout,
		ops:      keylock.New(),
		sessions: map[string]*Session{},
	}, nil
}

func (n *Node) Party() identity.Party { return n.signer.Party }

// session returns the live session for id, rebuilding it from the ledger
// head and the local store when this node has not seen id since it started.
func (n *Node) session(ctx context.Context, id string) (*Session, error) {
	n.mu.Lock()
	s, ok := n.sessions[id]
	n.mu.Unlock()
	if ok {
		return s, nil
	}

	head, err := n.ledger.CurrentState(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err = n.recover(ctx, id, head.State)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if existing, ok := n.sessions[id]; ok {
		return existing, nil
	}
	n.sessions[id] = s
	return s, nil
}

func (n *Node) recover(ctx context.Context, id string, st ledger.State) (*Session, error) {
	var p ledger.Proposal
	switch st.Kind {
	case ledger.KindProposal:
		p = *st.Proposal
	case ledger.KindMismatch:
		m := st.Mismatch
		p = ledger.Proposal{ID: m.ID, Buyer: m.Buyer, Seller: m.Seller, Proposer: m.Proposer, Proposee: m.Proposee}
	case ledger.KindTrade:
		t := st.Trade
		p = ledger.Proposal{ID: t.ID, Buyer: t.Buyer, Seller: t.Seller}
	default:
		return nil, fmt.Errorf("session: unknown state kind %q for %s", st.Kind, id)
	}
	role, ok := p.RoleOf(n.Party())
	if !ok {
		return nil, errors.NewNotFoundError("negotiation", id)
	}
	s := newSession(id, role, p.PartyFor(role.Opposite()))
	if _, err := n.store.Query(ctx, id, role.Opposite()); err == nil {
		s.revealedSelf, s.revealedOther = true, true
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	return s, nil
}

// create registers a fresh session for id, failing if one exists.
func (n *Node) create(s *Session) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.sessions[s.id]; ok {
		return fmt.Errorf("%w: negotiation %s already exists", errors.ErrInvalidInput, s.id)
	}
	n.sessions[s.id] = s
	return nil
}

// aborts reports whether err ends the session for good.
func aborts(err error) bool {
	return errors.Is(err, errors.ErrValidation) ||
		errors.Is(err, errors.ErrIntegrity) ||
		errors.Is(err, errors.ErrTimeout) ||
		errors.Is(err, errors.ErrRefused) ||
		errors.Is(err, errors.ErrSessionAborted)
}

// fail records err as the abort cause of s when it is fatal and returns it.
func (n *Node) fail(s *Session, err error) error {
	if err == nil || !aborts(err) {
		return err
	}
	if !s.abort(err) {
		return err
	}
	log := n.log.WithNegotiation(s.id).WithPhase(string(PhaseAborted))
	if errors.Is(err, errors.ErrIntegrity) {
		log.Security("integrity check failed", "error", err.Error())
	} else {
		log.Warn("session aborted", "error", err.Error(), "code", errors.Code(err))
	}
	return err
}

// roundTrip runs one counterparty call under the node timeout. Running
// out of time yields a TimeoutError; a caller cancellation is returned
// as is.
func roundTrip[T any](ctx context.Context, n *Node, id, op string, fn func(context.Context) (T, error)) (T, error) {
	rctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	v, err := fn(rctx)
	if err != nil && ctx.Err() == nil && rctx.Err() == context.DeadlineExceeded {
		err = errors.NewTimeoutError(op, n.timeout).WithNegotiation(id).WithCause(err)
	}
	return v, err
}

// transact self-verifies tx, signs it, collects the counterparty's
// co-signature and submits the result to the ledger.
func (n *Node) transact(ctx context.Context, s *Session, tx ledger.Transaction) (ledger.FinalizedTransaction, error) {
	if err := contract.Verify(tx); err != nil {
		return ledger.FinalizedTransaction{}, n.fail(s, err)
	}
	signed, err := tx.Sign(n.signer)
	if err != nil {
		return ledger.FinalizedTransaction{}, err
	}
	cp, err := n.net.Dial(ctx, n.signer, s.counterparty)
	if err != nil {
		return ledger.FinalizedTransaction{}, err
	}
	env, err := roundTrip(ctx, n, s.id, "co-signature", func(ctx context.Context) (signature.Envelope, error) {
		return cp.RequestSignature(ctx, signed)
	})
	if err != nil {
		return ledger.FinalizedTransaction{}, n.fail(s, err)
	}
	signed = signed.WithSignature(env)
	if !signed.SignedBy(s.counterparty.Key) {
		return ledger.FinalizedTransaction{}, fmt.Errorf("%w: co-signature is not a valid signature by %s",
			errors.ErrUnauthorized, s.counterparty)
	}

	ftx, err := n.ledger.Submit(ctx, signed)
	if err != nil {
		if errors.Is(err, errors.ErrSubmission) {
			n.log.WithNegotiation(s.id).Info("submission rejected", "tx_id", signed.ID(),
				"retryable", errors.IsRetryable(err), "error", err.Error())
			return ledger.FinalizedTransaction{}, err
		}
		return ledger.FinalizedTransaction{}, n.fail(s, err)
	}
	n.log.WithNegotiation(s.id).Info("transaction finalized", "tx_id", signed.ID(), "sequence", ftx.Sequence)
	return ftx, nil
}
