package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accordsai/negotiation/pkg/contract"
	"github.com/accordsai/negotiation/pkg/domain"
	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/identity"
	"github.com/accordsai/negotiation/pkg/ledger"
	"github.com/accordsai/negotiation/services/negotiator/internal/idempotency"
	"github.com/accordsai/negotiation/services/negotiator/internal/peer"
	"github.com/accordsai/negotiation/services/negotiator/internal/session"
	"github.com/accordsai/negotiation/services/negotiator/internal/store"
)

func newNode(t *testing.T, notary *ledger.Notary, net *peer.Local, s *identity.Signer) *session.Node {
	t.Helper()
	n, err := session.NewNode(session.Config{
		Signer:    s,
		Store:     store.NewMemory(),
		Ledger:    notary,
		Directory: notary,
		Network:   net,
		Timeout:   time.Second,
	})
	require.NoError(t, err)
	net.Attach(s.Party, n)
	return n
}

func signer(t *testing.T, name string, b byte) *identity.Signer {
	t.Helper()
	s, err := identity.NewSigner(name, bytes.Repeat([]byte{b}, ed25519.SeedSize))
	require.NoError(t, err)
	return s
}

func serve(t *testing.T, op Operator, idem idempotency.Store) *Client {
	t.Helper()
	r := chi.NewRouter()
	Routes(r, op, idem, nil)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "")
}

func TestOperatorAPIRunsNegotiation(t *testing.T) {
	ctx := context.Background()
	alice := signer(t, "O=Alice,L=London,C=GB", 1)
	bob := signer(t, "O=Bob,L=New York,C=US", 2)
	notary := ledger.NewNotary(contract.Verify, alice.Party, bob.Party)
	net := peer.NewLocal()
	aliceAPI := serve(t, newNode(t, notary, net, alice), nil)
	bobAPI := serve(t, newNode(t, notary, net, bob), nil)

	started, err := aliceAPI.Start(ctx, StartRequest{Role: "Seller", Value: "250.50", Counterparty: bob.Party.Name})
	require.NoError(t, err)
	id := started.NegotiationID
	assert.True(t, strings.HasPrefix(id, "neg_"))
	assert.True(t, strings.HasPrefix(started.RequestID, "req_"))

	st, err := bobAPI.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseProposed, st.Negotiation.Phase)
	assert.Equal(t, domain.Buyer, st.Negotiation.Role)

	st, err = bobAPI.Commit(ctx, id, "250.5")
	require.NoError(t, err)
	assert.Equal(t, session.PhaseCommittedBoth, st.Negotiation.Phase)

	rev, err := bobAPI.Reveal(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount("250.5"), rev.Buyer.Amount)
	assert.Equal(t, domain.Amount("250.5"), rev.Seller.Amount)

	rec, err := aliceAPI.Reconcile(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ledger.KindTrade, rec.State.Kind)
	assert.Equal(t, domain.Amount("250.5"), rec.State.Trade.AgreedValue)

	st, err = aliceAPI.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseReconciled, st.Negotiation.Phase)
}

func TestOperatorAPIErrors(t *testing.T) {
	ctx := context.Background()
	alice := signer(t, "O=Alice,L=London,C=GB", 1)
	bob := signer(t, "O=Bob,L=New York,C=US", 2)
	notary := ledger.NewNotary(contract.Verify, alice.Party, bob.Party)
	net := peer.NewLocal()
	api := serve(t, newNode(t, notary, net, alice), nil)
	newNode(t, notary, net, bob)

	_, err := api.Status(ctx, "neg-unknown")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = api.Start(ctx, StartRequest{Role: "Broker", Value: "1", Counterparty: bob.Party.Name})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = api.Start(ctx, StartRequest{Role: "Buyer", Value: "ten", Counterparty: bob.Party.Name})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	started, err := api.Start(ctx, StartRequest{NegotiationID: "neg 7,b", Role: "Buyer", Value: "1", Counterparty: bob.Party.Name})
	require.NoError(t, err)
	assert.Equal(t, "neg 7,b", started.NegotiationID)

	_, err = api.Commit(ctx, started.NegotiationID, "1")
	assert.ErrorIs(t, err, errors.ErrInvalidInput, "the proposer is already committed")

	_, err = api.Reveal(ctx, started.NegotiationID)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestOperatorAPIRejectsUnknownFields(t *testing.T) {
	r := chi.NewRouter()
	Routes(r, &countingOperator{}, nil, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/negotiations/neg-1/commit", "application/json", strings.NewReader(`{"value":"1","salt":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// countingOperator records how often StartProposal runs.
type countingOperator struct {
	starts atomic.Int32
}

func (o *countingOperator) StartProposal(ctx context.Context, id string, role domain.Role, value domain.Amount, ref string) (string, error) {
	o.starts.Add(1)
	return session.NewNegotiationID(), nil
}

func (o *countingOperator) Commit(ctx context.Context, id string, value domain.Amount) error {
	return errors.NewSubmissionError("head moved", errors.ErrConflict)
}

func (o *countingOperator) Modify(ctx context.Context, id string, value domain.Amount) error {
	return nil
}

func (o *countingOperator) Reveal(ctx context.Context, id string) (domain.Attributes, domain.Attributes, error) {
	return domain.Attributes{}, domain.Attributes{}, nil
}

func (o *countingOperator) Reconcile(ctx context.Context, id string) (ledger.State, error) {
	return ledger.State{}, nil
}

func (o *countingOperator) Status(ctx context.Context, id string) (session.Snapshot, error) {
	return session.Snapshot{NegotiationID: id}, nil
}

func TestStartIsReplayedForSameIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	op := &countingOperator{}
	idem, err := idempotency.NewMemoryStore(16)
	require.NoError(t, err)
	c := serve(t, op, idem)

	req := StartRequest{Role: "Buyer", Value: "1", Counterparty: "bob"}
	first, err := c.WithIdempotencyKey("k-1").Start(ctx, req)
	require.NoError(t, err)
	second, err := c.WithIdempotencyKey("k-1").Start(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.NegotiationID, second.NegotiationID)
	assert.Equal(t, int32(1), op.starts.Load())

	third, err := c.WithIdempotencyKey("k-2").Start(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.NegotiationID, third.NegotiationID)

	_, err = c.Start(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int32(3), op.starts.Load())
}

func TestFailedRequestsAreNotRecorded(t *testing.T) {
	ctx := context.Background()
	idem, err := idempotency.NewMemoryStore(16)
	require.NoError(t, err)
	c := serve(t, &countingOperator{}, idem).WithIdempotencyKey("k-1")

	for i := 0; i < 2; i++ {
		_, err := c.Commit(ctx, "neg-1", "1")
		assert.True(t, errors.IsRetryable(err), "attempt %d: %v", i, err)
	}
}

// flakyStatusOperator commits successfully but cannot report status.
type flakyStatusOperator struct {
	countingOperator
	commits atomic.Int32
}

func (o *flakyStatusOperator) Commit(ctx context.Context, id string, value domain.Amount) error {
	o.commits.Add(1)
	return nil
}

func (o *flakyStatusOperator) Status(ctx context.Context, id string) (session.Snapshot, error) {
	return session.Snapshot{}, errors.New("store offline")
}

func TestStepSucceedsWhenStatusFails(t *testing.T) {
	ctx := context.Background()
	op := &flakyStatusOperator{}
	idem, err := idempotency.NewMemoryStore(16)
	require.NoError(t, err)
	c := serve(t, op, idem).WithIdempotencyKey("k-1")

	first, err := c.Commit(ctx, "neg-1", "1")
	require.NoError(t, err)
	assert.Equal(t, "neg-1", first.Negotiation.NegotiationID)

	second, err := c.Commit(ctx, "neg-1", "1")
	require.NoError(t, err)
	assert.Equal(t, first.RequestID, second.RequestID, "replayed")
	assert.Equal(t, int32(1), op.commits.Load())

	_, err = c.Status(ctx, "neg-1")
	assert.Error(t, err)
}
