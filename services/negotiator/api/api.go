// Package api is a node's operator HTTP surface: it starts negotiations
// and drives each protocol step on behalf of the node's owner.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accordsai/negotiation/pkg/domain"
	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/httpx"
	"github.com/accordsai/negotiation/pkg/keylock"
	"github.com/accordsai/negotiation/pkg/ledger"
	"github.com/accordsai/negotiation/pkg/logging"
	"github.com/accordsai/negotiation/services/negotiator/internal/idempotency"
	"github.com/accordsai/negotiation/services/negotiator/internal/session"
)

// Operator is the initiator side of a session.Node.
type Operator interface {
	StartProposal(ctx context.Context, id string, role domain.Role, value domain.Amount, counterpartyRef string) (string, error)
	Commit(ctx context.Context, id string, value domain.Amount) error
	Modify(ctx context.Context, id string, value domain.Amount) error
	Reveal(ctx context.Context, id string) (buyer, seller domain.Attributes, err error)
	Reconcile(ctx context.Context, id string) (ledger.State, error)
	Status(ctx context.Context, id string) (session.Snapshot, error)
}

var _ Operator = (*session.Node)(nil)

type StartRequest struct {
	NegotiationID string `json:"negotiation_id,omitempty"`
	Role          string `json:"role"`
	Value         string `json:"value"`
	Counterparty  string `json:"counterparty"`
}

type ValueRequest struct {
	Value string `json:"value"`
}

// Responses as decoded by clients.
type (
	StartResponse struct {
		RequestID     string `json:"request_id"`
		NegotiationID string `json:"negotiation_id"`
	}
	StatusResponse struct {
		RequestID   string           `json:"request_id"`
		Negotiation session.Snapshot `json:"negotiation"`
	}
	RevealResponse struct {
		RequestID string            `json:"request_id"`
		Buyer     domain.Attributes `json:"buyer"`
		Seller    domain.Attributes `json:"seller"`
	}
	ReconcileResponse struct {
		RequestID string       `json:"request_id"`
		State     ledger.State `json:"state"`
	}
)

type server struct {
	op       Operator
	idem     idempotency.Store
	inflight *keylock.Table
	log      *logging.Logger
}

// Routes mounts the operator endpoints on r. POST responses are replayed
// for a repeated Idempotency-Key when idem is non-nil.
func Routes(r chi.Router, op Operator, idem idempotency.Store, log *logging.Logger) {
	if log == nil {
		log = logging.NopLogger()
	}
	s := &server{op: op, idem: idem, inflight: keylock.New(), log: log}

	r.Post("/negotiations", s.start)
	r.Get("/negotiations/{id}", s.status)
	r.Post("/negotiations/{id}/commit", s.commit)
	r.Post("/negotiations/{id}/modify", s.modify)
	r.Post("/negotiations/{id}/reveal", s.reveal)
	r.Post("/negotiations/{id}/reconcile", s.reconcile)
}

// idempotent runs fn once per Idempotency-Key and endpoint. Only
// successful responses are recorded, so a failed attempt may be retried.
func (s *server) idempotent(w http.ResponseWriter, r *http.Request, fn func() (int, map[string]any, error)) {
	key := r.Header.Get(idempotency.Header)
	endpoint := r.Method + " " + r.URL.Path
	if s.idem == nil || key == "" {
		s.respond(w, fn)
		return
	}

	unlock := s.inflight.Lock(endpoint + "\x00" + key)
	defer unlock()

	rec, ok, err := idempotency.Replay(r.Context(), s.idem, key, endpoint)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "IDEMPOTENCY_ERROR", err.Error(), nil)
		return
	}
	if ok {
		httpx.WriteJSON(w, rec.Status, rec.Body)
		return
	}
	status, body, err := fn()
	if err != nil {
		s.fail(w, endpoint, err)
		return
	}
	if err := idempotency.Save(r.Context(), s.idem, key, endpoint, status, body); err != nil {
		s.log.Warn("idempotency record not saved", "endpoint", endpoint, "error", err.Error())
	}
	httpx.WriteJSON(w, status, body)
}

func (s *server) respond(w http.ResponseWriter, fn func() (int, map[string]any, error)) {
	status, body, err := fn()
	if err != nil {
		s.fail(w, "", err)
		return
	}
	httpx.WriteJSON(w, status, body)
}

func (s *server) fail(w http.ResponseWriter, endpoint string, err error) {
	if errors.Code(err) == "INTERNAL" {
		s.log.Error("operator request failed", "endpoint", endpoint, "error", err.Error())
	}
	httpx.WriteDomainError(w, err)
}

func decode(r *http.Request, dst any) error {
	if err := httpx.ReadJSON(r, dst); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	return nil
}

func readValue(r *http.Request) (domain.Amount, error) {
	var req ValueRequest
	if err := decode(r, &req); err != nil {
		return "", err
	}
	return domain.Amount(req.Value), nil
}

func (s *server) start(w http.ResponseWriter, r *http.Request) {
	s.idempotent(w, r, func() (int, map[string]any, error) {
		var req StartRequest
		if err := decode(r, &req); err != nil {
			return 0, nil, err
		}
		role, err := domain.ParseRole(req.Role)
		if err != nil {
			return 0, nil, errors.Join(errors.ErrInvalidInput, err)
		}
		id, err := s.op.StartProposal(r.Context(), req.NegotiationID, role, domain.Amount(req.Value), req.Counterparty)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, map[string]any{"request_id": httpx.NewRequestID(), "negotiation_id": id}, nil
	})
}

func (s *server) snapshot(ctx context.Context, id string) (map[string]any, error) {
	snap, err := s.op.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"request_id": httpx.NewRequestID(), "negotiation": snap}, nil
}

// stepped reports the session after a step that already took effect. A
// failed status read still yields a success body, so the step is recorded
// and not repeated on retry.
func (s *server) stepped(ctx context.Context, id string) map[string]any {
	body, err := s.snapshot(ctx, id)
	if err != nil {
		s.log.Warn("status after step unavailable", "negotiation_id", id, "error", err.Error())
		return map[string]any{"request_id": httpx.NewRequestID(), "negotiation": session.Snapshot{NegotiationID: id}}
	}
	return body
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	s.respond(w, func() (int, map[string]any, error) {
		body, err := s.snapshot(r.Context(), httpx.PathParam(r, "id"))
		return http.StatusOK, body, err
	})
}

func (s *server) commit(w http.ResponseWriter, r *http.Request) {
	id := httpx.PathParam(r, "id")
	s.idempotent(w, r, func() (int, map[string]any, error) {
		v, err := readValue(r)
		if err != nil {
			return 0, nil, err
		}
		if err := s.op.Commit(r.Context(), id, v); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, s.stepped(r.Context(), id), nil
	})
}

func (s *server) modify(w http.ResponseWriter, r *http.Request) {
	id := httpx.PathParam(r, "id")
	s.idempotent(w, r, func() (int, map[string]any, error) {
		v, err := readValue(r)
		if err != nil {
			return 0, nil, err
		}
		if err := s.op.Modify(r.Context(), id, v); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, s.stepped(r.Context(), id), nil
	})
}

func (s *server) reveal(w http.ResponseWriter, r *http.Request) {
	id := httpx.PathParam(r, "id")
	s.idempotent(w, r, func() (int, map[string]any, error) {
		buyer, seller, err := s.op.Reveal(r.Context(), id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"request_id": httpx.NewRequestID(), "buyer": buyer, "seller": seller}, nil
	})
}

func (s *server) reconcile(w http.ResponseWriter, r *http.Request) {
	id := httpx.PathParam(r, "id")
	s.idempotent(w, r, func() (int, map[string]any, error) {
		st, err := s.op.Reconcile(r.Context(), id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"request_id": httpx.NewRequestID(), "state": st}, nil
	})
}
