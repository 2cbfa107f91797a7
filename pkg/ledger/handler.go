package ledger

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/httpx"
	"github.com/accordsai/negotiation/pkg/identity"
)

// Routes mounts the ledger HTTP API for s on r.
func Routes(r chi.Router, s Substrate) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/ledger", func(r chi.Router) {
		r.Get("/states/{negotiation_id}", func(w http.ResponseWriter, r *http.Request) {
			cur, err := s.CurrentState(r.Context(), httpx.PathParam(r, "negotiation_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, cur)
		})
		r.Get("/states/{negotiation_id}/history", func(w http.ResponseWriter, r *http.Request) {
			hist, err := s.History(r.Context(), httpx.PathParam(r, "negotiation_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, HistoryResponse{Transactions: hist})
		})
		r.Post("/transactions", func(w http.ResponseWriter, r *http.Request) {
			var tx Transaction
			if err := httpx.ReadJSON(r, &tx); err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
				return
			}
			ftx, err := s.Submit(r.Context(), tx)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusCreated, ftx)
		})
		r.Post("/parties", func(w http.ResponseWriter, r *http.Request) {
			var reg identity.Registration
			if err := httpx.ReadJSON(r, &reg); err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
				return
			}
			if err := s.Register(r.Context(), reg); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusCreated, reg.Party)
		})
		r.Get("/parties/{name}", func(w http.ResponseWriter, r *http.Request) {
			p, err := s.ResolveWellKnown(r.Context(), httpx.PathParam(r, "name"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, p)
		})
	})
}

// NewHandler returns a chi router serving the ledger API for s.
func NewHandler(s Substrate) http.Handler {
	r := chi.NewRouter()
	Routes(r, s)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteDomainError(w, errors.NewNotFoundError("route", r.URL.Path))
	})
	return r
}
