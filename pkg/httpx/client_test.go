package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/accordsai/negotiation/pkg/errors"
)

type echo struct {
	Value string `json:"value"`
}

func TestClientGetPostAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/ok":
			WriteJSON(w, http.StatusOK, echo{Value: "hi"})
		case r.Method == http.MethodPost && r.URL.Path == "/echo":
			var in echo
			if err := ReadJSON(r, &in); err != nil {
				WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
				return
			}
			WriteJSON(w, http.StatusOK, in)
		case r.URL.Path == "/missing":
			WriteDomainError(w, errors.NewNotFoundError("ledger state", "n-1"))
		case r.URL.Path == "/invalid":
			WriteDomainError(w, errors.NewValidationError(errors.RuleNoChange, "The output differs from the input").WithNegotiation("n-2"))
		default:
			http.Error(w, "nope", http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	ctx := context.Background()

	got, err := Get[echo](ctx, c, "/ok")
	if err != nil || got.Value != "hi" {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
	posted, err := Post[echo](ctx, c, "/echo", echo{Value: "there"})
	if err != nil || posted.Value != "there" {
		t.Fatalf("Post() = %+v, %v", posted, err)
	}
	if _, err := Post[echo](ctx, c, "/echo", map[string]any{"unknown": 1}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown field, got %v", err)
	}

	_, err = Get[echo](ctx, c, "/missing")
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) || nf.ID != "n-1" {
		t.Fatalf("expected NotFoundError for n-1, got %v", err)
	}

	_, err = Get[echo](ctx, c, "/invalid")
	var verr *errors.ValidationError
	if !errors.As(err, &verr) || verr.Rule != errors.RuleNoChange || verr.NegotiationID != "n-2" {
		t.Fatalf("expected ValidationError NO_CHANGE, got %v", err)
	}

	if _, err := Get[echo](ctx, c, "/teapot"); err == nil {
		t.Fatal("expected error for non-JSON failure")
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		"VALIDATION_ERROR": http.StatusUnprocessableEntity,
		"NOT_FOUND":        http.StatusNotFound,
		"INTEGRITY_ERROR":  http.StatusConflict,
		"TIMEOUT":          http.StatusGatewayTimeout,
		"UNAUTHORIZED":     http.StatusUnauthorized,
		"CONFLICT":         http.StatusConflict,
		"INTERNAL":         http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := StatusFor(code); got != want {
			t.Errorf("StatusFor(%q) = %d, want %d", code, got, want)
		}
	}
}

func TestClientSendsDefaultHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		WriteJSON(w, http.StatusOK, echo{Value: "ok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.Header.Set("Authorization", "Bearer t0ken")
	if _, err := Get[echo](context.Background(), c, "/"); err != nil {
		t.Fatal(err)
	}
	if got.Get("Authorization") != "Bearer t0ken" {
		t.Fatalf("Authorization = %q", got.Get("Authorization"))
	}
}
