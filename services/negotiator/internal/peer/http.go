package peer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/httpx"
	"github.com/accordsai/negotiation/pkg/identity"
	"github.com/accordsai/negotiation/pkg/ledger"
	"github.com/accordsai/negotiation/pkg/signature"
)

const (
	SignPath   = "/peer/sign"
	RevealPath = "/peer/reveal"

	// MaxSkew bounds how old a signed peer request may be.
	MaxSkew = 5 * time.Minute
)

// SignedRequest wraps a peer request body with the sender's signature
// over {from, body}. The signature context is the request path.
type SignedRequest[T any] struct {
	From      identity.Party     `json:"from"`
	Body      T                  `json:"body"`
	Signature signature.Envelope `json:"signature"`
}

type signedPayload[T any] struct {
	From identity.Party `json:"from"`
	Body T              `json:"body"`
}

func signRequest[T any](s *identity.Signer, path string, body T) (SignedRequest[T], error) {
	env, err := s.Sign(signedPayload[T]{From: s.Party, Body: body}, path)
	if err != nil {
		return SignedRequest[T]{}, err
	}
	return SignedRequest[T]{From: s.Party, Body: body, Signature: env}, nil
}

// authenticate checks req: the envelope must be a valid signature by the
// key of the claimed sender, made for path, and recent.
func authenticate[T any](req SignedRequest[T], path string, now time.Time) error {
	if !req.From.Owns(req.Signature) {
		return fmt.Errorf("%w: request not signed by %s", errors.ErrUnauthorized, req.From)
	}
	res, err := signature.VerifyContext(signedPayload[T]{From: req.From, Body: req.Body}, req.Signature, path)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}
	if d := now.Sub(res.IssuedAt); d > MaxSkew || d < -MaxSkew {
		return fmt.Errorf("%w: request issued at %s is outside the allowed skew", errors.ErrUnauthorized, res.IssuedAt)
	}
	return nil
}

type SignResponse struct {
	Signature signature.Envelope `json:"signature"`
}

// Routes mounts the peer endpoints for h on r.
func Routes(r chi.Router, h Handler) {
	r.Post(SignPath, func(w http.ResponseWriter, r *http.Request) {
		var req SignedRequest[ledger.Transaction]
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
			return
		}
		if err := authenticate(req, SignPath, time.Now()); err != nil {
			httpx.WriteDomainError(w, err)
			return
		}
		env, err := h.HandleSign(r.Context(), req.From, req.Body)
		if err != nil {
			httpx.WriteDomainError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, SignResponse{Signature: env})
	})
	r.Post(RevealPath, func(w http.ResponseWriter, r *http.Request) {
		var req SignedRequest[Reveal]
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
			return
		}
		if err := authenticate(req, RevealPath, time.Now()); err != nil {
			httpx.WriteDomainError(w, err)
			return
		}
		out, err := h.HandleReveal(r.Context(), req.From, req.Body)
		if err != nil {
			httpx.WriteDomainError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	})
}

// HTTP is a Network reaching counterparties at base URLs looked up by
// well-known name or agent id.
type HTTP struct {
	mu    sync.RWMutex
	peers map[string]string
	// Client overrides the HTTP client, e.g. in tests.
	Client *http.Client
}

func NewHTTP(peers map[string]string) *HTTP {
	n := &HTTP{peers: map[string]string{}}
	for ref, url := range peers {
		n.Add(ref, url)
	}
	return n
}

// Add maps a party reference to the base URL of its node.
func (n *HTTP) Add(ref, baseURL string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[strings.TrimSpace(ref)] = baseURL
}

func (n *HTTP) lookup(p identity.Party) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if u, ok := n.peers[p.Key]; ok {
		return u, true
	}
	u, ok := n.peers[p.Name]
	return u, ok
}

func (n *HTTP) Dial(ctx context.Context, self *identity.Signer, to identity.Party) (Counterparty, error) {
	base, ok := n.lookup(to)
	if !ok {
		return nil, errors.NewNotFoundError("peer", to.String())
	}
	c := httpx.NewClient(base)
	if n.Client != nil {
		c.HTTPClient = n.Client
	}
	return &httpCounterparty{self: self, to: to, http: c}, nil
}

type httpCounterparty struct {
	self *identity.Signer
	to   identity.Party
	http *httpx.Client
}

func (c *httpCounterparty) Party() identity.Party { return c.to }

func (c *httpCounterparty) RequestSignature(ctx context.Context, tx ledger.Transaction) (signature.Envelope, error) {
	req, err := signRequest(c.self, SignPath, tx)
	if err != nil {
		return signature.Envelope{}, err
	}
	out, err := httpx.Post[SignResponse](ctx, c.http, SignPath, req)
	if err != nil {
		return signature.Envelope{}, err
	}
	return out.Signature, nil
}

func (c *httpCounterparty) ExchangeReveal(ctx context.Context, r Reveal) (Reveal, error) {
	req, err := signRequest(c.self, RevealPath, r)
	if err != nil {
		return Reveal{}, err
	}
	out, err := httpx.Post[Reveal](ctx, c.http, RevealPath, req)
	if err != nil {
		return Reveal{}, err
	}
	return *out, nil
}
