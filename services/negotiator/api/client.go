package api

import (
	"context"
	"net/url"

	"github.com/accordsai/negotiation/pkg/httpx"
	"github.com/accordsai/negotiation/services/negotiator/internal/idempotency"
)

// Client calls a node's operator API.
type Client struct {
	http *httpx.Client
}

// NewClient returns a Client for the node at baseURL. A non-empty token is
// sent as a bearer token.
func NewClient(baseURL, token string) *Client {
	c := httpx.NewClient(baseURL)
	if token != "" {
		c.Header.Set("Authorization", "Bearer "+token)
	}
	return &Client{http: c}
}

// WithIdempotencyKey returns a copy of c that sends key on every POST.
func (c *Client) WithIdempotencyKey(key string) *Client {
	h := c.http.Header.Clone()
	if key != "" {
		h.Set(idempotency.Header, key)
	}
	return &Client{http: &httpx.Client{BaseURL: c.http.BaseURL, HTTPClient: c.http.HTTPClient, Header: h}}
}

func negotiationPath(id, action string) string {
	p := "/negotiations/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	return httpx.Post[StartResponse](ctx, c.http, "/negotiations", req)
}

func (c *Client) Commit(ctx context.Context, id, value string) (*StatusResponse, error) {
	return httpx.Post[StatusResponse](ctx, c.http, negotiationPath(id, "commit"), ValueRequest{Value: value})
}

func (c *Client) Modify(ctx context.Context, id, value string) (*StatusResponse, error) {
	return httpx.Post[StatusResponse](ctx, c.http, negotiationPath(id, "modify"), ValueRequest{Value: value})
}

func (c *Client) Reveal(ctx context.Context, id string) (*RevealResponse, error) {
	return httpx.Post[RevealResponse](ctx, c.http, negotiationPath(id, "reveal"), nil)
}

func (c *Client) Reconcile(ctx context.Context, id string) (*ReconcileResponse, error) {
	return httpx.Post[ReconcileResponse](ctx, c.http, negotiationPath(id, "reconcile"), nil)
}

func (c *Client) Status(ctx context.Context, id string) (*StatusResponse, error) {
	return httpx.Get[StatusResponse](ctx, c.http, negotiationPath(id, ""))
}
