package ledger

import (
	"context"
	"net/url"

	"github.com/accordsai/negotiation/pkg/httpx"
	"github.com/accordsai/negotiation/pkg/identity"
)

// Client reaches a ledger service over HTTP.
type Client struct {
	http *httpx.Client
}

func NewClient(baseURL string) *Client {
	return &Client{http: httpx.NewClient(baseURL)}
}

type HistoryResponse struct {
	Transactions []FinalizedTransaction `json:"transactions"`
}

func (c *Client) CurrentState(ctx context.Context, id string) (StateAndRef, error) {
	out, err := httpx.Get[StateAndRef](ctx, c.http, "/ledger/states/"+url.PathEscape(id))
	if err != nil {
		return StateAndRef{}, err
	}
	return *out, nil
}

func (c *Client) History(ctx context.Context, id string) ([]FinalizedTransaction, error) {
	out, err := httpx.Get[HistoryResponse](ctx, c.http, "/ledger/states/"+url.PathEscape(id)+"/history")
	if err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

func (c *Client) Submit(ctx context.Context, tx Transaction) (FinalizedTransaction, error) {
	out, err := httpx.Post[FinalizedTransaction](ctx, c.http, "/ledger/transactions", tx)
	if err != nil {
		return FinalizedTransaction{}, err
	}
	return *out, nil
}

func (c *Client) Register(ctx context.Context, reg identity.Registration) error {
	_, err := httpx.Post[identity.Party](ctx, c.http, "/ledger/parties", reg)
	return err
}

func (c *Client) ResolveWellKnown(ctx context.Context, ref string) (identity.Party, error) {
	out, err := httpx.Get[identity.Party](ctx, c.http, "/ledger/parties/"+url.PathEscape(ref))
	if err != nil {
		return identity.Party{}, err
	}
	return *out, nil
}

var _ Substrate = (*Client)(nil)
