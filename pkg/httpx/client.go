package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/accordsai/negotiation/pkg/errors"
)

// Client is a small JSON-over-HTTP client shared by the ledger, peer and
// operator clients.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// Header is added to every request, e.g. Authorization.
	Header http.Header
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Header:     http.Header{},
	}
}

type errorBody struct {
	Error *errors.Wire `json:"error"`
}

// Get issues a GET for path and decodes the response into T.
func Get[T any](ctx context.Context, c *Client, path string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return DoJSON[T](c, req)
}

// Post marshals in as the request body and decodes the response into T.
func Post[T any](ctx context.Context, c *Client, path string, in any) (*T, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return DoJSON[T](c, req)
}

// DoJSON sends req and decodes a 2xx body into T. Error bodies written by
// WriteDomainError come back as the typed error they were built from.
func DoJSON[T any](c *Client, req *http.Request) (*T, error) {
	for k, vs := range c.Header {
		if _, set := req.Header[k]; !set {
			req.Header[k] = vs
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error != nil && eb.Error.Code != "" {
			return nil, errors.FromWire(*eb.Error)
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
