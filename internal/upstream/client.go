// Package upstream implements the vendor RPC surface: a schema-free binary
// codec on the wire, a static endpoint table, and one high-level operation
// per endpoint. Every call path shares the same response classification and
// the same 401 recovery policy (one forced token refresh, one retry).
package upstream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/user/fleetdeck/internal/store"
	"github.com/user/fleetdeck/internal/wire"
)

// TokenSource supplies valid access tokens for stored accounts.
// *token.Manager satisfies it.
type TokenSource interface {
	// EnsureValid returns a usable access token for the account, exchanging
	// credentials first when force is set or the stored token is stale.
	EnsureValid(ctx context.Context, id string, force bool) (string, error)
	// Forget drops any per-account state held for the id.
	Forget(id string)
}

// Client invokes vendor endpoints on behalf of stored accounts.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	store   *store.Store
}

// New builds a Client against the production backend. Options override the
// base URL and transport.
func New(s *store.Store, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    defaultHTTPClient(),
		tokens:  tokens,
		store:   s,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is one classified endpoint response. A Result only exists for
// transport-successful calls; everything else surfaces as a typed error.
type Result struct {
	StatusCode int
	Msg        wire.Message // nil when the body was empty or did not decode
	Raw        []byte       // body exactly as received
	DecodeErr  error        // non-nil when a 200 body failed to decode
}

// invoke resolves a token, sends one request, and retries exactly once after
// a 401 by forcing a credential exchange. build re-encodes the request body
// so the retry carries the fresh token.
func (c *Client) invoke(ctx context.Context, ep endpoint, accountID string, build func(token string) []byte) (*Result, error) {
	token, err := c.tokens.EnsureValid(ctx, accountID, false)
	if err != nil {
		return nil, err
	}
	res, err := c.send(ctx, ep, token, build(token))
	if err == nil || !IsAuthError(err) {
		return res, err
	}
	token, err = c.tokens.EnsureValid(ctx, accountID, true)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, ep, token, build(token))
}

func (c *Client) send(ctx context.Context, ep endpoint, token string, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+ep.Path, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/proto")
	req.Header.Set("Connect-Protocol-Version", "1")
	switch ep.Header {
	case headerAuthToken:
		req.Header.Set("X-Auth-Token", token)
	case headerBearerAndAuthToken:
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Auth-Token", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &AuthError{Msg: strings.TrimSpace(string(raw))}
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent:
		return nil, &UpstreamError{Status: resp.StatusCode, Body: raw}
	}

	res := &Result{StatusCode: resp.StatusCode, Raw: raw}
	if len(raw) == 0 {
		return res, nil
	}
	msg, err := wire.Decode(raw)
	if err != nil {
		// An HTTP 200 stays a success; callers get the raw bytes and the
		// decode error side by side.
		res.DecodeErr = err
		return res, nil
	}
	res.Msg = msg
	return res, nil
}
