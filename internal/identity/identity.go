// Package identity exchanges stored account credentials for fresh access
// tokens against the vendor identity service. Two exchanges exist: the
// refresh-token grant, and a full password sign-in used when the refresh
// token has been revoked.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTokenURL  = "https://securetoken.windlass.io/v1/token"
	defaultSignInURL = "https://identity.windlass.io/v1/accounts:signInWithPassword"
)

// Credentials is the result of a successful exchange. The service rotates
// the refresh token on every grant, so callers must persist the returned one.
// ExpiresAt is zero when the response carried no usable expires_in; callers
// decide how to derive a lifetime then.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ExchangeError is returned when the identity service rejects an exchange,
// as opposed to the request failing in transit.
type ExchangeError struct {
	Status  int
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("identity: exchange rejected (%d): %s", e.Status, e.Message)
}

// IsRejected reports whether err is a rejection from the identity service.
func IsRejected(err error) bool {
	var ee *ExchangeError
	return errors.As(err, &ee)
}

// Client is a thin HTTP wrapper for the identity service.
type Client struct {
	TokenURL   string
	SignInURL  string
	APIKey     string
	HTTPClient *http.Client
}

// New creates a client against the production endpoints.
func New(apiKey string) *Client {
	return &Client{
		TokenURL:  defaultTokenURL,
		SignInURL: defaultSignInURL,
		APIKey:    apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Refresh trades a refresh token for a fresh access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
	}
	err := c.post(ctx, c.TokenURL, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), &out)
	if err != nil {
		return nil, err
	}

	return &Credentials{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    expiry(out.ExpiresIn),
	}, nil
}

// SignIn performs a full password sign-in.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Credentials, error) {
	body, err := json.Marshal(map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, fmt.Errorf("identity: marshal sign-in request: %w", err)
	}

	var out struct {
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    string `json:"expiresIn"`
	}
	if err := c.post(ctx, c.SignInURL, "application/json", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}

	return &Credentials{
		AccessToken:  out.IDToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    expiry(out.ExpiresIn),
	}, nil
}

// expiry converts the service's expires_in (seconds, sent as a quoted
// string) into an absolute deadline. Zero when absent or unparseable.
func expiry(expiresIn string) time.Time {
	secs, err := strconv.ParseInt(expiresIn, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().Add(time.Duration(secs) * time.Second)
}

func (c *Client) post(ctx context.Context, rawURL, contentType string, body io.Reader, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		rawURL+"?key="+url.QueryEscape(c.APIKey), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("identity: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		json.Unmarshal(data, &apiErr)
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return &ExchangeError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("identity: decode response: %w", err)
	}
	return nil
}
