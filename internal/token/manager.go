// Package token keeps account access tokens usable. Expiry is observed
// lazily when a caller asks; an expired or force-invalidated token is
// replaced by one exchange chain: refresh-token grant first, full password
// re-authentication when the grant fails or no refresh token is stored.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/user/fleetdeck/internal/identity"
	"github.com/user/fleetdeck/internal/store"
)

// Exchanger trades stored credentials for fresh tokens. *identity.Client
// satisfies it.
type Exchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*identity.Credentials, error)
	SignIn(ctx context.Context, email, password string) (*identity.Credentials, error)
}

// Manager owns the token lifecycle for every stored account. A per-account
// lock serializes exchanges, so two concurrent callers on one account
// perform at most one exchange between them.
type Manager struct {
	store    *store.Store
	exchange Exchanger

	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Manager backed by the given store and exchanger.
func New(s *store.Store, ex Exchanger) *Manager {
	return &Manager{
		store:    s,
		exchange: ex,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// EnsureValid returns an access token safe to send upstream. With
// force=false a present, unexpired token is returned with no network call.
// Otherwise one exchange chain runs and the new bundle is persisted before
// EnsureValid returns. Callers that observe an authorization failure
// downstream call EnsureValid(ctx, id, true) and retry exactly once.
func (m *Manager) EnsureValid(ctx context.Context, id string, force bool) (string, error) {
	if !force {
		ts, err := m.store.Token(id)
		if err != nil {
			return "", err
		}
		if ts.Usable(m.now()) {
			return ts.AccessToken, nil
		}
	}

	l := m.lock(id)
	l.Lock()
	defer l.Unlock()

	ts, err := m.store.Token(id)
	if err != nil {
		return "", err
	}
	// Whoever held the lock before us may have exchanged already.
	if !force && ts.Usable(m.now()) {
		return ts.AccessToken, nil
	}

	creds, err := m.exchangeChain(ctx, id, ts)
	if err != nil {
		return "", err
	}

	next := store.TokenState{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    tokenExpiry(creds),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = ts.RefreshToken
	}
	if err := m.store.UpdateTokens(id, next); err != nil {
		return "", err
	}
	slog.Debug("token exchanged", "account_id", id, "expires_at", next.ExpiresAt)
	return next.AccessToken, nil
}

// Forget drops the lock entry for a deleted account.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()
}

func (m *Manager) lock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Manager) exchangeChain(ctx context.Context, id string, ts store.TokenState) (*identity.Credentials, error) {
	if ts.RefreshToken != "" {
		creds, err := m.exchange.Refresh(ctx, ts.RefreshToken)
		if err == nil {
			return creds, nil
		}
		slog.Warn("token refresh failed; re-authenticating", "account_id", id, "error", err)
	}

	acct, err := m.store.GetAccount(id)
	if err != nil {
		return nil, err
	}
	password, err := m.store.Password(id)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("token: account %s has no stored password to re-authenticate with", id)
	}

	creds, err := m.exchange.SignIn(ctx, acct.Email, password)
	if err != nil {
		return nil, fmt.Errorf("token: re-authentication failed for %s: %w", id, err)
	}
	return creds, nil
}

// tokenExpiry resolves the expiry of a fresh bundle: the exchange's value
// when present, otherwise the exp claim of the token itself.
func tokenExpiry(creds *identity.Credentials) time.Time {
	if !creds.ExpiresAt.IsZero() {
		return creds.ExpiresAt
	}
	return claimExpiry(creds.AccessToken)
}

// claimExpiry pulls exp out of a JWT without verifying the signature. The
// token was just issued over TLS; only the deadline matters here.
func claimExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time.UTC()
}
