package store

import "time"

// tokenLeeway is how close to expiry a token is still considered usable.
// Refreshing a few seconds early avoids racing the upstream clock.
const tokenLeeway = 30 * time.Second

// Account is a managed vendor account. Secrets are stored encrypted and are
// not part of this struct; fetch them with Password and Token.
type Account struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	PlanName        string     `json:"plan_name,omitempty"`
	CreditsUsed     int64      `json:"credits_used"`
	CreditsTotal    int64      `json:"credits_total"`
	LastSeatCount   int        `json:"last_seat_count"`
	TeamOwner       bool       `json:"team_owner"`
	Disabled        bool       `json:"disabled"`
	APIKey          string     `json:"api_key,omitempty"`
	Note            string     `json:"note,omitempty"`
	HasToken        bool       `json:"has_token"`
	TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TokenState is the decrypted token bundle for one account.
type TokenState struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is zero when the upstream reported no lifetime; such tokens
	// are used as-is until a 401 forces a refresh.
	ExpiresAt time.Time
}

// Usable reports whether the access token can be sent without refreshing
// first: present and, when the expiry is known, not within leeway of it.
func (t TokenState) Usable(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(tokenLeeway).Before(t.ExpiresAt)
}

// CreateAccountParams are the fields accepted when registering an account.
// ID is optional; a random UUID is assigned when empty.
type CreateAccountParams struct {
	ID           string     `json:"id,omitempty"`
	Email        string     `json:"email"`
	Password     string     `json:"password,omitempty"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	APIKey       string     `json:"api_key,omitempty"`
	Note         string     `json:"note,omitempty"`
}

// UpdateAccountParams are the mutable account fields; nil means unchanged.
type UpdateAccountParams struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	APIKey   *string `json:"api_key,omitempty"`
	Note     *string `json:"note,omitempty"`
	Disabled *bool   `json:"disabled,omitempty"`
}

// MirrorParams are the profile fields mirrored from the upstream after a
// successful profile fetch. APIKey and Disabled are nil when the response
// did not carry them (the lightweight plan-status fetch).
type MirrorParams struct {
	PlanName        string
	CreditsUsed     int64
	CreditsTotal    int64
	TeamOwner       bool
	SubscriptionEnd *time.Time
	APIKey          *string
	Disabled        *bool
}

// ListAccountsFilter narrows ListAccounts. Zero values mean no filtering.
type ListAccountsFilter struct {
	Search   string // substring match on email and note
	Disabled *bool
	Limit    int
	Offset   int
}
