package store

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCreateAndGetAccount(t *testing.T) {
	s := newTestStore(t)

	exp := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	created, err := s.CreateAccount(CreateAccountParams{
		Email:        "alice@example.com",
		Password:     "hunter2",
		AccessToken:  "tok-access",
		RefreshToken: "tok-refresh",
		ExpiresAt:    &exp,
		APIKey:       "key-1",
		Note:         "primary",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if _, err := uuid.Parse(created.ID); err != nil {
		t.Fatalf("expected uuid id, got %q", created.ID)
	}
	if !created.HasToken {
		t.Fatal("expected HasToken")
	}
	if created.TokenExpiresAt == nil || !created.TokenExpiresAt.Equal(exp) {
		t.Fatalf("expected token expiry %v, got %v", exp, created.TokenExpiresAt)
	}

	got, err := s.GetAccount(created.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Email != "alice@example.com" || got.APIKey != "key-1" || got.Note != "primary" {
		t.Fatalf("unexpected account: %+v", got)
	}

	pw, err := s.Password(created.ID)
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if pw != "hunter2" {
		t.Fatalf("expected hunter2, got %q", pw)
	}

	tok, err := s.Token(created.ID)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "tok-access" || tok.RefreshToken != "tok-refresh" {
		t.Fatalf("unexpected token state: %+v", tok)
	}
	if !tok.ExpiresAt.Equal(exp) {
		t.Fatalf("expected expiry %v, got %v", exp, tok.ExpiresAt)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name   string
		params CreateAccountParams
	}{
		{name: "empty email", params: CreateAccountParams{Email: ""}},
		{name: "not an email", params: CreateAccountParams{Email: "nope"}},
		{name: "bad id", params: CreateAccountParams{ID: "not-a-uuid", Email: "a@b.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateAccount(tt.params); !IsInvalid(err) {
				t.Fatalf("expected invalid error, got %v", err)
			}
		})
	}
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateAccount(CreateAccountParams{Email: "dup@example.com"}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	_, err := s.CreateAccount(CreateAccountParams{Email: "dup@example.com"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAccount(uuid.NewString())
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateAccount(t *testing.T) {
	s := newTestStore(t)

	a, err := s.CreateAccount(CreateAccountParams{Email: "update@example.com", Password: "old"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	email := "renamed@example.com"
	pw := "new-password"
	disabled := true
	note := "rotated"
	got, err := s.UpdateAccount(a.ID, UpdateAccountParams{
		Email:    &email,
		Password: &pw,
		Disabled: &disabled,
		Note:     &note,
	})
	if err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if got.Email != email || !got.Disabled || got.Note != note {
		t.Fatalf("unexpected account: %+v", got)
	}

	stored, err := s.Password(a.ID)
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if stored != pw {
		t.Fatalf("expected %q, got %q", pw, stored)
	}

	if _, err := s.UpdateAccount(uuid.NewString(), UpdateAccountParams{Note: &note}); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListAccountsFilters(t *testing.T) {
	s := newTestStore(t)

	for _, email := range []string{"a@ex.com", "b@ex.com", "c@other.org"} {
		if _, err := s.CreateAccount(CreateAccountParams{Email: email}); err != nil {
			t.Fatalf("CreateAccount %s: %v", email, err)
		}
	}
	b, err := s.GetAccountByEmail("b@ex.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail: %v", err)
	}
	on := true
	if _, err := s.UpdateAccount(b.ID, UpdateAccountParams{Disabled: &on}); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	all, err := s.ListAccounts(ListAccountsFilter{})
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(all))
	}

	enabled := false
	got, err := s.ListAccounts(ListAccountsFilter{Disabled: &enabled})
	if err != nil {
		t.Fatalf("ListAccounts enabled: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 enabled accounts, got %d", len(got))
	}

	got, err = s.ListAccounts(ListAccountsFilter{Search: "@ex.com"})
	if err != nil {
		t.Fatalf("ListAccounts search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	for _, a := range got {
		if !strings.HasSuffix(a.Email, "@ex.com") {
			t.Fatalf("unexpected match %s", a.Email)
		}
	}

	got, err = s.ListAccounts(ListAccountsFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListAccounts paged: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 account, got %d", len(got))
	}
}

func TestUpdateTokens(t *testing.T) {
	s := newTestStore(t)

	a, err := s.CreateAccount(CreateAccountParams{Email: "tok@example.com"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if a.HasToken {
		t.Fatal("fresh account should have no token")
	}

	exp := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Millisecond)
	state := TokenState{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresAt: exp}
	if err := s.UpdateTokens(a.ID, state); err != nil {
		t.Fatalf("UpdateTokens: %v", err)
	}

	got, err := s.Token(a.ID)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got.AccessToken != "new-access" || got.RefreshToken != "new-refresh" || !got.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected state: %+v", got)
	}

	reloaded, err := s.GetAccount(a.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !reloaded.HasToken {
		t.Fatal("expected HasToken after update")
	}

	if err := s.UpdateTokens(uuid.NewString(), state); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTokenStateUsable(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		state TokenState
		want  bool
	}{
		{name: "empty", state: TokenState{}, want: false},
		{name: "no expiry", state: TokenState{AccessToken: "t"}, want: true},
		{name: "fresh", state: TokenState{AccessToken: "t", ExpiresAt: now.Add(time.Hour)}, want: true},
		{name: "expired", state: TokenState{AccessToken: "t", ExpiresAt: now.Add(-time.Minute)}, want: false},
		{name: "inside leeway", state: TokenState{AccessToken: "t", ExpiresAt: now.Add(5 * time.Second)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Usable(now); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestUpdateMirrorAndSeatCount(t *testing.T) {
	s := newTestStore(t)

	a, err := s.CreateAccount(CreateAccountParams{Email: "mirror@example.com"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	end := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Millisecond)
	err = s.UpdateMirror(a.ID, MirrorParams{
		PlanName:        "teams",
		CreditsUsed:     120,
		CreditsTotal:    500,
		TeamOwner:       true,
		SubscriptionEnd: &end,
	})
	if err != nil {
		t.Fatalf("UpdateMirror: %v", err)
	}
	if err := s.SetLastSeatCount(a.ID, 19); err != nil {
		t.Fatalf("SetLastSeatCount: %v", err)
	}

	got, err := s.GetAccount(a.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.PlanName != "teams" || got.CreditsUsed != 120 || got.CreditsTotal != 500 {
		t.Fatalf("unexpected mirror fields: %+v", got)
	}
	if !got.TeamOwner || got.LastSeatCount != 19 {
		t.Fatalf("unexpected mirror fields: %+v", got)
	}
	if got.SubscriptionEnd == nil || !got.SubscriptionEnd.Equal(end) {
		t.Fatalf("expected subscription end %v, got %v", end, got.SubscriptionEnd)
	}

	key := "wk-123"
	disabled := true
	err = s.UpdateMirror(a.ID, MirrorParams{
		PlanName: "teams", CreditsUsed: 130, CreditsTotal: 500,
		TeamOwner: true, SubscriptionEnd: &end,
		APIKey: &key, Disabled: &disabled,
	})
	if err != nil {
		t.Fatalf("UpdateMirror with profile fields: %v", err)
	}
	got, err = s.GetAccount(a.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.APIKey != "wk-123" || !got.Disabled || got.CreditsUsed != 130 {
		t.Fatalf("unexpected profile mirror fields: %+v", got)
	}
}

func TestDeleteAccount(t *testing.T) {
	s := newTestStore(t)

	a, err := s.CreateAccount(CreateAccountParams{Email: "gone@example.com"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := s.DeleteAccount(a.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := s.GetAccount(a.ID); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.DeleteAccount(a.ID); !IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestExpiringTokenIDs(t *testing.T) {
	s := newTestStore(t)

	soon := time.Now().UTC().Add(5 * time.Minute)
	later := time.Now().UTC().Add(2 * time.Hour)

	a, _ := s.CreateAccount(CreateAccountParams{Email: "soon@example.com"})
	if err := s.UpdateTokens(a.ID, TokenState{AccessToken: "t", ExpiresAt: soon}); err != nil {
		t.Fatalf("UpdateTokens: %v", err)
	}
	b, _ := s.CreateAccount(CreateAccountParams{Email: "later@example.com"})
	if err := s.UpdateTokens(b.ID, TokenState{AccessToken: "t", ExpiresAt: later}); err != nil {
		t.Fatalf("UpdateTokens: %v", err)
	}
	// No expiry recorded: never selected for proactive refresh.
	if _, err := s.CreateAccount(CreateAccountParams{Email: "unknown@example.com", AccessToken: "t"}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	// Disabled accounts are skipped.
	c, _ := s.CreateAccount(CreateAccountParams{Email: "off@example.com"})
	if err := s.UpdateTokens(c.ID, TokenState{AccessToken: "t", ExpiresAt: soon}); err != nil {
		t.Fatalf("UpdateTokens: %v", err)
	}
	on := true
	if _, err := s.UpdateAccount(c.ID, UpdateAccountParams{Disabled: &on}); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	ids, err := s.ExpiringTokenIDs(time.Hour)
	if err != nil {
		t.Fatalf("ExpiringTokenIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != a.ID {
		t.Fatalf("expected [%s], got %v", a.ID, ids)
	}
}

func TestCountAccounts(t *testing.T) {
	s := newTestStore(t)

	for i, email := range []string{"one@ex.com", "two@ex.com"} {
		a, err := s.CreateAccount(CreateAccountParams{Email: email})
		if err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
		if i == 0 {
			on := true
			if _, err := s.UpdateAccount(a.ID, UpdateAccountParams{Disabled: &on}); err != nil {
				t.Fatalf("UpdateAccount: %v", err)
			}
		}
	}

	total, disabled, err := s.CountAccounts()
	if err != nil {
		t.Fatalf("CountAccounts: %v", err)
	}
	if total != 2 || disabled != 1 {
		t.Fatalf("expected 2/1, got %d/%d", total, disabled)
	}
}
