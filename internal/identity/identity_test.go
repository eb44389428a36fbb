package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c := New("test-key")
	c.TokenURL = ts.URL + "/v1/token"
	c.SignInURL = ts.URL + "/v1/accounts:signInWithPassword"
	return c
}

func TestRefresh(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("key = %q, want test-key", got)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "rt-old" {
			t.Errorf("refresh_token = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "at-new",
			"refresh_token": "rt-new",
			"expires_in":    "3600",
		})
	})

	creds, err := c.Refresh(context.Background(), "rt-old")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if creds.AccessToken != "at-new" {
		t.Errorf("access token = %q, want at-new", creds.AccessToken)
	}
	if creds.RefreshToken != "rt-new" {
		t.Errorf("refresh token = %q, want rt-new", creds.RefreshToken)
	}
	ttl := time.Until(creds.ExpiresAt)
	if ttl < 59*time.Minute || ttl > 61*time.Minute {
		t.Errorf("ttl = %s, want ~1h", ttl)
	}
}

func TestRefreshRejected(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"code":    400,
				"message": "TOKEN_EXPIRED",
			},
		})
	})

	_, err := c.Refresh(context.Background(), "rt-dead")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRejected(err) {
		t.Fatalf("IsRejected = false for %v", err)
	}
	var ee *ExchangeError
	if !errors.As(err, &ee) {
		t.Fatalf("error type = %T", err)
	}
	if ee.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", ee.Status)
	}
	if ee.Message != "TOKEN_EXPIRED" {
		t.Errorf("message = %q, want TOKEN_EXPIRED", ee.Message)
	}
}

func TestSignIn(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email             string `json:"email"`
			Password          string `json:"password"`
			ReturnSecureToken bool   `json:"returnSecureToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Email != "a@example.com" || req.Password != "hunter2" {
			t.Errorf("credentials = %q / %q", req.Email, req.Password)
		}
		if !req.ReturnSecureToken {
			t.Error("returnSecureToken not set")
		}
		json.NewEncoder(w).Encode(map[string]string{
			"idToken":      "id-tok",
			"refreshToken": "rt-fresh",
			"expiresIn":    "3600",
		})
	})

	creds, err := c.SignIn(context.Background(), "a@example.com", "hunter2")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if creds.AccessToken != "id-tok" {
		t.Errorf("access token = %q, want id-tok", creds.AccessToken)
	}
	if creds.RefreshToken != "rt-fresh" {
		t.Errorf("refresh token = %q, want rt-fresh", creds.RefreshToken)
	}
}

func TestSignInRejected(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "INVALID_PASSWORD"},
		})
	})

	_, err := c.SignIn(context.Background(), "a@example.com", "wrong")
	if !IsRejected(err) {
		t.Fatalf("IsRejected = false for %v", err)
	}
}

func TestRejectedNonJSONBody(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream maintenance\n"))
	})

	_, err := c.Refresh(context.Background(), "rt")
	var ee *ExchangeError
	if !errors.As(err, &ee) {
		t.Fatalf("error type = %T", err)
	}
	if ee.Message != "upstream maintenance" {
		t.Errorf("message = %q", ee.Message)
	}
}

func TestTransportErrorIsNotRejection(t *testing.T) {
	c := New("test-key")
	c.TokenURL = "http://127.0.0.1:1/v1/token"

	_, err := c.Refresh(context.Background(), "rt")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRejected(err) {
		t.Fatalf("transport failure classified as rejection: %v", err)
	}
}

func TestMissingExpiresIn(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "at",
			"refresh_token": "rt",
		})
	})

	creds, err := c.Refresh(context.Background(), "rt-old")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !creds.ExpiresAt.IsZero() {
		t.Errorf("expiry = %s, want zero", creds.ExpiresAt)
	}
}
