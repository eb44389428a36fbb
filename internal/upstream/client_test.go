package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/user/fleetdeck/internal/store"
	"github.com/user/fleetdeck/internal/vault"
	"github.com/user/fleetdeck/internal/wire"
)

type fakeTokens struct {
	mu         sync.Mutex
	token      string
	forced     string // returned after a forced exchange, when set
	err        error
	calls      int
	forceCalls int
	forgotten  []string
}

func (f *fakeTokens) EnsureValid(_ context.Context, id string, force bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if force {
		f.forceCalls++
		if f.forced != "" {
			return f.forced, nil
		}
	}
	return f.token, nil
}

func (f *fakeTokens) Forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, id)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	t.Setenv("FLEETDECK_VAULT_PASSPHRASE", "test-passphrase")

	dir := t.TempDir()
	v, err := vault.Open(dir)
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	db, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.New(db, v)
}

// newTestClient wires a Client at a stub backend. The returned fakeTokens
// hands out "tok-1", or "tok-2" after a forced exchange.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *store.Store, *fakeTokens) {
	t.Helper()
	s := newTestStore(t)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ft := &fakeTokens{token: "tok-1", forced: "tok-2"}
	c := New(s, ft, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	return c, s, ft
}

func seedAccount(t *testing.T, s *store.Store, p store.CreateAccountParams) *store.Account {
	t.Helper()
	if p.Email == "" {
		p.Email = "seed@example.com"
	}
	acct, err := s.CreateAccount(p)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return acct
}

// decodeRequest reads and decodes the wire body of a captured request. It
// runs on handler goroutines, so failures use Errorf and yield a nil message
// whose accessors all report absent.
func decodeRequest(t *testing.T, r *http.Request) wire.Message {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Errorf("read request body: %v", err)
		return nil
	}
	msg, err := wire.Decode(body)
	if err != nil {
		t.Errorf("decode request body: %v", err)
		return nil
	}
	return msg
}

func TestRequestShape(t *testing.T) {
	var gotPath, gotContentType, gotProto, gotAuthToken string
	var gotBody wire.Message
	c, s, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotProto = r.Header.Get("Connect-Protocol-Version")
		gotAuthToken = r.Header.Get("X-Auth-Token")
		gotBody = decodeRequest(t, r)
		w.WriteHeader(http.StatusNoContent)
	}))
	acct := seedAccount(t, s, store.CreateAccountParams{})

	if _, err := c.GetCurrentUser(context.Background(), acct.ID); err != nil {
		t.Fatalf("GetCurrentUser: %v", err)
	}

	if want := "/wnd.seat_management_pb.SeatManagementService/GetCurrentUser"; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if gotContentType != "application/proto" {
		t.Errorf("content type = %q, want application/proto", gotContentType)
	}
	if gotProto != "1" {
		t.Errorf("connect-protocol-version = %q, want 1", gotProto)
	}
	if gotAuthToken != "tok-1" {
		t.Errorf("x-auth-token = %q, want tok-1", gotAuthToken)
	}
	if tok, _ := gotBody.String(1); tok != "tok-1" {
		t.Errorf("body token = %q, want tok-1", tok)
	}
	for _, num := range []int{2, 3, 4} {
		if v, ok := gotBody.Uint(num); !ok || v != 1 {
			t.Errorf("body field %d = %d (present %t), want 1", num, v, ok)
		}
	}
}

func TestUnauthorizedRecoveredOnce(t *testing.T) {
	var mu sync.Mutex
	var requests int
	var retryToken string
	c, s, ft := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		msg := decodeRequest(t, r)
		retryToken, _ = msg.String(1)
		w.WriteHeader(http.StatusOK)
	}))
	acct := seedAccount(t, s, store.CreateAccountParams{})

	if _, err := c.GetPlanStatus(context.Background(), acct.ID); err != nil {
		t.Fatalf("GetPlanStatus after 401: %v", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
	if ft.forceCalls != 1 {
		t.Errorf("forced exchanges = %d, want 1", ft.forceCalls)
	}
	if retryToken != "tok-2" {
		t.Errorf("retry body token = %q, want tok-2", retryToken)
	}
}

func TestUnauthorizedTwiceIsTerminal(t *testing.T) {
	var mu sync.Mutex
	var requests int
	c, s, ft := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		http.Error(w, "token revoked", http.StatusUnauthorized)
	}))
	acct := seedAccount(t, s, store.CreateAccountParams{})

	_, err := c.GetCurrentUser(context.Background(), acct.ID)
	if !IsAuthError(err) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want exactly 2", requests)
	}
	if ft.forceCalls != 1 {
		t.Errorf("forced exchanges = %d, want 1", ft.forceCalls)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	s := newTestStore(t)
	ft := &fakeTokens{token: "tok-1"}
	c := New(s, ft, WithBaseURL("http://127.0.0.1:1"), WithHTTPClient(&http.Client{}))
	acct := seedAccount(t, s, store.CreateAccountParams{})

	_, err := c.GetCurrentUser(context.Background(), acct.ID)
	if !IsNetworkError(err) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
}

func TestUpstreamErrorCarriesBody(t *testing.T) {
	c, s, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}))
	acct := seedAccount(t, s, store.CreateAccountParams{})

	_, err := c.GetCurrentUser(context.Background(), acct.ID)
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if ue.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", ue.Status)
	}
	if string(ue.Body) != "backend down\n" {
		t.Errorf("body = %q", ue.Body)
	}
}

func TestDecodeFailureKeepsSuccess(t *testing.T) {
	c, s, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte{0xff}) // unreadable leading tag
	}))
	acct := seedAccount(t, s, store.CreateAccountParams{})

	p, err := c.GetCurrentUser(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("GetCurrentUser: %v", err)
	}
	if p.DecodeError == "" {
		t.Error("DecodeError empty, want decode failure recorded")
	}
	if p.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", p.StatusCode)
	}
	if p.Email != "" || p.APIKey != "" {
		t.Errorf("profile fields set from undecodable body: %+v", p)
	}
}

func TestTokenFailureShortCircuits(t *testing.T) {
	var requests int
	c, s, ft := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	ft.err = io.ErrUnexpectedEOF
	acct := seedAccount(t, s, store.CreateAccountParams{})

	_, err := c.GetCurrentUser(context.Background(), acct.ID)
	if err == nil {
		t.Fatal("expected token source error to surface")
	}
	if requests != 0 {
		t.Errorf("requests = %d, want 0", requests)
	}
}
