package upstream

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/user/fleetdeck/internal/store"
	"github.com/user/fleetdeck/internal/wire"
)

// captureHandler records the last request body and headers and answers with
// the given status and wire-encoded body.
type captureHandler struct {
	mu     sync.Mutex
	status int
	body   []byte

	t       *testing.T
	lastMsg wire.Message
	lastReq *http.Request
}

func newCapture(t *testing.T, status int, body []byte) *captureHandler {
	return &captureHandler{t: t, status: status, body: body}
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastReq = r
	h.lastMsg = decodeRequest(h.t, r)
	w.WriteHeader(h.status)
	if len(h.body) > 0 {
		w.Write(h.body)
	}
}

func (h *captureHandler) msg() wire.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastMsg
}

func (h *captureHandler) path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastReq == nil {
		return ""
	}
	return h.lastReq.URL.Path
}

func (h *captureHandler) header(name string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastReq == nil {
		return ""
	}
	return h.lastReq.Header.Get(name)
}

func TestUpdatePlanBody(t *testing.T) {
	h := newCapture(t, http.StatusOK, nil)
	c, s, _ := newTestClient(t, h)
	acct := seedAccount(t, s, store.CreateAccountParams{})

	_, err := c.UpdatePlan(context.Background(), acct.ID, PlanChange{Tier: "teams", Period: "yearly"})
	if err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}

	msg := h.msg()
	if tok, _ := msg.String(1); tok != "tok-1" {
		t.Errorf("token = %q", tok)
	}
	if v, _ := msg.Uint(2); v != 2 {
		t.Errorf("price period = %d, want 2 (yearly)", v)
	}
	if _, ok := msg.Uint(3); ok {
		t.Error("preview flag present, want omitted when false")
	}
	if v, _ := msg.Uint(4); v != 2 {
		t.Errorf("payment period = %d, want 2", v)
	}
	if v, _ := msg.Uint(5); v != 1 {
		t.Errorf("tier = %d, want 1 (teams)", v)
	}
}

func TestUpdatePlanPreviewFlag(t *testing.T) {
	h := newCapture(t, http.StatusOK, nil)
	c, s, _ := newTestClient(t, h)
	acct := seedAccount(t, s, store.CreateAccountParams{})

	_, err := c.UpdatePlan(context.Background(), acct.ID, PlanChange{Tier: "pro", Preview: true})
	if err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}

	msg := h.msg()
	if v, ok := msg.Uint(3); !ok || v != 1 {
		t.Errorf("preview flag = %d (present %t), want 1", v, ok)
	}
	if v, _ := msg.Uint(2); v != 1 {
		t.Errorf("price period = %d, want 1 (monthly default)", v)
	}
	if v, _ := msg.Uint(5); v != 2 {
		t.Errorf("tier = %d, want 2 (pro)", v)
	}
}

func TestUpdatePlanUnknownTierDefaults(t *testing.T) {
	h := newCapture(t, http.StatusOK, nil)
	c, s, _ := newTestClient(t, h)
	acct := seedAccount(t, s, store.CreateAccountParams{})

	if _, err := c.UpdatePlan(context.Background(), acct.ID, PlanChange{Tier: "bogus"}); err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	if v, _ := h.msg().Uint(5); v != defaultPlanTier {
		t.Errorf("tier = %d, want default %d", v, defaultPlanTier)
	}
}

func TestUpdatePlanRejectsBadPeriod(t *testing.T) {
	c, s, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request for invalid period")
	}))
	acct := seedAccount(t, s, store.CreateAccountParams{})

	_, err := c.UpdatePlan(context.Background(), acct.ID, PlanChange{Tier: "pro", Period: "weekly"})
	if !IsValidationError(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestCancelPlanBody(t *testing.T) {
	h := newCapture(t, http.StatusOK, nil)
	c, s, _ := newTestClient(t, h)
	acct := seedAccount(t, s, store.CreateAccountParams{})

	if _, err := c.CancelPlan(context.Background(), acct.ID, "too expensive"); err != nil {
		t.Fatalf("CancelPlan: %v", err)
	}

	msg := h.msg()
	if v, _ := msg.Uint(2); v != 1 {
		t.Errorf("cancel flag = %d, want 1", v)
	}
	if reason, _ := msg.String(5); reason != "too expensive" {
		t.Errorf("reason = %q", reason)
	}
	if !strings.HasSuffix(h.path(), "/CancelPlan") {
		t.Errorf("path = %q", h.path())
	}
}

func TestResumePlanReusesCancelPath(t *testing.T) {
	h := newCapture(t, http.StatusOK, nil)
	c, s, _ := newTestClient(t, h)
	acct := seedAccount(t, s, store.CreateAccountParams{})

	if _, err := c.ResumePlan(context.Background(), acct.ID); err != nil {
		t.Fatalf("ResumePlan: %v", err)
	}

	if !strings.HasSuffix(h.path(), "/CancelPlan") {
		t.Errorf("path = %q, want the CancelPlan endpoint", h.path())
	}
	msg := h.msg()
	if v, ok := msg.Uint(3); !ok || v != 1 {
		t.Errorf("resume flag = %d (present %t), want 1", v, ok)
	}
	if _, ok := msg.Uint(2); ok {
		t.Error("cancel flag present on resume")
	}
}

func TestSubscribeToPlanTeams(t *testing.T) {
	respBody := wire.AppendString(nil, subscribeFieldCheckoutURL, "https://pay.example.com/cs_123")
	h := newCapture(t, http.StatusOK, respBody)
	c, s, _ := newTestClient(t, h)
	acct := seedAccount(t, s, store.CreateAccountParams{})

	res, err := c.SubscribeToPlan(context.Background(), acct.ID, SubscribeParams{
		Tier:           "teams",
		Period:         "yearly",
		Seats:          5,
		TeamName:       "windward",
		Trial:          true,
		TurnstileToken: "ts-tok",
	})
	if err != nil {
		t.Fatalf("SubscribeToPlan: %v", err)
	}
	if res.CheckoutURL != "https://pay.example.com/cs_123" {
		t.Errorf("checkout url = %q", res.CheckoutURL)
	}

	msg := h.msg()
	if v, ok := msg.Uint(3); !ok || v != 1 {
		t.Errorf("trial flag = %d (present %t), want 1", v, ok)
	}
	success, _ := msg.String(4)
	cancel, _ := msg.String(5)
	if !strings.Contains(success, "plan_tier=teams") || !strings.HasPrefix(success, "https://windlass.io/billing/payment-success") {
		t.Errorf("success url = %q", success)
	}
	if !strings.Contains(cancel, "plan_cancelled=true") || !strings.Contains(cancel, "plan_tier=teams") {
		t.Errorf("cancel url = %q", cancel)
	}
	if v, _ := msg.Uint(6); v != 5 {
		t.Errorf("seats = %d, want 5", v)
	}
	if name, _ := msg.String(7); name != "windward" {
		t.Errorf("team name = %q", name)
	}
	if v, _ := msg.Uint(8); v != 1 {
		t.Errorf("tier = %d, want 1", v)
	}
	if v, _ := msg.Uint(9); v != 2 {
		t.Errorf("period = %d, want 2", v)
	}
	if ts, _ := msg.String(10); ts != "ts-tok" {
		t.Errorf("turnstile token = %q", ts)
	}

	if got := h.header("Authorization"); got != "Bearer tok-1" {
		t.Errorf("authorization = %q", got)
	}
	if got := h.header("X-Auth-Token"); got != "tok-1" {
		t.Errorf("x-auth-token = %q", got)
	}
}

func TestSubscribeToPlanProOmitsSeats(t *testing.T) {
	h := newCapture(t, http.StatusOK, nil)
	c, s, _ := newTestClient(t, h)
	acct := seedAccount(t, s, store.CreateAccountParams{})

	res, err := c.SubscribeToPlan(context.Background(), acct.ID, SubscribeParams{Tier: "pro", Seats: 3})
	if err != nil {
		t.Fatalf("SubscribeToPlan: %v", err)
	}
	if res.CheckoutURL != "" {
		t.Errorf("checkout url = %q, want empty for empty response", res.CheckoutURL)
	}

	msg := h.msg()
	if _, ok := msg.Uint(6); ok {
		t.Error("seats encoded for an individual tier")
	}
	if success, _ := msg.String(4); !strings.Contains(success, "plan_tier=pro") {
		t.Errorf("success url = %q", success)
	}
	if _, ok := msg.Uint(3); ok {
		t.Error("trial flag present, want omitted")
	}
	if name, ok := msg.String(7); ok {
		t.Errorf("team name %q present, want omitted", name)
	}
}
