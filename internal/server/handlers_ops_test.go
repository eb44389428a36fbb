package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/user/fleetdeck/internal/audit"
	"github.com/user/fleetdeck/internal/upstream"
	"github.com/user/fleetdeck/internal/wire"
)

func TestUpdateSeatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "seats@example.com")

	rr := doRequest(env.srv, "POST", "/api/v1/accounts/"+acct.ID+"/seats", map[string]any{
		"seat_count": 20,
		"attempts":   1,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var res upstream.SeatUpdateResult
	decodeResponse(t, rr, &res)
	if !res.Success || res.SeatCount != 20 || len(res.Attempts) != 1 {
		t.Errorf("result = %+v", res)
	}

	entries, err := env.audit.Recent(audit.Query{AccountID: acct.ID})
	if err != nil {
		t.Fatalf("audit.Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Op != "update_seats" || !entries[0].Success {
		t.Errorf("audit entries = %+v, want one successful update_seats", entries)
	}
}

func TestUpdateSeatsRejectsZeroCount(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "zero@example.com")

	rr := doRequest(env.srv, "POST", "/api/v1/accounts/"+acct.ID+"/seats", map[string]any{
		"seat_count": 0,
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body: %s", rr.Code, rr.Body.String())
	}
	if hits := env.vendor.hits(); len(hits) != 0 {
		t.Errorf("vendor hit despite invalid input: %v", hits)
	}
}

func TestResetCreditsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "reset@example.com")

	rr := doRequest(env.srv, "POST", "/api/v1/accounts/"+acct.ID+"/credits/reset", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var res upstream.ResetCreditsResult
	decodeResponse(t, rr, &res)
	if res.SeatCountUsed != 18 {
		t.Errorf("seat_count_used = %d, want first rotation entry 18", res.SeatCountUsed)
	}
}

func TestSubscribePlanEndpoint(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "subscribe@example.com")
	env.vendor.respond(http.StatusOK, wire.AppendString(nil, 1, "https://pay.example.com/c/123"))

	rr := doRequest(env.srv, "POST", "/api/v1/accounts/"+acct.ID+"/plan/subscribe", map[string]any{
		"tier":   "teams",
		"period": "monthly",
		"seats":  5,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var res upstream.SubscribeResult
	decodeResponse(t, rr, &res)
	if res.CheckoutURL != "https://pay.example.com/c/123" {
		t.Errorf("checkout_url = %q", res.CheckoutURL)
	}
}

func TestUpdatePlanBadPeriod(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "period@example.com")

	rr := doRequest(env.srv, "POST", "/api/v1/accounts/"+acct.ID+"/plan", map[string]any{
		"tier":   "pro",
		"period": "fortnightly",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body: %s", rr.Code, rr.Body.String())
	}
}

func TestGetModelsSurfaces(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "models@example.com")

	model := wire.AppendString(nil, 1, "Fast")
	model = wire.AppendString(model, 2, "fast-1")
	env.vendor.respond(http.StatusOK, wire.AppendMessage(nil, 1, model))

	rr := doRequest(env.srv, "GET", "/api/v1/accounts/"+acct.ID+"/models", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var res upstream.ModelList
	decodeResponse(t, rr, &res)
	if len(res.Models) != 1 || res.Models[0].Name != "fast-1" {
		t.Errorf("models = %+v", res.Models)
	}

	rr = doRequest(env.srv, "GET", "/api/v1/accounts/"+acct.ID+"/models?surface=command", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("command surface status = %d", rr.Code)
	}

	rr = doRequest(env.srv, "GET", "/api/v1/accounts/"+acct.ID+"/models?surface=editor", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown surface status = %d, want 400", rr.Code)
	}
}

func TestUpsertControlsRequiresTeam(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "controls@example.com")

	rr := doRequest(env.srv, "POST", "/api/v1/accounts/"+acct.ID+"/controls", map[string]any{
		"chat_models": []string{"Fast"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body: %s", rr.Code, rr.Body.String())
	}
}

func TestOneTimeAuthTokenEndpoint(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "ott@example.com")
	env.vendor.respond(http.StatusOK, wire.AppendString(nil, 1, "one-time-7f3a"))

	rr := doRequest(env.srv, "POST", "/api/v1/accounts/"+acct.ID+"/authtoken", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var res upstream.OneTimeToken
	decodeResponse(t, rr, &res)
	if res.Token != "one-time-7f3a" {
		t.Errorf("token = %q", res.Token)
	}

	if hits := env.vendor.hits(); len(hits) != 1 || !strings.Contains(hits[0], "GetOneTimeAuthToken") {
		t.Errorf("vendor hits = %v", hits)
	}
}
