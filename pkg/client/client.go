// Package client is a Go client for the fleetdeck daemon API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Batch operations accepted by StartBatch.
const (
	BatchRefreshTokens = "refresh-tokens"
	BatchResetCredits  = "reset-credits"
)

// Client is a thin HTTP wrapper for the fleetdeck daemon API.
type Client struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// New creates a client for the daemon at url. Set APIKey when the daemon
// was started with one.
func New(url string) *Client {
	return &Client{
		URL: url,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Account mirrors the daemon's account resource.
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

// CreateAccountParams registers a new account. Either a refresh token or an
// email/password pair must be present for the daemon to obtain tokens later.
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

// AccountFilter narrows ListAccounts.
type AccountFilter struct {
	Search   string
	Disabled *bool
	Limit    int
	Offset   int
}

// ListAccounts returns accounts matching the filter, ordered by email.
func (c *Client) ListAccounts(filter AccountFilter) ([]Account, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Disabled != nil {
		q.Set("disabled", strconv.FormatBool(*filter.Disabled))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}
	path := "/api/v1/accounts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var accounts []Account
	if err := c.get(path, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// CreateAccount registers an account with the daemon.
func (c *Client) CreateAccount(params CreateAccountParams) (*Account, error) {
	var acct Account
	if err := c.post("/api/v1/accounts", params, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// GetAccount returns one account by id.
func (c *Client) GetAccount(id string) (*Account, error) {
	var acct Account
	if err := c.get("/api/v1/accounts/"+id, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// DeleteAccount removes the stored account. With upstream set, the vendor
// account is deleted first.
func (c *Client) DeleteAccount(id string, upstream bool) error {
	path := "/api/v1/accounts/" + id
	if upstream {
		path += "?upstream=true"
	}
	return c.doRequest("DELETE", path, nil, nil)
}

// RefreshToken forces a token refresh and returns the updated account.
func (c *Client) RefreshToken(id string) (*Account, error) {
	var acct Account
	if err := c.post("/api/v1/accounts/"+id+"/refresh", nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// UserProfile is the live profile the daemon fetched from the vendor.
type UserProfile struct {
	StatusCode         int             `json:"status_code"`
	DecodeError        string          `json:"decode_error,omitempty"`
	Email              string          `json:"email,omitempty"`
	APIKey             string          `json:"api_key,omitempty"`
	Disabled           bool            `json:"disabled"`
	PlanName           string          `json:"plan_name,omitempty"`
	CreditsUsed        int64           `json:"credits_used"`
	CreditsTotal       int64           `json:"credits_total"`
	SubscriptionEnd    *time.Time      `json:"subscription_end,omitempty"`
	SubscriptionActive bool            `json:"subscription_active"`
	TeamOwner          bool            `json:"team_owner"`
	Raw                json.RawMessage `json:"raw,omitempty"`
}

// GetUser fetches the account's current vendor profile.
func (c *Client) GetUser(id string) (*UserProfile, error) {
	var profile UserProfile
	if err := c.get("/api/v1/accounts/"+id+"/user", &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetPlanStatus returns the decoded plan status document.
func (c *Client) GetPlanStatus(id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get("/api/v1/accounts/"+id+"/plan", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetCreditEntries returns the decoded per-member credit ledger.
func (c *Client) GetCreditEntries(id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get("/api/v1/accounts/"+id+"/credits", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// AttemptRecord is one seat-update attempt.
type AttemptRecord struct {
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code,omitempty"`
	Response   string    `json:"response,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// SeatUpdateResult is the attempt log from a seat count change.
type SeatUpdateResult struct {
	Success   bool            `json:"success"`
	SeatCount int             `json:"seat_count"`
	Attempts  []AttemptRecord `json:"attempts"`
}

// UpdateSeats sets the team seat count. attempts <= 0 uses the daemon's
// configured retry count.
func (c *Client) UpdateSeats(id string, seatCount, attempts int) (*SeatUpdateResult, error) {
	body := map[string]interface{}{"seat_count": seatCount}
	if attempts > 0 {
		body["attempts"] = attempts
	}
	var res SeatUpdateResult
	if err := c.post("/api/v1/accounts/"+id+"/seats", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ResetCreditsResult reports the seat rotation used for a credit reset.
type ResetCreditsResult struct {
	SeatCountUsed int               `json:"seat_count_used"`
	Update        *SeatUpdateResult `json:"update"`
}

// ResetCredits bounces the seat count to reset the team's credit pool.
// seatCount <= 0 lets the daemon rotate through its configured options.
func (c *Client) ResetCredits(id string, seatCount int) (*ResetCreditsResult, error) {
	var body interface{}
	if seatCount > 0 {
		body = map[string]int{"seat_count": seatCount}
	}
	var res ResetCreditsResult
	if err := c.post("/api/v1/accounts/"+id+"/credits/reset", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PlanChange selects the target plan tier and billing period.
type PlanChange struct {
	Tier    string `json:"tier"`
	Period  string `json:"period,omitempty"`
	Preview bool   `json:"preview,omitempty"`
}

// UpdatePlan switches the account to a different plan tier.
func (c *Client) UpdatePlan(id string, change PlanChange) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.post("/api/v1/accounts/"+id+"/plan", change, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// CancelPlan cancels the subscription at period end.
func (c *Client) CancelPlan(id, reason string) (json.RawMessage, error) {
	var body interface{}
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	var raw json.RawMessage
	if err := c.post("/api/v1/accounts/"+id+"/plan/cancel", body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ResumePlan reverts a pending cancellation.
func (c *Client) ResumePlan(id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.post("/api/v1/accounts/"+id+"/plan/resume", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// SubscribeParams creates a new subscription checkout.
type SubscribeParams struct {
	Tier           string `json:"tier"`
	Period         string `json:"period,omitempty"`
	Seats          int    `json:"seats,omitempty"`
	TeamName       string `json:"team_name,omitempty"`
	Trial          bool   `json:"trial,omitempty"`
	TurnstileToken string `json:"turnstile_token,omitempty"`
}

// SubscribeResult carries the checkout URL for a new subscription.
type SubscribeResult struct {
	CheckoutURL string          `json:"checkout_url,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// SubscribePlan starts a subscription checkout for the account.
func (c *Client) SubscribePlan(id string, params SubscribeParams) (*SubscribeResult, error) {
	var res SubscribeResult
	if err := c.post("/api/v1/accounts/"+id+"/plan/subscribe", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// OrgControls is the per-team model allow list. Empty slices clear the
// corresponding restriction.
type OrgControls struct {
	TeamID          string   `json:"team_id"`
	ChatModels      []string `json:"chat_models,omitempty"`
	CommandModels   []string `json:"command_models,omitempty"`
	ExtensionModels []string `json:"extension_models,omitempty"`
}

// UpsertControls pushes the team's model allow list.
func (c *Client) UpsertControls(id string, controls OrgControls) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.post("/api/v1/accounts/"+id+"/controls", controls, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ModelConfig is one selectable model.
type ModelConfig struct {
	Label string `json:"label,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ModelList is the model catalog for one surface.
type ModelList struct {
	Models []ModelConfig   `json:"models"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// GetModels lists the models available to the account. surface is "cascade"
// (default) or "command".
func (c *Client) GetModels(id, surface string) (*ModelList, error) {
	path := "/api/v1/accounts/" + id + "/models"
	if surface != "" {
		path += "?surface=" + url.QueryEscape(surface)
	}
	var list ModelList
	if err := c.get(path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// OneTimeToken is a short-lived vendor auth token.
type OneTimeToken struct {
	Token string `json:"token,omitempty"`
}

// OneTimeAuthToken mints a one-time auth token for the account.
func (c *Client) OneTimeAuthToken(id string) (*OneTimeToken, error) {
	var tok OneTimeToken
	if err := c.post("/api/v1/accounts/"+id+"/authtoken", nil, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// BatchItemResult is one account's outcome within a batch task.
type BatchItemResult struct {
	AccountID  string          `json:"account_id"`
	Index      int             `json:"index"`
	Success    bool            `json:"success"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// BatchTask is the state of an asynchronous batch operation.
type BatchTask struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	Op         string            `json:"op"`
	Total      int               `json:"total"`
	Succeeded  int               `json:"succeeded"`
	Results    []BatchItemResult `json:"results,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// StartBatch queues op across the given account ids and returns the task id.
func (c *Client) StartBatch(op string, ids []string) (string, error) {
	body := map[string]interface{}{"op": op, "ids": ids}
	var res struct {
		TaskID string `json:"task_id"`
	}
	if err := c.post("/api/v1/batches", body, &res); err != nil {
		return "", err
	}
	return res.TaskID, nil
}

// GetBatch returns the current state of a batch task.
func (c *Client) GetBatch(id string) (*BatchTask, error) {
	var task BatchTask
	if err := c.get("/api/v1/batches/"+id, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListBatches returns all batch tasks the daemon remembers, newest first.
func (c *Client) ListBatches() ([]BatchTask, error) {
	var tasks []BatchTask
	if err := c.get("/api/v1/batches", &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// WaitBatch polls a batch task until it completes or ctx is done. The last
// observed state is returned alongside ctx's error on timeout.
func (c *Client) WaitBatch(ctx context.Context, id string, interval time.Duration) (*BatchTask, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		task, err := c.GetBatch(id)
		if err != nil {
			return nil, err
		}
		if task.Status == "completed" {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Settings mirrors the daemon's runtime settings document.
type Settings struct {
	ConcurrentLimit            int   `json:"concurrent_limit"`
	UnlimitedConcurrentRefresh bool  `json:"unlimited_concurrent_refresh"`
	SeatCountOptions           []int `json:"seat_count_options"`
	RetryTimes                 int   `json:"retry_times"`
	BatchStaggerMs             int   `json:"batch_stagger_ms"`
	RefreshWindowMinutes       int   `json:"refresh_window_minutes"`
	RefreshIntervalMinutes     int   `json:"refresh_interval_minutes"`
}

// GetSettings returns the daemon's current settings.
func (c *Client) GetSettings() (*Settings, error) {
	var s Settings
	if err := c.get("/api/v1/settings", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSettings applies a partial JSON patch and returns the merged
// settings. Unknown keys and out-of-range values are rejected by the daemon.
func (c *Client) UpdateSettings(patch json.RawMessage) (*Settings, error) {
	var s Settings
	if err := c.doRequest("PUT", "/api/v1/settings", patch, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// AuditEntry is one recorded daemon operation.
type AuditEntry struct {
	Seq        uint64    `json:"seq"`
	Time       time.Time `json:"time"`
	AccountID  string    `json:"account_id,omitempty"`
	Op         string    `json:"op"`
	Success    bool      `json:"success"`
	StatusCode int       `json:"status_code,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// AuditLog returns recent audit entries, newest first. accountID and limit
// are optional.
func (c *Client) AuditLog(accountID string, limit int) ([]AuditEntry, error) {
	q := url.Values{}
	if accountID != "" {
		q.Set("account_id", accountID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var entries []AuditEntry
	if err := c.get(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// HTTP helpers

func (c *Client) get(path string, result interface{}) error {
	return c.doRequest("GET", path, nil, result)
}

func (c *Client) post(path string, body, result interface{}) error {
	return c.doRequest("POST", path, body, result)
}

func (c *Client) doRequest(method, path string, body, result interface{}) error {
	return c.doRequestWithContext(context.Background(), method, path, body, result)
}

func (c *Client) doRequestWithContext(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		json.Unmarshal(data, &envelope)
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Error
		return apiErr
	}

	if result != nil {
		return json.Unmarshal(data, result)
	}
	return nil
}
