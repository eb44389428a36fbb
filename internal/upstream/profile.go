package upstream

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/fleetdeck/internal/store"
	"github.com/user/fleetdeck/internal/wire"
)

// GetCurrentUser response layout.
const (
	curUserFieldUser         = 1 // message: identity and access flag
	curUserFieldPlan         = 2 // message: plan name
	curUserFieldSubscription = 3 // message: quota, usage, expiry
	curUserFieldRootAdmin    = 4 // varint flag

	userFieldEmail    = 1
	userFieldAPIKey   = 2
	userFieldDisabled = 3

	planFieldName = 1

	subFieldQuota     = 1
	subFieldUsed      = 2
	subFieldExpiresAt = 3 // unix seconds
	subFieldActive    = 4
)

// GetPlanStatus response layout.
const (
	statusFieldPlanName    = 1
	statusFieldUsedPrompt  = 6
	statusFieldUsedFlex    = 7
	statusFieldAvailPrompt = 8
	statusFieldAvailFlex   = 9
	statusFieldPlanEnd     = 12 // unix seconds
)

// GetTeamCreditEntries response layout.
const (
	creditFieldEntry = 1 // repeated message
	entryFieldEmail  = 1
	entryFieldUsed   = 2
	entryFieldTotal  = 3
)

// CallMeta describes the transport outcome a parsed result derives from.
type CallMeta struct {
	StatusCode  int    `json:"status_code"`
	DecodeError string `json:"decode_error,omitempty"`
}

func metaOf(res *Result) CallMeta {
	m := CallMeta{StatusCode: res.StatusCode}
	if res.DecodeErr != nil {
		m.DecodeError = res.DecodeErr.Error()
	}
	return m
}

// UserProfile is the account profile as reported by GetCurrentUser. Raw keeps
// the full decoded response for consumers that want fields beyond the ones
// extracted here.
type UserProfile struct {
	CallMeta
	Email              string       `json:"email,omitempty"`
	APIKey             string       `json:"api_key,omitempty"`
	Disabled           bool         `json:"disabled"`
	PlanName           string       `json:"plan_name,omitempty"`
	CreditsUsed        int64        `json:"credits_used"`
	CreditsTotal       int64        `json:"credits_total"`
	SubscriptionEnd    *time.Time   `json:"subscription_end,omitempty"`
	SubscriptionActive bool         `json:"subscription_active"`
	TeamOwner          bool         `json:"team_owner"`
	Raw                wire.Message `json:"raw,omitempty"`
}

// GetCurrentUser fetches the account's profile and mirrors the result onto
// the stored account row. A body that fails to decode still returns a profile
// carrying the decode error; the stored row is left untouched in that case.
func (c *Client) GetCurrentUser(ctx context.Context, accountID string) (*UserProfile, error) {
	res, err := c.invoke(ctx, epGetCurrentUser, accountID, func(token string) []byte {
		var b []byte
		b = wire.AppendString(b, 1, token)
		b = wire.AppendUint(b, 2, 1)
		b = wire.AppendUint(b, 3, 1)
		b = wire.AppendUint(b, 4, 1)
		return b
	})
	if err != nil {
		return nil, err
	}

	p := &UserProfile{CallMeta: metaOf(res), Raw: res.Msg}
	if res.Msg == nil {
		return p, nil
	}

	if u, ok := res.Msg.Message(curUserFieldUser); ok {
		if v, ok := u.String(userFieldEmail); ok {
			p.Email = v
		}
		if v, ok := u.String(userFieldAPIKey); ok {
			p.APIKey = v
		}
		if v, ok := u.Uint(userFieldDisabled); ok {
			p.Disabled = v != 0
		}
	}
	if pl, ok := res.Msg.Message(curUserFieldPlan); ok {
		if v, ok := pl.String(planFieldName); ok {
			p.PlanName = v
		}
	}
	if sub, ok := res.Msg.Message(curUserFieldSubscription); ok {
		if v, ok := sub.Uint(subFieldQuota); ok {
			p.CreditsTotal = int64(v)
		}
		if v, ok := sub.Uint(subFieldUsed); ok {
			p.CreditsUsed = int64(v)
		}
		if v, ok := sub.Uint(subFieldExpiresAt); ok && v > 0 {
			t := time.Unix(int64(v), 0).UTC()
			p.SubscriptionEnd = &t
		}
		if v, ok := sub.Uint(subFieldActive); ok {
			p.SubscriptionActive = v != 0
		}
	}
	if v, ok := res.Msg.Uint(curUserFieldRootAdmin); ok {
		p.TeamOwner = v != 0
	}

	// An absent field in a decoded response means the upstream zero value,
	// so the whole profile is authoritative here.
	m := store.MirrorParams{
		PlanName:        p.PlanName,
		CreditsUsed:     p.CreditsUsed,
		CreditsTotal:    p.CreditsTotal,
		TeamOwner:       p.TeamOwner,
		SubscriptionEnd: p.SubscriptionEnd,
		APIKey:          &p.APIKey,
		Disabled:        &p.Disabled,
	}
	if err := c.store.UpdateMirror(accountID, m); err != nil {
		slog.Warn("account mirror update failed", "account_id", accountID, "error", err)
	}
	return p, nil
}

// PlanStatus is the credit-level view reported by GetPlanStatus.
type PlanStatus struct {
	CallMeta
	PlanName               string       `json:"plan_name,omitempty"`
	UsedPromptCredits      int64        `json:"used_prompt_credits"`
	UsedFlexCredits        int64        `json:"used_flex_credits"`
	AvailablePromptCredits int64        `json:"available_prompt_credits"`
	AvailableFlexCredits   int64        `json:"available_flex_credits"`
	PlanEnd                *time.Time   `json:"plan_end,omitempty"`
	Raw                    wire.Message `json:"raw,omitempty"`
}

// GetPlanStatus fetches the lightweight credit status and mirrors the credit
// fields onto the stored account row. Fields the status response cannot carry
// (team ownership, api key, disabled flag) keep their stored values.
func (c *Client) GetPlanStatus(ctx context.Context, accountID string) (*PlanStatus, error) {
	res, err := c.invoke(ctx, epGetPlanStatus, accountID, func(token string) []byte {
		return wire.AppendString(nil, 1, token)
	})
	if err != nil {
		return nil, err
	}

	st := &PlanStatus{CallMeta: metaOf(res), Raw: res.Msg}
	if res.Msg == nil {
		return st, nil
	}

	if v, ok := res.Msg.String(statusFieldPlanName); ok {
		st.PlanName = v
	}
	if v, ok := res.Msg.Uint(statusFieldUsedPrompt); ok {
		st.UsedPromptCredits = int64(v)
	}
	if v, ok := res.Msg.Uint(statusFieldUsedFlex); ok {
		st.UsedFlexCredits = int64(v)
	}
	if v, ok := res.Msg.Uint(statusFieldAvailPrompt); ok {
		st.AvailablePromptCredits = int64(v)
	}
	if v, ok := res.Msg.Uint(statusFieldAvailFlex); ok {
		st.AvailableFlexCredits = int64(v)
	}
	if v, ok := res.Msg.Uint(statusFieldPlanEnd); ok && v > 0 {
		t := time.Unix(int64(v), 0).UTC()
		st.PlanEnd = &t
	}

	acct, err := c.store.GetAccount(accountID)
	if err != nil {
		slog.Warn("account mirror update failed", "account_id", accountID, "error", err)
		return st, nil
	}
	m := store.MirrorParams{
		PlanName:        st.PlanName,
		CreditsUsed:     st.UsedPromptCredits + st.UsedFlexCredits,
		CreditsTotal:    st.AvailablePromptCredits + st.AvailableFlexCredits,
		TeamOwner:       acct.TeamOwner,
		SubscriptionEnd: st.PlanEnd,
	}
	if st.PlanName == "" {
		m.PlanName = acct.PlanName
	}
	if st.PlanEnd == nil {
		m.SubscriptionEnd = acct.SubscriptionEnd
	}
	if err := c.store.UpdateMirror(accountID, m); err != nil {
		slog.Warn("account mirror update failed", "account_id", accountID, "error", err)
	}
	return st, nil
}

// CreditEntry is one team member's credit usage.
type CreditEntry struct {
	Email        string `json:"email,omitempty"`
	CreditsUsed  int64  `json:"credits_used"`
	CreditsTotal int64  `json:"credits_total"`
}

// CreditEntries is the per-member breakdown reported by GetTeamCreditEntries.
type CreditEntries struct {
	CallMeta
	Entries []CreditEntry `json:"entries"`
	Raw     wire.Message  `json:"raw,omitempty"`
}

// GetTeamCreditEntries lists per-member credit usage for the account's team.
func (c *Client) GetTeamCreditEntries(ctx context.Context, accountID string) (*CreditEntries, error) {
	res, err := c.invoke(ctx, epGetTeamCreditEntries, accountID, func(token string) []byte {
		return wire.AppendString(nil, 1, token)
	})
	if err != nil {
		return nil, err
	}

	out := &CreditEntries{CallMeta: metaOf(res), Raw: res.Msg}
	if res.Msg == nil {
		return out, nil
	}
	for _, v := range res.Msg.List(creditFieldEntry) {
		if v.Kind != wire.KindMessage {
			continue
		}
		var e CreditEntry
		if s, ok := v.Msg.String(entryFieldEmail); ok {
			e.Email = s
		}
		if n, ok := v.Msg.Uint(entryFieldUsed); ok {
			e.CreditsUsed = int64(n)
		}
		if n, ok := v.Msg.Uint(entryFieldTotal); ok {
			e.CreditsTotal = int64(n)
		}
		out.Entries = append(out.Entries, e)
	}
	return out, nil
}
