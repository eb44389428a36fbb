package upstream

import (
	"context"
	"fmt"

	"github.com/user/fleetdeck/internal/wire"
)

// marketingBase hosts the checkout landing pages passed to SubscribeToPlan.
const marketingBase = "https://windlass.io"

// SubscribeToPlan response layout.
const subscribeFieldCheckoutURL = 1

func tierNumber(tier string) uint64 {
	if n, ok := planTiers[tier]; ok {
		return n
	}
	return defaultPlanTier
}

func periodNumber(period string) (uint64, error) {
	switch period {
	case "", "monthly":
		return periodMonthly, nil
	case "yearly":
		return periodYearly, nil
	}
	return 0, &ValidationError{Msg: fmt.Sprintf("unknown payment period %q", period)}
}

// PlanChange describes an UpdatePlan request. Period is "monthly" (default)
// or "yearly"; Preview asks the upstream to price the change without
// applying it.
type PlanChange struct {
	Tier    string `json:"tier"`
	Period  string `json:"period,omitempty"`
	Preview bool   `json:"preview,omitempty"`
}

// PlanChangeResult is the decoded outcome of a plan mutation.
type PlanChangeResult struct {
	CallMeta
	Raw wire.Message `json:"raw,omitempty"`
}

// UpdatePlan moves the account to another plan tier. Unknown tier names fall
// through to the upstream's self-serve default rather than failing locally.
func (c *Client) UpdatePlan(ctx context.Context, accountID string, change PlanChange) (*PlanChangeResult, error) {
	period, err := periodNumber(change.Period)
	if err != nil {
		return nil, err
	}
	tier := tierNumber(change.Tier)

	res, err := c.invoke(ctx, epUpdatePlan, accountID, func(token string) []byte {
		var b []byte
		b = wire.AppendString(b, 1, token)
		b = wire.AppendUint(b, 2, period)
		if change.Preview {
			b = wire.AppendBool(b, 3, true)
		}
		b = wire.AppendUint(b, 4, period)
		b = wire.AppendUint(b, 5, tier)
		return b
	})
	if err != nil {
		return nil, err
	}
	return &PlanChangeResult{CallMeta: metaOf(res), Raw: res.Msg}, nil
}

// CancelPlan schedules the subscription for cancellation at period end.
func (c *Client) CancelPlan(ctx context.Context, accountID, reason string) (*PlanChangeResult, error) {
	res, err := c.invoke(ctx, epCancelPlan, accountID, func(token string) []byte {
		var b []byte
		b = wire.AppendString(b, 1, token)
		b = wire.AppendUint(b, 2, 1)
		b = wire.AppendString(b, 5, reason)
		return b
	})
	if err != nil {
		return nil, err
	}
	return &PlanChangeResult{CallMeta: metaOf(res), Raw: res.Msg}, nil
}

// ResumePlan withdraws a pending cancellation. The upstream models this as a
// second call to the cancellation endpoint with the resume flag set.
func (c *Client) ResumePlan(ctx context.Context, accountID string) (*PlanChangeResult, error) {
	res, err := c.invoke(ctx, epResumePlan, accountID, func(token string) []byte {
		var b []byte
		b = wire.AppendString(b, 1, token)
		b = wire.AppendUint(b, 3, 1)
		return b
	})
	if err != nil {
		return nil, err
	}
	return &PlanChangeResult{CallMeta: metaOf(res), Raw: res.Msg}, nil
}

// SubscribeParams describes a SubscribeToPlan checkout request.
type SubscribeParams struct {
	Tier           string `json:"tier"`
	Period         string `json:"period,omitempty"`
	Seats          int    `json:"seats,omitempty"`
	TeamName       string `json:"team_name,omitempty"`
	Trial          bool   `json:"trial,omitempty"`
	TurnstileToken string `json:"turnstile_token,omitempty"`
}

// SubscribeResult carries the checkout URL minted by SubscribeToPlan. An
// empty URL on a successful call means the upstream declined to mint one.
type SubscribeResult struct {
	CallMeta
	CheckoutURL string       `json:"checkout_url,omitempty"`
	Raw         wire.Message `json:"raw,omitempty"`
}

// SubscribeToPlan starts a hosted checkout for a new subscription and
// returns the checkout URL to hand to the user.
func (c *Client) SubscribeToPlan(ctx context.Context, accountID string, params SubscribeParams) (*SubscribeResult, error) {
	period, err := periodNumber(params.Period)
	if err != nil {
		return nil, err
	}
	tier := tierNumber(params.Tier)

	// The landing pages only distinguish team checkouts from individual
	// ones.
	tierSlug := "pro"
	if tier == planTiers["teams"] {
		tierSlug = "teams"
	}
	successURL := marketingBase + "/billing/payment-success?plan_tier=" + tierSlug
	cancelURL := marketingBase + "/plan?plan_cancelled=true&plan_tier=" + tierSlug

	res, err := c.invoke(ctx, epSubscribeToPlan, accountID, func(token string) []byte {
		var b []byte
		b = wire.AppendString(b, 1, token)
		if params.Trial {
			b = wire.AppendUint(b, 3, 1)
		}
		b = wire.AppendString(b, 4, successURL)
		b = wire.AppendString(b, 5, cancelURL)
		if tier == planTiers["teams"] || tier == planTiers["enterprise_saas"] {
			seats := params.Seats
			if seats < 1 {
				seats = 1
			}
			b = wire.AppendUint(b, 6, uint64(seats))
		}
		if params.TeamName != "" {
			b = wire.AppendString(b, 7, params.TeamName)
		}
		b = wire.AppendUint(b, 8, tier)
		b = wire.AppendUint(b, 9, period)
		if params.TurnstileToken != "" {
			b = wire.AppendString(b, 10, params.TurnstileToken)
		}
		return b
	})
	if err != nil {
		return nil, err
	}

	out := &SubscribeResult{CallMeta: metaOf(res), Raw: res.Msg}
	if res.Msg != nil {
		if u, ok := res.Msg.String(subscribeFieldCheckoutURL); ok {
			out.CheckoutURL = u
		}
	}
	return out, nil
}
