package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/fleetdeck/internal/wire"
)

// UpdateSeats response layout.
const seatRespFieldSuccess = 1 // varint flag

// seatRetryDelay separates consecutive seat update attempts.
var seatRetryDelay = time.Second

// AttemptRecord is one entry of an UpdateSeats attempt log.
type AttemptRecord struct {
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code,omitempty"`
	Response   string    `json:"response,omitempty"`
	Err        string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// SeatUpdateResult is the full outcome of an UpdateSeats call, including
// every attempt made.
type SeatUpdateResult struct {
	Success   bool            `json:"success"`
	SeatCount int             `json:"seat_count"`
	Attempts  []AttemptRecord `json:"attempts"`
}

// UpdateSeats sets the team seat count, retrying up to attempts times with a
// fixed delay between tries. attempts <= 0 means the settings retry_times
// value. Per-attempt failures are recorded, never raised; the only error
// returned is invalid input.
func (c *Client) UpdateSeats(ctx context.Context, accountID string, seats, attempts int) (*SeatUpdateResult, error) {
	if seats < 1 {
		return nil, &ValidationError{Msg: fmt.Sprintf("seat count %d out of range", seats)}
	}
	if attempts < 1 {
		settings, err := c.store.GetSettings()
		if err != nil {
			return nil, fmt.Errorf("resolve retry count: %w", err)
		}
		attempts = settings.RetryTimes
		if attempts < 1 {
			attempts = 1
		}
	}

	out := &SeatUpdateResult{SeatCount: seats}
	for i := 1; i <= attempts; i++ {
		rec := AttemptRecord{Attempt: i, Time: time.Now().UTC()}
		res, err := c.invoke(ctx, epUpdateSeats, accountID, func(token string) []byte {
			var b []byte
			b = wire.AppendString(b, 1, token)
			b = wire.AppendUint(b, 2, uint64(seats))
			return b
		})
		if err != nil {
			rec.Err = err.Error()
			var ue *UpstreamError
			var ae *AuthError
			switch {
			case errors.As(err, &ue):
				rec.StatusCode = ue.Status
				rec.Response = string(ue.Body)
			case errors.As(err, &ae):
				rec.StatusCode = 401
			}
			out.Attempts = append(out.Attempts, rec)
		} else {
			rec.StatusCode = res.StatusCode
			rec.Response = renderBody(res)
			out.Attempts = append(out.Attempts, rec)
			// A 200 counts as success unless the body carries an explicit
			// negative flag.
			ok := true
			if res.Msg != nil {
				if v, found := res.Msg.Uint(seatRespFieldSuccess); found {
					ok = v != 0
				}
			}
			if ok {
				out.Success = true
				break
			}
		}
		if i < attempts {
			time.Sleep(seatRetryDelay)
		}
	}

	if out.Success {
		if err := c.store.SetLastSeatCount(accountID, seats); err != nil {
			slog.Warn("seat count bookkeeping failed", "account_id", accountID, "error", err)
		}
	}
	return out, nil
}

// ResetCreditsResult reports which seat count a credit reset used and how
// the underlying seat update went.
type ResetCreditsResult struct {
	SeatCountUsed int               `json:"seat_count_used"`
	Update        *SeatUpdateResult `json:"update"`
}

// ResetCredits resets the account's credit pool by bumping the team seat
// count. seatCount > 0 forces that exact count; otherwise the next entry of
// the configured rotation after the account's last used count is taken. The
// reset path makes a single attempt.
func (c *Client) ResetCredits(ctx context.Context, accountID string, seatCount int) (*ResetCreditsResult, error) {
	if seatCount < 1 {
		acct, err := c.store.GetAccount(accountID)
		if err != nil {
			return nil, err
		}
		settings, err := c.store.GetSettings()
		if err != nil {
			return nil, fmt.Errorf("resolve seat rotation: %w", err)
		}
		seatCount = settings.NextSeatCount(acct.LastSeatCount)
	}

	update, err := c.UpdateSeats(ctx, accountID, seatCount, 1)
	if err != nil {
		return nil, err
	}
	return &ResetCreditsResult{SeatCountUsed: seatCount, Update: update}, nil
}

// renderBody gives the most useful textual form of a response body for
// attempt logs: decoded JSON when the body parsed, raw text otherwise.
func renderBody(res *Result) string {
	if res.Msg != nil {
		if b, err := json.Marshal(res.Msg); err == nil {
			return string(b)
		}
	}
	return string(res.Raw)
}
