// Package batch runs one account operation across many accounts with a
// concurrency ceiling, staggered starts and per-item failure isolation. A
// started batch always runs every item to completion; the context reaches
// the per-item calls for transport deadlines only.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/fleetdeck/internal/upstream"
)

// Op is one unit of work against a single account.
type Op func(ctx context.Context, accountID string) (any, error)

// ItemResult is the outcome for one submitted account id.
type ItemResult struct {
	AccountID  string `json:"account_id"`
	Index      int    `json:"index"` // submission position
	Success    bool   `json:"success"`
	Output     any    `json:"output,omitempty"`
	Err        string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Summary aggregates a finished batch. Results hold exactly one entry per
// submitted id, in completion order.
type Summary struct {
	SuccessCount int          `json:"success_count"`
	TotalCount   int          `json:"total_count"`
	Results      []ItemResult `json:"results"`
}

// Config bounds a batch run.
type Config struct {
	// Limit is the maximum number of in-flight items. Zero or negative
	// means no ceiling beyond the list size.
	Limit int
	// Stagger delays item i's start by i times this duration. The delay
	// holds the item's concurrency slot.
	Stagger time.Duration
}

// Run executes op once per id and collects every outcome. Ids that are not
// UUIDs fail immediately without invoking op. One item's failure never
// affects its siblings.
func Run(ctx context.Context, cfg Config, ids []string, op Op) *Summary {
	n := len(ids)
	limit := cfg.Limit
	if limit <= 0 || limit > n {
		limit = n
	}
	if limit < 1 {
		limit = 1
	}

	results := make(chan ItemResult, n)
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			verr := &upstream.ValidationError{Msg: fmt.Sprintf("account id %q is not a UUID", id)}
			results <- ItemResult{AccountID: id, Index: i, Err: verr.Error()}
			continue
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if cfg.Stagger > 0 {
				time.Sleep(time.Duration(i) * cfg.Stagger)
			}
			results <- runOne(ctx, i, id, op)
		}(i, id)
	}
	wg.Wait()
	close(results)

	out := &Summary{TotalCount: n}
	for r := range results {
		if r.Success {
			out.SuccessCount++
		}
		out.Results = append(out.Results, r)
	}
	return out
}

func runOne(ctx context.Context, index int, id string, op Op) ItemResult {
	res := ItemResult{AccountID: id, Index: index}
	start := time.Now()

	out, err := op(ctx, id)
	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Success = true
	res.Output = out
	return res
}
