// Package refresher proactively exchanges tokens before they expire.
package refresher

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/fleetdeck/internal/batch"
	"github.com/user/fleetdeck/internal/store"
)

// TokenSource is the forced-exchange entry point of the token manager.
type TokenSource interface {
	EnsureValid(ctx context.Context, id string, force bool) (string, error)
}

// Config holds refresher configuration. Window, concurrency and stagger are
// read from the settings document on every sweep, so runtime settings
// changes apply without a restart; only the tick cadence is fixed here.
type Config struct {
	Interval time.Duration // sweep cadence (default 10m)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Minute}
}

// Refresher scans for expiring tokens and refreshes them in bounded batches.
type Refresher struct {
	store  *store.Store
	tokens TokenSource
	config Config
}

// New creates a Refresher.
func New(s *store.Store, tokens TokenSource, config Config) *Refresher {
	if config.Interval == 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Refresher{store: s, tokens: tokens, config: config}
}

// Run starts the refresh loop. It blocks until the context is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	slog.Info("refresher started", "interval", r.config.Interval)
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresher stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// RunOnce executes a single sweep. Useful for testing.
func (r *Refresher) RunOnce(ctx context.Context) *batch.Summary {
	return r.sweep(ctx)
}

func (r *Refresher) sweep(ctx context.Context) *batch.Summary {
	settings, err := r.store.GetSettings()
	if err != nil {
		slog.Error("load settings for refresh sweep", "error", err)
		settings = store.DefaultSettings()
	}
	window := time.Duration(settings.RefreshWindowMinutes) * time.Minute

	ids, err := r.store.ExpiringTokenIDs(window)
	if err != nil {
		slog.Error("scan expiring tokens", "error", err)
		return nil
	}
	if len(ids) == 0 {
		return &batch.Summary{}
	}

	sum := batch.Run(ctx, batch.Config{
		Limit:   settings.BatchLimit(len(ids)),
		Stagger: time.Duration(settings.BatchStaggerMs) * time.Millisecond,
	}, ids, func(ctx context.Context, id string) (any, error) {
		if _, err := r.tokens.EnsureValid(ctx, id, true); err != nil {
			return nil, err
		}
		return nil, nil
	})
	slog.Info("token refresh sweep finished", "refreshed", sum.SuccessCount, "total", sum.TotalCount)
	return sum
}
