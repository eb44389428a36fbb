package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/fleetdeck/internal/audit"
	"github.com/user/fleetdeck/internal/config"
	"github.com/user/fleetdeck/internal/identity"
	"github.com/user/fleetdeck/internal/observability"
	"github.com/user/fleetdeck/internal/refresher"
	"github.com/user/fleetdeck/internal/server"
	"github.com/user/fleetdeck/internal/store"
	"github.com/user/fleetdeck/internal/token"
	"github.com/user/fleetdeck/internal/upstream"
	"github.com/user/fleetdeck/internal/vault"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fleetdeck daemon",
	RunE:  runServe,
}

var (
	configPath       string
	bindAddr         string
	dataDir          string
	daemonAPIKey     string
	vendorBaseURL    string
	auditEngine      string
	refresherEnabled = true
	refreshInterval  time.Duration
	shutdownTimeout  = 2 * time.Second
	otelEnabled      bool
	otelEndpoint     string
)

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to TOML config file (optional)")
	serveCmd.Flags().StringVar(&bindAddr, "bind", ":8080", "HTTP API bind address")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "data", "Directory for the account database, vault key material, and audit log")
	serveCmd.Flags().StringVar(&daemonAPIKey, "api-key", "", "Static API key required on X-Api-Key (or set FLEETDECK_API_KEY)")
	serveCmd.Flags().StringVar(&vendorBaseURL, "vendor-base-url", "", "Vendor RPC backend base URL (default production)")
	serveCmd.Flags().StringVar(&auditEngine, "audit-engine", "badger", "Audit log backend: badger or pebble")
	serveCmd.Flags().BoolVar(&refresherEnabled, "refresher-enabled", true, "Enable the background token refresh sweeper")
	serveCmd.Flags().DurationVar(&refreshInterval, "refresh-interval", 0, "Token refresh sweep cadence (e.g. 5m; 0 = config value)")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 2*time.Second, "Graceful HTTP shutdown timeout before force-close (e.g. 500ms, 2s)")
	serveCmd.Flags().BoolVar(&otelEnabled, "otel-enabled", false, "Enable OpenTelemetry tracing")
	serveCmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP HTTP endpoint (host:port) for traces; if empty uses stdout exporter")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Flags override the file only when set on the command line.
	flags := cmd.Flags()
	if flags.Changed("bind") {
		cfg.ListenAddr = bindAddr
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("vendor-base-url") {
		cfg.VendorBaseURL = vendorBaseURL
	}
	if flags.Changed("audit-engine") {
		cfg.Audit.Engine = auditEngine
	}
	if flags.Changed("refresher-enabled") {
		cfg.Refresher.Enabled = refresherEnabled
	}
	if flags.Changed("refresh-interval") {
		cfg.Refresher.IntervalMinutes = int(refreshInterval.Minutes())
		if cfg.Refresher.IntervalMinutes < 1 {
			return fmt.Errorf("refresh-interval must be at least 1m")
		}
	}
	if flags.Changed("otel-enabled") {
		cfg.Otel.Enabled = otelEnabled
	}
	if flags.Changed("otel-endpoint") {
		cfg.Otel.Endpoint = otelEndpoint
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.Info("starting fleetdeck daemon",
		"bind", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
		"config", configPath,
		"vendor_base_url", cfg.VendorBaseURL,
		"audit_engine", cfg.Audit.Engine,
		"refresher_enabled", cfg.Refresher.Enabled,
		"refresh_interval_minutes", cfg.Refresher.IntervalMinutes,
		"shutdown_timeout", shutdownTimeout,
		"otel_enabled", cfg.Otel.Enabled,
		"otel_endpoint", cfg.Otel.Endpoint,
	)

	otelShutdown, err := observability.InitTracer(cfg.Otel.Enabled, "fleetdeck", cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("otel shutdown error", "error", err)
		}
	}()

	v, err := vault.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}
	db, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	st := store.New(db, v)

	idp := identity.New(cfg.Identity.APIKey)
	idp.TokenURL = cfg.Identity.TokenURL
	idp.SignInURL = cfg.Identity.SignInURL
	tokens := token.New(st, idp)

	ops := upstream.New(st, tokens, upstream.WithBaseURL(cfg.VendorBaseURL))

	auditLog, err := audit.Open(cfg.DataDir, cfg.Audit.Engine)
	if err != nil {
		db.Close()
		return fmt.Errorf("open audit log: %w", err)
	}

	var sweepCancel context.CancelFunc = func() {}
	if cfg.Refresher.Enabled {
		rcfg := refresher.Config{
			Interval: time.Duration(cfg.Refresher.IntervalMinutes) * time.Minute,
		}
		sweeper := refresher.New(st, tokens, rcfg)
		var sweepCtx context.Context
		sweepCtx, sweepCancel = context.WithCancel(context.Background())
		go sweeper.Run(sweepCtx)
	}

	opts := []server.Option{server.WithAudit(auditLog)}
	key := strings.TrimSpace(daemonAPIKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("FLEETDECK_API_KEY"))
	}
	if key == "" {
		key = strings.TrimSpace(cfg.APIKey)
	}
	if key != "" {
		opts = append(opts, server.WithAPIKey(key))
		slog.Info("api key auth enabled")
	} else {
		slog.Warn("no api key set; the HTTP API is unauthenticated (use --api-key or FLEETDECK_API_KEY)")
	}

	srv := server.New(st, ops, tokens, cfg.ListenAddr, opts...)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fleetdeck daemon ready", "bind", cfg.ListenAddr)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("received shutdown signal", "signal", sig)

	// Graceful shutdown sequence
	slog.Info("stopping HTTP server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error; forcing close", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			slog.Error("HTTP force close error", "error", closeErr)
		}
	}

	slog.Info("stopping refresh sweeper")
	sweepCancel()

	slog.Info("stopping audit log")
	if err := auditLog.Close(); err != nil {
		slog.Warn("audit close error", "error", err)
	}

	slog.Info("stopping store")
	if err := db.Close(); err != nil {
		slog.Warn("store close error", "error", err)
	}

	slog.Info("fleetdeck daemon stopped")
	return nil
}
