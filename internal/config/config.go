// Package config loads daemon configuration from an optional TOML file
// layered over built-in defaults. CLI flags override after Load; secrets
// can come from the environment instead of the file.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Production endpoints of the vendor services. The identity key is the
// vendor's public web key, the same one its own clients embed; it only
// scopes requests to the project and is not a secret.
const (
	defaultVendorBaseURL = "https://web-backend.windlass.io"
	defaultTokenURL      = "https://securetoken.windlass.io/v1/token"
	defaultSignInURL     = "https://identity.windlass.io/v1/accounts:signInWithPassword"
	defaultIdentityKey   = "WLzaSyB4kQ9rTn2xGvE7uPfLm0cAiJ5XhYdNwo8"
)

type Config struct {
	ListenAddr string `toml:"listen_addr"`
	DataDir    string `toml:"data_dir"`

	// APIKey guards the daemon HTTP API when non-empty. The serve command
	// prefers FLEETDECK_API_KEY so the key can stay out of the file.
	APIKey string `toml:"api_key"`

	VendorBaseURL string `toml:"vendor_base_url"`

	Identity  IdentityConfig  `toml:"identity"`
	Audit     AuditConfig     `toml:"audit"`
	Refresher RefresherConfig `toml:"refresher"`
	Otel      OtelConfig      `toml:"otel"`
}

type IdentityConfig struct {
	TokenURL  string `toml:"token_url"`
	SignInURL string `toml:"sign_in_url"`
	APIKey    string `toml:"api_key"`
}

type AuditConfig struct {
	// Engine selects the embedded KV backend: badger or pebble.
	Engine string `toml:"engine"`
}

type RefresherConfig struct {
	Enabled         bool `toml:"enabled"`
	IntervalMinutes int  `toml:"interval_minutes"`
}

type OtelConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		DataDir:       "data",
		VendorBaseURL: defaultVendorBaseURL,
		Identity: IdentityConfig{
			TokenURL:  defaultTokenURL,
			SignInURL: defaultSignInURL,
			APIKey:    defaultIdentityKey,
		},
		Audit:     AuditConfig{Engine: "badger"},
		Refresher: RefresherConfig{Enabled: true, IntervalMinutes: 10},
	}
}

// Load reads the TOML file at path over the defaults. An empty path skips
// the file entirely and returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fillDefaults restores defaults for fields a file set to their zero value,
// so an explicit `listen_addr = ""` cannot produce an unusable daemon.
func (c *Config) fillDefaults() {
	def := Default()
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = def.ListenAddr
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = def.DataDir
	}
	if strings.TrimSpace(c.VendorBaseURL) == "" {
		c.VendorBaseURL = def.VendorBaseURL
	}
	if strings.TrimSpace(c.Identity.TokenURL) == "" {
		c.Identity.TokenURL = def.Identity.TokenURL
	}
	if strings.TrimSpace(c.Identity.SignInURL) == "" {
		c.Identity.SignInURL = def.Identity.SignInURL
	}
	if strings.TrimSpace(c.Identity.APIKey) == "" {
		c.Identity.APIKey = def.Identity.APIKey
	}
	if strings.TrimSpace(c.Audit.Engine) == "" {
		c.Audit.Engine = def.Audit.Engine
	}
	if c.Refresher.IntervalMinutes <= 0 {
		c.Refresher.IntervalMinutes = def.Refresher.IntervalMinutes
	}
}

// Validate rejects settings the daemon cannot run with. Load calls it; the
// serve command calls it again after applying flag overrides.
func (c *Config) Validate() error {
	switch c.Audit.Engine {
	case "badger", "pebble":
	default:
		return fmt.Errorf("config: unknown audit engine %q (want badger or pebble)", c.Audit.Engine)
	}
	if !strings.HasPrefix(c.VendorBaseURL, "http://") && !strings.HasPrefix(c.VendorBaseURL, "https://") {
		return fmt.Errorf("config: vendor_base_url %q is not an http(s) URL", c.VendorBaseURL)
	}
	return nil
}
