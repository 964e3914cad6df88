// Package config loads and validates the calrelay YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// Google holds the OAuth client and calendar settings.
	Google GoogleConfig `yaml:"google"`

	// Users lists the user identifiers the engine syncs. Per-user settings
	// (direction, interval, auto-resolve) live in the database, not here.
	Users []string `yaml:"users"`

	// DBPath is the sqlite database location. Defaults to
	// ~/.local/share/calrelay/calrelay.db.
	DBPath string `yaml:"db_path"`

	// Timezone anchors local dates and times of day to instants, e.g.
	// "Europe/Berlin". Defaults to the system timezone.
	Timezone string `yaml:"timezone"`

	// EngineTick is how often the engine checks for users due to sync.
	// Minimum 5s, maximum 5m. Defaults to 30s if unset.
	EngineTick time.Duration `yaml:"engine_tick"`

	// SyncWindow bounds the date range fetched per run. An unbounded window
	// is not supported; zero values take the 3/6 month defaults.
	SyncWindow WindowConfig `yaml:"sync_window"`

	// MaxResults caps provider fetch size per run. Defaults to 2500.
	MaxResults int64 `yaml:"max_results"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// GoogleConfig holds the OAuth client credentials and token location.
// ClientID and ClientSecret fall back to the GOOGLE_CLIENT_ID and
// GOOGLE_CLIENT_SECRET environment variables when left empty, so secrets
// can stay out of the config file.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// TokenFile is where the OAuth token is cached after `calrelay auth`.
	// Defaults to ~/.config/calrelay/token.json.
	TokenFile string `yaml:"token_file"`

	// CalendarID is the calendar to sync against. Defaults to "primary".
	CalendarID string `yaml:"calendar_id"`
}

// WindowConfig is the fetch window in whole months around now.
type WindowConfig struct {
	PastMonths   int `yaml:"past_months"`
	FutureMonths int `yaml:"future_months"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "calrelay".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/calrelay/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "calrelay", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// validate checks that all required fields are present and well-formed,
// filling in documented defaults.
func (c *Config) validate() error {
	if c.Google.ClientID == "" {
		c.Google.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if c.Google.ClientSecret == "" {
		c.Google.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if c.Google.ClientID == "" {
		return fmt.Errorf("google.client_id is required (or set GOOGLE_CLIENT_ID)")
	}
	if c.Google.ClientSecret == "" {
		return fmt.Errorf("google.client_secret is required (or set GOOGLE_CLIENT_SECRET)")
	}
	if c.Google.TokenFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		c.Google.TokenFile = filepath.Join(home, ".config", "calrelay", "token.json")
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = "primary"
	}

	if len(c.Users) == 0 {
		return fmt.Errorf("users must contain at least one entry")
	}
	for _, u := range c.Users {
		if u == "" {
			return fmt.Errorf("users contains an empty identifier")
		}
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone %q is not a valid IANA zone name", c.Timezone)
		}
	}

	if c.EngineTick == 0 {
		c.EngineTick = 30 * time.Second
	}
	if c.EngineTick < 5*time.Second {
		return fmt.Errorf("engine_tick %v is too short (minimum 5s)", c.EngineTick)
	}
	if c.EngineTick > 5*time.Minute {
		return fmt.Errorf("engine_tick %v is too long (maximum 5m)", c.EngineTick)
	}

	if c.SyncWindow.PastMonths == 0 {
		c.SyncWindow.PastMonths = 3
	}
	if c.SyncWindow.FutureMonths == 0 {
		c.SyncWindow.FutureMonths = 6
	}
	if c.SyncWindow.PastMonths < 0 || c.SyncWindow.FutureMonths < 0 {
		return fmt.Errorf("sync_window months must be positive")
	}
	if c.SyncWindow.PastMonths > 36 || c.SyncWindow.FutureMonths > 36 {
		return fmt.Errorf("sync_window months must not exceed 36")
	}

	if c.MaxResults == 0 {
		c.MaxResults = 2500
	}
	if c.MaxResults < 1 || c.MaxResults > 2500 {
		return fmt.Errorf("max_results %d out of range (1-2500)", c.MaxResults)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
