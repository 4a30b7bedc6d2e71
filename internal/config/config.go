// Package config loads and validates the NotionRelay YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database drivers accepted in database.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultListenAddr        = ":3000"
	defaultDiscoveryInterval = 15 * time.Minute
	minDiscoveryInterval     = time.Minute
	defaultRateLimit         = 3.0
	defaultLogLevel          = "info"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// ListenAddr is the HTTP listen address. Defaults to ":3000".
	ListenAddr string `yaml:"listen_addr"`

	// PublicURL is the externally reachable base URL, used to derive the
	// OAuth redirect URI when notion.redirect_uri is unset.
	PublicURL string `yaml:"public_url,omitempty"`

	Notion      NotionConfig      `yaml:"notion"`
	Supermemory SupermemoryConfig `yaml:"supermemory"`
	Database    DatabaseConfig    `yaml:"database"`

	// DiscoveryInterval controls how often new databases are looked for.
	// Minimum 1m. Defaults to 15m if unset.
	DiscoveryInterval time.Duration `yaml:"discovery_interval"`

	Webhook WebhookConfig `yaml:"webhook,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// NotionConfig holds the public integration's OAuth client and API settings.
type NotionConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri,omitempty"`

	// APIURL overrides the Notion API base URL.
	APIURL string `yaml:"api_url,omitempty"`

	// RateLimit is the client-side request budget per second. Defaults to 3.
	RateLimit float64 `yaml:"rate_limit,omitempty"`
}

// SupermemoryConfig holds the sink's credentials.
type SupermemoryConfig struct {
	APIKey string `yaml:"api_key"`
	APIURL string `yaml:"api_url,omitempty"`

	// ContainerTag groups mirrored documents. Defaults to "notion-sync".
	ContainerTag string `yaml:"container_tag,omitempty"`
}

// DatabaseConfig selects the state store. An empty DSN with the sqlite
// driver means the default file under ~/.local/share/notionrelay.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

// WebhookConfig holds the webhook subscription secret. When set, incoming
// requests must carry a valid X-Notion-Signature.
type WebhookConfig struct {
	VerificationToken string `yaml:"verification_token,omitempty"`
}

// LogConfig controls log level and the optional rotating log file.
type LogConfig struct {
	Level      string `yaml:"level,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "notionrelay".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/notionrelay/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "notionrelay", "config.yaml"), nil
}

// Load reads the configuration file at the given path, applies environment
// overrides and validates the result.
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

	cfg.applyEnv(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Write serialises cfg to path, creating the parent directory. The file is
// readable only by the owner since it holds secrets.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// applyEnv overlays the deployment environment variables on top of the file.
func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Notion.ClientID, "NOTION_CLIENT_ID")
	set(&c.Notion.ClientSecret, "NOTION_CLIENT_SECRET")
	set(&c.Notion.RedirectURI, "NOTION_REDIRECT_URI")
	set(&c.Supermemory.APIKey, "SUPERMEMORY_API_KEY")

	if dsn := getenv("DATABASE_URL"); dsn != "" {
		c.Database.Driver = DriverPostgres
		c.Database.DSN = dsn
	}
	if port := getenv("PORT"); port != "" {
		c.ListenAddr = ":" + port
	}
}

// validate checks that all required fields are present and well-formed,
// filling defaults along the way.
func (c *Config) validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.Notion.ClientID == "" {
		return fmt.Errorf("notion.client_id is required")
	}
	if c.Notion.ClientSecret == "" {
		return fmt.Errorf("notion.client_secret is required")
	}
	if c.Notion.RedirectURI == "" && c.PublicURL != "" {
		c.Notion.RedirectURI = strings.TrimRight(c.PublicURL, "/") + "/auth/notion/callback"
	}
	for key, raw := range map[string]string{
		"public_url":          c.PublicURL,
		"notion.redirect_uri": c.Notion.RedirectURI,
		"notion.api_url":      c.Notion.APIURL,
		"supermemory.api_url": c.Supermemory.APIURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.ParseRequestURI(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%s %q must be a valid http or https URL", key, raw)
		}
	}
	if c.Notion.RateLimit == 0 {
		c.Notion.RateLimit = defaultRateLimit
	}
	if c.Notion.RateLimit < 0 {
		return fmt.Errorf("notion.rate_limit must be positive")
	}

	if c.Supermemory.APIKey == "" {
		return fmt.Errorf("supermemory.api_key is required")
	}

	switch c.Database.Driver {
	case "":
		c.Database.Driver = DriverSQLite
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q must be %q or %q", c.Database.Driver, DriverSQLite, DriverPostgres)
	}

	if c.DiscoveryInterval == 0 {
		c.DiscoveryInterval = defaultDiscoveryInterval
	}
	if c.DiscoveryInterval < minDiscoveryInterval {
		return fmt.Errorf("discovery_interval %v is too short (minimum 1m)", c.DiscoveryInterval)
	}

	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
