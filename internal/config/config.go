// Package config loads and validates edge-intake configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Locale    LocaleConfig    `mapstructure:"locale"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Store     StoreConfig     `mapstructure:"store"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int `mapstructure:"port"`
	ReadTimeoutSec    int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSec   int `mapstructure:"write_timeout_seconds"`
	RequestTimeoutSec int `mapstructure:"request_timeout_seconds"`
}

// LocaleConfig fixes the supported locale set and cookie persistence.
type LocaleConfig struct {
	Supported    []string `mapstructure:"supported"`
	Default      string   `mapstructure:"default"`
	CookieName   string   `mapstructure:"cookie_name"`
	CookieMaxAge int      `mapstructure:"cookie_max_age_seconds"`
	PhonePrefix  string   `mapstructure:"phone_prefix"`
}

// AdmissionConfig governs the per-client write ceiling.
type AdmissionConfig struct {
	WindowMs int `mapstructure:"window_ms"`
	Limit    int `mapstructure:"limit"`
}

// Window returns the admission window as a duration.
func (a AdmissionConfig) Window() time.Duration {
	return time.Duration(a.WindowMs) * time.Millisecond
}

// StoreConfig controls the lead store connection and write budget.
type StoreConfig struct {
	Provider          string `mapstructure:"provider"`
	DSN               string `mapstructure:"dsn"`
	Table             string `mapstructure:"table"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	ConnLifetimeMin   int    `mapstructure:"conn_lifetime_minutes"`
	WriteTimeoutSec   int    `mapstructure:"write_timeout_seconds"`
	ExportPageDefault int    `mapstructure:"export_page_default"`
	ExportPageMax     int    `mapstructure:"export_page_max"`
}

// WriteTimeout returns the store write budget as a duration.
func (s StoreConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSec) * time.Second
}

// ConnLifetime returns the pool connection lifetime as a duration.
func (s StoreConfig) ConnLifetime() time.Duration {
	return time.Duration(s.ConnLifetimeMin) * time.Minute
}

// NotifierConfig selects and configures the fallback notifier transport.
type NotifierConfig struct {
	Provider      string `mapstructure:"provider"`
	WebhookURL    string `mapstructure:"webhook_url"`
	WebhookToken  string `mapstructure:"webhook_token"`
	TimeoutSec    int    `mapstructure:"timeout_seconds"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// Timeout returns the notifier call budget as a duration.
func (n NotifierConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSec) * time.Second
}

// TelemetryConfig configures the best-effort event relay.
type TelemetryConfig struct {
	CollectorURL string  `mapstructure:"collector_url"`
	TimeoutMs    int     `mapstructure:"timeout_ms"`
	MaxEventsRPS float64 `mapstructure:"max_events_rps"`
	Burst        int     `mapstructure:"burst"`
}

// Timeout returns the relay upstream budget as a duration.
func (t TelemetryConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// AdminConfig holds the shared secret protecting the export endpoint.
type AdminConfig struct {
	ExportToken string `mapstructure:"export_token"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 10)
	v.SetDefault("server.write_timeout_seconds", 30)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("locale.supported", []string{"id", "en"})
	v.SetDefault("locale.default", "id")
	v.SetDefault("locale.cookie_name", "locale")
	v.SetDefault("locale.cookie_max_age_seconds", 31536000)
	v.SetDefault("locale.phone_prefix", "62")
	v.SetDefault("admission.window_ms", 3600000)
	v.SetDefault("admission.limit", 5)
	v.SetDefault("store.provider", "postgres")
	// Empty defaults register the keys so env-only values survive Unmarshal.
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "leads")
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.conn_lifetime_minutes", 30)
	v.SetDefault("store.write_timeout_seconds", 8)
	v.SetDefault("store.export_page_default", 500)
	v.SetDefault("store.export_page_max", 5000)
	v.SetDefault("notifier.provider", "webhook")
	v.SetDefault("notifier.webhook_url", "")
	v.SetDefault("notifier.webhook_token", "")
	v.SetDefault("notifier.timeout_seconds", 5)
	v.SetDefault("notifier.pubsub_project", "")
	v.SetDefault("notifier.pubsub_topic", "")
	v.SetDefault("telemetry.collector_url", "")
	v.SetDefault("telemetry.timeout_ms", 2000)
	v.SetDefault("telemetry.max_events_rps", 50)
	v.SetDefault("telemetry.burst", 100)
	v.SetDefault("admin.export_token", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Locale.Supported) == 0 {
		return fmt.Errorf("locale.supported must not be empty")
	}
	if !contains(c.Locale.Supported, c.Locale.Default) {
		return fmt.Errorf("locale.default %q must be one of locale.supported", c.Locale.Default)
	}
	if c.Admission.WindowMs <= 0 {
		return fmt.Errorf("admission.window_ms must be > 0")
	}
	if c.Admission.Limit <= 0 {
		return fmt.Errorf("admission.limit must be > 0")
	}
	if c.Store.WriteTimeoutSec <= 0 {
		return fmt.Errorf("store.write_timeout_seconds must be > 0")
	}
	switch c.Store.Provider {
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.provider is postgres")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown store provider: %s", c.Store.Provider)
	}
	switch c.Notifier.Provider {
	case "webhook":
		if c.Notifier.WebhookURL == "" {
			return fmt.Errorf("notifier.webhook_url must be set when notifier.provider is webhook")
		}
	case "pubsub":
		if c.Notifier.PubSubProject == "" || c.Notifier.PubSubTopic == "" {
			return fmt.Errorf("notifier.pubsub_project and notifier.pubsub_topic must be set when notifier.provider is pubsub")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown notifier provider: %s", c.Notifier.Provider)
	}
	return nil
}

func contains(set []string, want string) bool {
	for _, s := range set {
		if s == want {
			return true
		}
	}
	return false
}
