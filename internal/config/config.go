// Package config loads the application configuration from YAML with
// Viper. Secrets never live in the file: the IMAP password and sink
// tokens resolve through environment variables or the system keyring.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// IMAPConfig holds the mailbox connection settings.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Password is resolved at load time from MAILSIFT_IMAP_PASSWORD
	// or the system keyring; it is never read from the file.
	Password string `mapstructure:"-" yaml:"-"`

	// TLS selects implicit TLS; when false the connection upgrades
	// with STARTTLS.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	Folder string `mapstructure:"folder" yaml:"folder"`
}

// SessionConfig tunes the sync session lifecycle.
type SessionConfig struct {
	BackfillDays     int  `mapstructure:"backfill_days" yaml:"backfill_days"`
	WatchdogMinutes  int  `mapstructure:"watchdog_minutes" yaml:"watchdog_minutes"`
	IndexBackfill    bool `mapstructure:"index_backfill" yaml:"index_backfill"`
	StartupRetries   int  `mapstructure:"startup_retries" yaml:"startup_retries"`
	InitialBackoffMS int  `mapstructure:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	MaxBackoffSec    int  `mapstructure:"max_backoff_sec" yaml:"max_backoff_sec"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	// Driver is "sqlite" or "mongo".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Path is the sqlite database file.
	Path string `mapstructure:"path" yaml:"path"`

	// URI, Database, and Collection configure the mongo backend.
	URI        string `mapstructure:"uri" yaml:"uri"`
	Database   string `mapstructure:"database" yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// ClassifierConfig selects the label classifier.
type ClassifierConfig struct {
	// Endpoint is the HTTP classification service. Empty selects the
	// built-in keyword rules.
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	Token      string `mapstructure:"-" yaml:"-"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// NotifyConfig configures the notification sinks. Unset entries are
// simply not wired.
type NotifyConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url" yaml:"slack_webhook_url"`
	WebhookURL      string `mapstructure:"webhook_url" yaml:"webhook_url"`
	WebhookToken    string `mapstructure:"-" yaml:"-"`
	RedisAddr       string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword   string `mapstructure:"-" yaml:"-"`
	RedisChannel    string `mapstructure:"redis_channel" yaml:"redis_channel"`
}

// PipelineConfig tunes record processing.
type PipelineConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// APIConfig configures the HTTP search surface.
type APIConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// Config is the top-level application configuration.
type Config struct {
	IMAP       IMAPConfig       `mapstructure:"imap" yaml:"imap"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Notify     NotifyConfig     `mapstructure:"notify" yaml:"notify"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	API        APIConfig        `mapstructure:"api" yaml:"api"`
}

// BackfillWindow converts the configured day count to a duration.
func (c SessionConfig) BackfillWindow() time.Duration {
	return time.Duration(c.BackfillDays) * 24 * time.Hour
}

// WatchdogPeriod converts the configured minute count to a duration.
func (c SessionConfig) WatchdogPeriod() time.Duration {
	return time.Duration(c.WatchdogMinutes) * time.Minute
}

// DefaultConfigPath returns the default configuration file location,
// ~/.config/mailsift/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsift", "config.yaml")
}

func defaultConfig() *Config {
	return &Config{
		IMAP: IMAPConfig{
			Port:   993,
			TLS:    true,
			Folder: "INBOX",
		},
		Session: SessionConfig{
			BackfillDays:     30,
			WatchdogMinutes:  29,
			InitialBackoffMS: 2000,
			MaxBackoffSec:    300,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(".", "mailsift.db"),
		},
		Classifier: ClassifierConfig{
			TimeoutSec: 30,
		},
		Pipeline: PipelineConfig{
			Workers: 4,
		},
		API: APIConfig{
			Listen: ":8080",
		},
	}
}

// Load reads the configuration from the given YAML file. A missing
// file yields the defaults; secrets are then resolved from the
// environment with a keyring fallback.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.folder", "INBOX")
	v.SetDefault("session.backfill_days", 30)
	v.SetDefault("session.watchdog_minutes", 29)
	v.SetDefault("session.initial_backoff_ms", 2000)
	v.SetDefault("session.max_backoff_sec", 300)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "mailsift.db")
	v.SetDefault("classifier.timeout_sec", 30)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("api.listen", ":8080")

	cfg := defaultConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			resolveSecrets(cfg)
			return cfg, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			resolveSecrets(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	resolveSecrets(cfg)
	return cfg, nil
}

// Validate checks the settings a session cannot start without.
func (c *Config) Validate() error {
	if c.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required")
	}
	if c.IMAP.Username == "" {
		return fmt.Errorf("imap.username is required")
	}
	if c.IMAP.Password == "" {
		return fmt.Errorf("imap password not found: set MAILSIFT_IMAP_PASSWORD or store it in the keyring")
	}
	switch c.Store.Driver {
	case "sqlite", "mongo":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "mongo" && c.Store.URI == "" {
		return fmt.Errorf("store.uri is required for the mongo driver")
	}
	return nil
}
