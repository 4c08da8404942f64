package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/capture"
	"github.com/raysh454/glimpse/internal/classifier"
	"github.com/raysh454/glimpse/internal/store"
	"github.com/raysh454/glimpse/internal/webclient"
	"gopkg.in/yaml.v3"
)

type LoggingConfig struct {
	Backend string `yaml:"backend"` // stdout or zap
	Level   string `yaml:"level"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// AllowedOrigin is sent as Access-Control-Allow-Origin.
	AllowedOrigin string `yaml:"allowed_origin"`
}

// Config holds every runtime option. Zero values are filled from
// DefaultConfig when loading from a file.
type Config struct {
	Logging    LoggingConfig     `yaml:"logging"`
	HTTP       HTTPConfig        `yaml:"http"`
	Store      store.Config      `yaml:"store"`
	WebClient  webclient.Config  `yaml:"webclient"`
	Capture    capture.Config    `yaml:"capture"`
	Classifier classifier.Config `yaml:"classifier"`
	Audit      audit.Config      `yaml:"audit"`

	// Design is used when a request names neither a session nor a design
	// system of its own.
	Design audit.DesignSystem `yaml:"design_system"`

	// ArchivePages stores captured HTML in the blob store.
	ArchivePages bool `yaml:"archive_pages"`

	// JobRetention is how long finished jobs stay queryable.
	JobRetention time.Duration `yaml:"job_retention"`
	// SessionIdle closes sessions unused for this long. 0 keeps them forever.
	SessionIdle time.Duration `yaml:"session_idle"`
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Backend: "stdout", Level: "info"},
		HTTP:    HTTPConfig{Addr: ":8080", AllowedOrigin: "*"},
		Store: store.Config{
			Backend:    "sqlite",
			SQLitePath: "glimpse.db",
			BlobDir:    "blobs",
		},
		WebClient:    webclient.DefaultConfig(),
		Capture:      capture.DefaultConfig(),
		Classifier:   classifier.Config{Timeout: 10 * time.Second, MinConfidence: 0.5},
		Audit:        audit.DefaultConfig(),
		Design:       audit.DefaultDesignSystem(),
		ArchivePages: true,
		JobRetention: time.Hour,
		SessionIdle:  24 * time.Hour,
	}
}

// LoadConfig reads an optional YAML file over the defaults and then applies
// GLIMPSE_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Design = cfg.Design.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Logging.Backend = getEnv("GLIMPSE_LOG_BACKEND", c.Logging.Backend)
	c.Logging.Level = getEnv("GLIMPSE_LOG_LEVEL", c.Logging.Level)
	c.HTTP.Addr = getEnv("GLIMPSE_ADDR", c.HTTP.Addr)
	c.Store.Backend = getEnv("GLIMPSE_STORE_BACKEND", c.Store.Backend)
	c.Store.SQLitePath = getEnv("GLIMPSE_SQLITE_PATH", c.Store.SQLitePath)
	c.Store.PostgresURL = getEnv("GLIMPSE_POSTGRES_URL", c.Store.PostgresURL)
	c.Store.BlobDir = getEnv("GLIMPSE_BLOB_DIR", c.Store.BlobDir)
	c.Capture.Backend = capture.Backend(getEnv("GLIMPSE_CAPTURE_BACKEND", string(c.Capture.Backend)))
	c.Classifier.Endpoint = getEnv("GLIMPSE_CLASSIFIER_ENDPOINT", c.Classifier.Endpoint)
	c.Classifier.APIKey = getEnv("GLIMPSE_CLASSIFIER_API_KEY", c.Classifier.APIKey)

	var err error
	if c.Audit.Workers, err = getEnvAsInt("GLIMPSE_AUDIT_WORKERS", c.Audit.Workers); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings that would only fail later at startup.
func (c *Config) Validate() error {
	switch c.Logging.Backend {
	case "", "stdout", "zap":
	default:
		return fmt.Errorf("config: logging backend %q", c.Logging.Backend)
	}
	switch c.Store.Backend {
	case "", "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresURL == "" {
		return fmt.Errorf("config: store backend postgres needs postgres_url")
	}
	switch c.Capture.Backend {
	case "", capture.BackendStatic, capture.BackendChromedp:
	default:
		return fmt.Errorf("config: capture backend %q", c.Capture.Backend)
	}
	if c.Audit.Workers < 1 {
		return fmt.Errorf("config: audit workers must be at least 1, got %d", c.Audit.Workers)
	}
	if err := c.Design.Validate(); err != nil {
		return fmt.Errorf("config: design system: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return n, nil
}
