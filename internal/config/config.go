// Package config holds the tada configuration, its defaults and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Store  StoreConfig       `yaml:"store"`
	Redis  RedisConfig       `yaml:"redis"`
	Sync   SyncConfig        `yaml:"sync"`
	Server ServerConfig      `yaml:"server"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile receives logs while the TUI owns the terminal.
	LogFile string `yaml:"log_file"`
	Title   string `yaml:"title"`
	// Theme is one of classic, neon or mono.
	Theme string `yaml:"theme"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Theme, validation.In("classic", "neon", "mono")),
	)
}

// StoreConfig selects and configures the table backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	JSON     FileConfig     `yaml:"json"`
	SQLite   FileConfig     `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Remote   RemoteConfig   `yaml:"remote"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required,
			validation.In(BackendMemory, BackendJSON, BackendSQLite, BackendPostgres, BackendRemote)),
	); err != nil {
		return err
	}
	switch c.Backend {
	case BackendJSON:
		return c.JSON.Validate()
	case BackendSQLite:
		return c.SQLite.Validate()
	case BackendPostgres:
		return c.Postgres.Validate()
	case BackendRemote:
		return c.Remote.Validate()
	}
	return nil
}

// FileConfig points at a local data file.
type FileConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the file configuration.
func (c *FileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// PostgresConfig holds the PostgreSQL connection string.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// Validate validates the postgres configuration.
func (c *PostgresConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DSN, validation.Required),
	)
}

// RemoteConfig points at a running `todo serve`.
type RemoteConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// RedisConfig enables change fan-out between processes when URL is set.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// Validate validates the redis configuration.
func (c *RedisConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Channel, validation.When(c.URL != "", validation.Required)),
	)
}

// Enabled reports whether redis fan-out is configured.
func (c *RedisConfig) Enabled() bool {
	return c.URL != ""
}

// SyncConfig tunes the retry loop for unacknowledged writes.
type SyncConfig struct {
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RetryInterval, validation.Required, validation.Min(100*time.Millisecond)),
	)
}

// ServerConfig holds `todo serve` configuration.
type ServerConfig struct {
	Port int        `yaml:"port"`
	Auth AuthConfig `yaml:"auth"`
}

// Address returns HTTP server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// Enabled returns true when authentication is active.
func (c *AuthConfig) Enabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			Title:    "Todos",
			Theme:    "classic",
		},
		Store: StoreConfig{
			Backend: BackendJSON,
			JSON:    FileConfig{Path: "todos.json"},
			SQLite:  FileConfig{Path: "tada.db"},
			Remote: RemoteConfig{
				URL:     "http://localhost:8080",
				Timeout: 10 * time.Second,
			},
		},
		Redis: RedisConfig{
			Channel: "tada:todos",
		},
		Sync: SyncConfig{
			RetryInterval: 5 * time.Second,
		},
		Server: ServerConfig{
			Port: 8080,
			Auth: AuthConfig{Mode: AuthModeDisabled},
		},
	}
}

// DefaultPath returns ~/.tada/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".tada", "config.yaml")
}

func httpURL(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an http or https URL")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}
