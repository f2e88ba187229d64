// Package config provides configuration types for the Commandability sync
// daemon.
//
// The schema is file-based (commandability.yaml) with environment
// overrides. It covers the HTTP API listener, the document and object
// storage backends, the local auth provider's accounts, and telemetry.
// The hosted backend services themselves are out of scope: only the
// in-memory, SQLite, filesystem and S3 drivers exist.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/Commandability/commandability-web-sub001/internal/domain/auth"
	"github.com/Commandability/commandability-web-sub001/internal/domain/ratelimit"
	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
)

// Storage drivers.
const (
	DriverMemory     = "memory"
	DriverSQLite     = "sqlite"
	DriverFilesystem = "filesystem"
	DriverS3         = "s3"
)

// Config is the top-level configuration.
type Config struct {
	// Server configures the HTTP API listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Documents selects the realtime document store.
	Documents DocumentsConfig `yaml:"documents" mapstructure:"documents"`

	// Objects selects the object store holding report artifacts.
	Objects ObjectsConfig `yaml:"objects" mapstructure:"objects"`

	// Auth configures the local auth provider.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Journal configures the deletion journal.
	Journal JournalConfig `yaml:"journal" mapstructure:"journal"`

	// Telemetry configures OpenTelemetry exporters.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode enables development features (debug logging, a dev account).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// AllowedOrigins are the browser origins allowed to call the API.
	// Empty means local-only: any request with an Origin header is refused.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins" validate:"omitempty,dive,url"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "10s").
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`

	// StreamBuffer is the per-stream buffer of pending aggregate updates.
	StreamBuffer int `yaml:"stream_buffer" mapstructure:"stream_buffer" validate:"omitempty,min=1"`
}

// DocumentsConfig selects the realtime document store.
type DocumentsConfig struct {
	// Driver is "memory" or "sqlite". Defaults to "memory".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,doc_driver"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ObjectsConfig selects the object store.
type ObjectsConfig struct {
	// Driver is "memory", "filesystem" or "s3". Defaults to "memory".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,object_driver"`

	// Dir is the root directory for the filesystem driver.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// S3 configures the s3 driver.
	S3 S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config configures S3-compatible object storage.
type S3Config struct {
	Bucket   string `yaml:"bucket" mapstructure:"bucket"`
	Region   string `yaml:"region" mapstructure:"region"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`

	// AccessKeyID and SecretAccessKey are optional; when empty the default
	// AWS credential chain applies.
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`

	// UsePathStyle addresses the bucket in the path (MinIO and friends).
	UsePathStyle bool `yaml:"use_path_style" mapstructure:"use_path_style"`
}

// AuthConfig configures the local auth provider.
type AuthConfig struct {
	// Accounts are the principals allowed to sign in.
	Accounts []AccountConfig `yaml:"accounts" mapstructure:"accounts" validate:"omitempty,dive"`

	// ReauthRate is the number of sign-in and reauthentication attempts
	// allowed per ReauthPeriod, per account. Zero disables throttling.
	ReauthRate int `yaml:"reauth_rate" mapstructure:"reauth_rate" validate:"omitempty,min=1"`

	// ReauthPeriod is the throttling window (e.g., "1m"). Defaults to "1m".
	ReauthPeriod string `yaml:"reauth_period" mapstructure:"reauth_period" validate:"omitempty,duration"`

	// CleanupInterval is how often idle throttling entries are dropped.
	// Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`
}

// AccountConfig defines one account.
type AccountConfig struct {
	// ID is the stable principal id; member data lives under users/{id}.
	ID string `yaml:"id" mapstructure:"id" validate:"required,excludes=/"`

	// Email is the sign-in handle.
	Email string `yaml:"email" mapstructure:"email" validate:"required,email"`

	// DisplayName is informational only.
	DisplayName string `yaml:"display_name" mapstructure:"display_name"`

	// SecretHash is the argon2id hash of the account secret.
	// Generate with: commandability hash-secret
	SecretHash string `yaml:"secret_hash" mapstructure:"secret_hash" validate:"required,argon2id_hash"`
}

// JournalConfig configures the on-disk record of committed deletions.
type JournalConfig struct {
	// Dir enables the journal. Empty disables it.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// RetentionDays is how long journal files are kept. Defaults to 90.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB rotates a day's file once it reaches this size. Defaults to 10.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`

	// CacheSize is the number of recent entries kept in memory. Defaults to 200.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`
}

// TelemetryConfig configures OpenTelemetry exporters. Both write to stderr.
type TelemetryConfig struct {
	// Traces enables the stdout trace exporter.
	Traces bool `yaml:"traces" mapstructure:"traces"`

	// Metrics enables the stdout metric exporter.
	Metrics bool `yaml:"metrics" mapstructure:"metrics"`

	// MetricsInterval is the metric export interval (e.g., "30s").
	MetricsInterval string `yaml:"metrics_interval" mapstructure:"metrics_interval" validate:"omitempty,duration"`
}

// DevAccountSecret is the secret of the account SetDevDefaults provides.
const DevAccountSecret = "dev-secret"

// SetDevDefaults applies permissive defaults for development mode.
// These defaults are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"

	// Provide a dev account if none configured.
	if len(c.Auth.Accounts) == 0 {
		if hash, err := auth.HashSecret(DevAccountSecret); err == nil {
			c.Auth.Accounts = []AccountConfig{
				{
					ID:          "dev-user",
					Email:       "dev@localhost.localdomain",
					DisplayName: "Development User",
					SecretHash:  hash,
				},
			}
		}
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only unless http_addr says otherwise.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Server.StreamBuffer == 0 {
		c.Server.StreamBuffer = 16
	}

	if c.Documents.Driver == "" {
		c.Documents.Driver = DriverMemory
	}
	if c.Objects.Driver == "" {
		c.Objects.Driver = DriverMemory
	}
	if c.Objects.S3.Region == "" {
		c.Objects.S3.Region = "us-east-1"
	}

	// Throttling is on by default. viper.IsSet distinguishes "not set"
	// from an explicit 0, which disables it.
	if !viper.IsSet("auth.reauth_rate") && c.Auth.ReauthRate == 0 {
		c.Auth.ReauthRate = 5
	}
	if c.Auth.ReauthPeriod == "" {
		c.Auth.ReauthPeriod = "1m"
	}
	if c.Auth.CleanupInterval == "" {
		c.Auth.CleanupInterval = "5m"
	}

	if c.Journal.RetentionDays == 0 {
		c.Journal.RetentionDays = 90
	}
	if c.Journal.MaxFileSizeMB == 0 {
		c.Journal.MaxFileSizeMB = 10
	}
	if c.Journal.CacheSize == 0 {
		c.Journal.CacheSize = 200
	}

	if c.Telemetry.MetricsInterval == "" {
		c.Telemetry.MetricsInterval = "30s"
	}
}

// AuthAccounts converts the configured accounts for the auth provider.
func (c *AuthConfig) AuthAccounts() []auth.Account {
	accounts := make([]auth.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		accounts = append(accounts, auth.Account{
			Identity: session.Identity{
				ID:          a.ID,
				Email:       auth.NormalizeEmail(a.Email),
				DisplayName: a.DisplayName,
			},
			SecretHash: a.SecretHash,
		})
	}
	return accounts
}

// AttemptLimit returns the sign-in/reauthentication throttling config.
// Burst equals Rate.
func (c *AuthConfig) AttemptLimit() ratelimit.RateLimitConfig {
	return ratelimit.RateLimitConfig{
		Rate:   c.ReauthRate,
		Burst:  c.ReauthRate,
		Period: ParseDuration(c.ReauthPeriod, time.Minute),
	}
}

// ParseDuration parses s, falling back to def when s is empty or invalid.
// Validate rejects invalid durations, so the fallback only covers unset
// values.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
