// Package config provides configuration loading and management for the sync service.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "BIOALERGIA"

// DocumentUnit names accepted in scheduler.units.
const (
	UnitIssued   = "emitidos"
	UnitReceived = "recibidos"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Tenant identifies whose documents this instance synchronizes
	Tenant TenantConfig `yaml:"tenant"`

	// Identity configures the upstream credential exchange
	Identity IdentityConfig `yaml:"identity"`

	// Registry configures the tax document registry endpoints
	Registry RegistryConfig `yaml:"registry"`

	// Calendar configures push notification channels; optional
	Calendar *CalendarConfig `yaml:"calendar,omitempty"`

	// Scheduler configures when syncs and channel maintenance run
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Server configures the HTTP listener
	Server ServerConfig `yaml:"server,omitempty"`

	Database  *DatabaseConfig  `yaml:"database,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TenantConfig identifies the taxpayer whose registry is mirrored
type TenantConfig struct {
	// RUT is the taxpayer identifier used in registry paths
	RUT string `yaml:"rut"`
}

// IdentityConfig defines the credential exchange settings
type IdentityConfig struct {
	// TokenURL is the credential exchange endpoint
	TokenURL string `yaml:"tokenUrl"`

	// ClientID is the OAuth client identifier
	ClientID string `yaml:"clientId"`

	// Username is the account used for the password grant
	Username string `yaml:"username"`

	// PasswordFile is the path to a file containing the account password
	// This is the recommended approach for production deployments
	PasswordFile string `yaml:"passwordFile,omitempty"`
}

// GetPassword returns the identity password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from BIOALERGIA_IDENTITY_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (i *IdentityConfig) GetPassword() (string, error) {
	if i.PasswordFile != "" {
		cleanPath := filepath.Clean(i.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", i.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv("BIOALERGIA_IDENTITY_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no identity password configured: set passwordFile or BIOALERGIA_IDENTITY_PASSWORD environment variable",
	)
}

// RegistryConfig defines the tax document registry endpoints
type RegistryConfig struct {
	// BaseURL is the registry API base (without unit paths)
	BaseURL string `yaml:"baseUrl"`

	// WorkspaceID is forwarded on every registry request
	WorkspaceID string `yaml:"workspaceId,omitempty"`

	// ResourceID is forwarded on every registry request
	ResourceID string `yaml:"resourceId,omitempty"`
}

// CalendarConfig defines push notification channel settings
type CalendarConfig struct {
	// BaseURL is the calendar API base
	BaseURL string `yaml:"baseUrl"`

	// CallbackBase is the externally reachable address notifications are
	// delivered to; the webhook path is appended to it
	CallbackBase string `yaml:"callbackBase"`

	// Resources lists the calendar identifiers to watch
	Resources []string `yaml:"resources"`
}

// SchedulerConfig defines when syncs run
type SchedulerConfig struct {
	// CronExpressions trigger full syncs; standard five-field cron
	CronExpressions []string `yaml:"cron"`

	// Timezone is the location cron expressions are evaluated in
	// Defaults to America/Santiago if not specified
	Timezone string `yaml:"timezone,omitempty"`

	// Units lists the document units each sync covers
	// Defaults to both emitidos and recibidos
	Units []string `yaml:"units,omitempty"`
}

// GetTimezone returns the scheduler timezone, using America/Santiago if not specified
func (s *SchedulerConfig) GetTimezone() string {
	if s.Timezone == "" {
		return "America/Santiago"
	}
	return s.Timezone
}

// GetUnits returns the configured document units, defaulting to both
func (s *SchedulerConfig) GetUnits() []string {
	if len(s.Units) == 0 {
		return []string{UnitIssued, UnitReceived}
	}
	return s.Units
}

// ServerConfig defines the HTTP listener settings
type ServerConfig struct {
	// Address is the listen address, defaulting to ":8080"
	Address string `yaml:"address,omitempty"`
}

// GetAddress returns the listen address, using ":8080" if not specified
func (s *ServerConfig) GetAddress() string {
	if s.Address == "" {
		return ":8080"
	}
	return s.Address
}

// TelemetryConfig defines metrics export settings
type TelemetryConfig struct {
	// Endpoint is the OTLP HTTP endpoint; metrics are disabled when empty
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS on the exporter connection
	Insecure bool `yaml:"insecure,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from BIOALERGIA_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		// Trim whitespace (including newlines) from file content
		password := strings.TrimSpace(string(data))
		return password, nil
	}

	if envPassword := os.Getenv("BIOALERGIA_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or BIOALERGIA_DATABASE_PASSWORD environment variable",
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	// URL-escape the password to handle special characters
	escapedPassword := url.QueryEscape(password)

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		escapedPassword,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// GetConnMaxLifetime parses the configured connection lifetime, returning the
// fallback when unset.
func (d *DatabaseConfig) GetConnMaxLifetime(fallback time.Duration) (time.Duration, error) {
	if d.ConnMaxLifetime == "" {
		return fallback, nil
	}
	lifetime, err := time.ParseDuration(d.ConnMaxLifetime)
	if err != nil {
		return 0, fmt.Errorf("invalid connMaxLifetime: %w", err)
	}
	return lifetime, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// Read the entire file into memory
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML content
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Validate the config
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.Tenant.RUT == "" {
		return fmt.Errorf("tenant.rut is required")
	}

	if err := validateIdentityConfig(&c.Identity); err != nil {
		return err
	}

	if err := validateRegistryConfig(&c.Registry); err != nil {
		return err
	}

	if c.Calendar != nil {
		if err := validateCalendarConfig(c.Calendar); err != nil {
			return err
		}
	}

	return validateSchedulerConfig(&c.Scheduler)
}

// validateIdentityConfig validates the credential exchange settings
func validateIdentityConfig(identity *IdentityConfig) error {
	if identity.TokenURL == "" {
		return fmt.Errorf("identity.tokenUrl is required")
	}
	if identity.ClientID == "" {
		return fmt.Errorf("identity.clientId is required")
	}
	if identity.Username == "" {
		return fmt.Errorf("identity.username is required")
	}
	return nil
}

// validateRegistryConfig validates the registry endpoint settings
func validateRegistryConfig(registry *RegistryConfig) error {
	if registry.BaseURL == "" {
		return fmt.Errorf("registry.baseUrl is required")
	}
	if _, err := url.Parse(registry.BaseURL); err != nil {
		return fmt.Errorf("registry.baseUrl is not a valid URL: %w", err)
	}
	return nil
}

// validateCalendarConfig validates push notification settings
func validateCalendarConfig(calendar *CalendarConfig) error {
	if calendar.BaseURL == "" {
		return fmt.Errorf("calendar.baseUrl is required")
	}
	if calendar.CallbackBase == "" {
		return fmt.Errorf("calendar.callbackBase is required")
	}
	if len(calendar.Resources) == 0 {
		return fmt.Errorf("calendar.resources must list at least one resource")
	}
	return nil
}

// validateSchedulerConfig validates cron expressions, timezone and units
func validateSchedulerConfig(scheduler *SchedulerConfig) error {
	if len(scheduler.CronExpressions) == 0 {
		return fmt.Errorf("scheduler.cron must list at least one expression")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for i, expr := range scheduler.CronExpressions {
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("scheduler.cron[%d]: invalid cron expression %q: %w", i, expr, err)
		}
	}

	if _, err := time.LoadLocation(scheduler.GetTimezone()); err != nil {
		return fmt.Errorf("scheduler.timezone: unknown location %q: %w", scheduler.Timezone, err)
	}

	for i, unit := range scheduler.GetUnits() {
		if unit != UnitIssued && unit != UnitReceived {
			return fmt.Errorf("scheduler.units[%d]: unknown unit %q (must be %s or %s)",
				i, unit, UnitIssued, UnitReceived)
		}
	}

	return nil
}
