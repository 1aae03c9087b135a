// Package config handles loading and validation of tool configuration from
// per-environment YAML files and environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/NomadCrew/release-gate/logger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	minKeyLength = 8
)

// TargetConfig describes the deployed environment under verification.
type TargetConfig struct {
	// BaseURL is the root of the deployed API, e.g. https://api.staging.nomadcrew.uk
	BaseURL string `mapstructure:"BASE_URL" yaml:"base_url"`
	// WSURL is the realtime endpoint probed by the connectivity checks.
	// Optional; the WebSocket check skips when unset.
	WSURL string `mapstructure:"WS_URL" yaml:"ws_url"`
	// JWKSURL is the published key-set endpoint. Optional.
	JWKSURL string `mapstructure:"JWKS_URL" yaml:"jwks_url"`
	// BearerToken authenticates the feature checks. Optional; authenticated
	// checks skip when unset or expired.
	BearerToken string `mapstructure:"BEARER_TOKEN" yaml:"bearer_token"`
	// Services are the deployable units the gate and rollback operate on.
	Services []string `mapstructure:"SERVICES" yaml:"services"`
}

// ControlPlaneConfig holds the deploy-ops API connection details.
type ControlPlaneConfig struct {
	// APIUrl is the URL of the deploy-ops API
	APIUrl string `mapstructure:"API_URL" yaml:"api_url"`
	// APIKey authenticates mutation calls
	APIKey string `mapstructure:"API_KEY" yaml:"api_key"`
	// TimeoutSeconds is the HTTP client timeout for control plane requests
	TimeoutSeconds int `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
}

// ExecutorConfig bounds the check execution pass.
type ExecutorConfig struct {
	// Parallelism is the worker count; 1 means sequential execution
	Parallelism int `mapstructure:"PARALLELISM" yaml:"parallelism"`
	// QueueSize is the maximum number of pending checks
	QueueSize int `mapstructure:"QUEUE_SIZE" yaml:"queue_size"`
	// BudgetSeconds is the wall-clock budget for a full verification pass;
	// checks not finished by then are recorded as SKIP
	BudgetSeconds int `mapstructure:"BUDGET_SECONDS" yaml:"budget_seconds"`
	// ShutdownTimeoutSeconds is the max wait for workers to drain on cancel
	ShutdownTimeoutSeconds int `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS" yaml:"shutdown_timeout_seconds"`
}

// ReportConfig controls where rendered gate reports are written.
type ReportConfig struct {
	OutputDir string `mapstructure:"OUTPUT_DIR" yaml:"output_dir"`
}

// RollbackConfig holds the defaults for the rollback state machine.
type RollbackConfig struct {
	// StabilizationSeconds is the wait between mutation and re-verification
	StabilizationSeconds int `mapstructure:"STABILIZATION_SECONDS" yaml:"stabilization_seconds"`
	// VerifyPolls bounds the post-rollback health polls before FAILED
	VerifyPolls int `mapstructure:"VERIFY_POLLS" yaml:"verify_polls"`
	// VerifyIntervalSeconds is the fixed wait between verification polls
	VerifyIntervalSeconds int `mapstructure:"VERIFY_INTERVAL_SECONDS" yaml:"verify_interval_seconds"`
	// LockTTLSeconds bounds how long a crashed run can hold a service lock
	LockTTLSeconds int `mapstructure:"LOCK_TTL_SECONDS" yaml:"lock_ttl_seconds"`
}

// RegistryConfig points at an optional YAML manifest overriding or extending
// the built-in check set.
type RegistryConfig struct {
	ManifestPath string `mapstructure:"MANIFEST_PATH" yaml:"manifest_path"`
}

// DatabaseConfig holds PostgreSQL connection details for the run history
// store. Optional: with no host configured the tool keeps history in memory.
type DatabaseConfig struct {
	Host         string `mapstructure:"HOST" yaml:"host"`
	Port         int    `mapstructure:"PORT" yaml:"port"`
	User         string `mapstructure:"USER" yaml:"user"`
	Password     string `mapstructure:"PASSWORD" yaml:"password"`
	Name         string `mapstructure:"NAME" yaml:"name"`
	SSLMode      string `mapstructure:"SSL_MODE" yaml:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"MAX_OPEN_CONNS" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"MAX_IDLE_CONNS" yaml:"max_idle_conns"`
	ConnMaxLife  string `mapstructure:"CONN_MAX_LIFE" yaml:"conn_max_life"`
}

// Enabled reports whether a history database was configured at all.
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// URL returns a postgres:// connection URL suitable for golang-migrate and
// other URL-based database tools.
func (c *DatabaseConfig) URL() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		sslmode,
	)
}

// RedisConfig holds Redis connection details for the rollback run-lock.
// Optional: with no address configured, rollback falls back to a process-local
// lock and logs that cross-host exclusion is not guaranteed.
type RedisConfig struct {
	Address      string `mapstructure:"ADDRESS" yaml:"address"`
	Password     string `mapstructure:"PASSWORD" yaml:"password"`
	DB           int    `mapstructure:"DB" yaml:"db"`
	UseTLS       bool   `mapstructure:"USE_TLS" yaml:"use_tls"`
	PoolSize     int    `mapstructure:"POOL_SIZE" yaml:"pool_size"`
	MinIdleConns int    `mapstructure:"MIN_IDLE_CONNS" yaml:"min_idle_conns"`
}

// Enabled reports whether a Redis endpoint was configured.
func (c *RedisConfig) Enabled() bool {
	return c.Address != ""
}

// ArchiveConfig controls uploading report artifacts to object storage.
type ArchiveConfig struct {
	Enabled bool `mapstructure:"ENABLED" yaml:"enabled"`
	// Bucket receives rendered reports under Prefix/<environment>/
	Bucket string `mapstructure:"BUCKET" yaml:"bucket"`
	Region string `mapstructure:"REGION" yaml:"region"`
	// Endpoint overrides the S3 endpoint for R2/MinIO style storage
	Endpoint        string `mapstructure:"ENDPOINT" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"ACCESS_KEY_ID" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"SECRET_ACCESS_KEY" yaml:"secret_access_key"`
	Prefix          string `mapstructure:"PREFIX" yaml:"prefix"`
}

// EmailConfig holds configuration for operator escalation emails.
type EmailConfig struct {
	Enabled      bool     `mapstructure:"ENABLED" yaml:"enabled"`
	FromAddress  string   `mapstructure:"FROM_ADDRESS" yaml:"from_address"`
	FromName     string   `mapstructure:"FROM_NAME" yaml:"from_name"`
	ResendAPIKey string   `mapstructure:"RESEND_API_KEY" yaml:"resend_api_key"`
	// Operators receive NO_GO and rollback-failure escalations
	Operators []string `mapstructure:"OPERATORS" yaml:"operators"`
}

// Config aggregates all tool configuration sections.
type Config struct {
	Environment  EnvType            `mapstructure:"ENVIRONMENT" yaml:"environment"`
	Target       TargetConfig       `mapstructure:"TARGET" yaml:"target"`
	ControlPlane ControlPlaneConfig `mapstructure:"CONTROL_PLANE" yaml:"control_plane"`
	Executor     ExecutorConfig     `mapstructure:"EXECUTOR" yaml:"executor"`
	Report       ReportConfig       `mapstructure:"REPORT" yaml:"report"`
	Rollback     RollbackConfig     `mapstructure:"ROLLBACK" yaml:"rollback"`
	Registry     RegistryConfig     `mapstructure:"REGISTRY" yaml:"registry"`
	Database     DatabaseConfig     `mapstructure:"DATABASE" yaml:"database"`
	Redis        RedisConfig        `mapstructure:"REDIS" yaml:"redis"`
	Archive      ArchiveConfig      `mapstructure:"ARCHIVE" yaml:"archive"`
	Email        EmailConfig        `mapstructure:"EMAIL" yaml:"email"`
}

// IsProduction returns true when the verification target is the production
// environment.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

// LoadConfigFromFile loads configuration from an explicit YAML file, merges
// defaults and environment variable overrides, unmarshals into Config, and
// validates it. An empty path skips the file and relies on defaults plus
// environment variables alone.
func LoadConfigFromFile(path string) (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	v.SetDefault("ENVIRONMENT", Development)
	v.SetDefault("TARGET.BASE_URL", "")
	v.SetDefault("TARGET.WS_URL", "")
	v.SetDefault("TARGET.JWKS_URL", "")
	v.SetDefault("TARGET.SERVICES", []string{"backend"})
	v.SetDefault("CONTROL_PLANE.API_URL", "")
	v.SetDefault("CONTROL_PLANE.TIMEOUT_SECONDS", 15)
	v.SetDefault("EXECUTOR.PARALLELISM", 1)
	v.SetDefault("EXECUTOR.QUEUE_SIZE", 100)
	v.SetDefault("EXECUTOR.BUDGET_SECONDS", 600)
	v.SetDefault("EXECUTOR.SHUTDOWN_TIMEOUT_SECONDS", 30)
	v.SetDefault("REPORT.OUTPUT_DIR", "reports")
	v.SetDefault("ROLLBACK.STABILIZATION_SECONDS", 60)
	v.SetDefault("ROLLBACK.VERIFY_POLLS", 3)
	v.SetDefault("ROLLBACK.VERIFY_INTERVAL_SECONDS", 10)
	v.SetDefault("ROLLBACK.LOCK_TTL_SECONDS", 900)
	v.SetDefault("REGISTRY.MANIFEST_PATH", "")
	v.SetDefault("DATABASE.HOST", "")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.NAME", "releasegate")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.MAX_OPEN_CONNS", 5)
	v.SetDefault("DATABASE.MAX_IDLE_CONNS", 2)
	v.SetDefault("DATABASE.CONN_MAX_LIFE", "1h")
	v.SetDefault("REDIS.ADDRESS", "")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.POOL_SIZE", 3)
	v.SetDefault("REDIS.MIN_IDLE_CONNS", 1)
	v.SetDefault("ARCHIVE.ENABLED", false)
	v.SetDefault("ARCHIVE.REGION", "auto")
	v.SetDefault("ARCHIVE.PREFIX", "reports")
	v.SetDefault("EMAIL.ENABLED", false)
	v.SetDefault("EMAIL.FROM_NAME", "Release Gate")
	v.SetDefault("LOG_LEVEL", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables
	envBindings := [][2]string{
		{"ENVIRONMENT", "GATE_ENVIRONMENT"},
		// Target config
		{"TARGET.BASE_URL", "TARGET_BASE_URL"},
		{"TARGET.WS_URL", "TARGET_WS_URL"},
		{"TARGET.JWKS_URL", "TARGET_JWKS_URL"},
		{"TARGET.BEARER_TOKEN", "TARGET_BEARER_TOKEN"},
		// Control plane config
		{"CONTROL_PLANE.API_URL", "CONTROL_PLANE_API_URL"},
		{"CONTROL_PLANE.API_KEY", "CONTROL_PLANE_API_KEY"},
		{"CONTROL_PLANE.TIMEOUT_SECONDS", "CONTROL_PLANE_TIMEOUT_SECONDS"},
		// Executor config
		{"EXECUTOR.PARALLELISM", "EXECUTOR_PARALLELISM"},
		{"EXECUTOR.QUEUE_SIZE", "EXECUTOR_QUEUE_SIZE"},
		{"EXECUTOR.BUDGET_SECONDS", "EXECUTOR_BUDGET_SECONDS"},
		{"EXECUTOR.SHUTDOWN_TIMEOUT_SECONDS", "EXECUTOR_SHUTDOWN_TIMEOUT_SECONDS"},
		// Report config
		{"REPORT.OUTPUT_DIR", "REPORT_OUTPUT_DIR"},
		// Rollback config
		{"ROLLBACK.STABILIZATION_SECONDS", "ROLLBACK_STABILIZATION_SECONDS"},
		{"ROLLBACK.VERIFY_POLLS", "ROLLBACK_VERIFY_POLLS"},
		{"ROLLBACK.VERIFY_INTERVAL_SECONDS", "ROLLBACK_VERIFY_INTERVAL_SECONDS"},
		{"ROLLBACK.LOCK_TTL_SECONDS", "ROLLBACK_LOCK_TTL_SECONDS"},
		// Registry config
		{"REGISTRY.MANIFEST_PATH", "REGISTRY_MANIFEST_PATH"},
		// Database config
		{"DATABASE.HOST", "DB_HOST"},
		{"DATABASE.PORT", "DB_PORT"},
		{"DATABASE.USER", "DB_USER"},
		{"DATABASE.PASSWORD", "DB_PASSWORD"},
		{"DATABASE.NAME", "DB_NAME"},
		{"DATABASE.SSL_MODE", "DB_SSL_MODE"},
		// Redis config
		{"REDIS.ADDRESS", "REDIS_ADDRESS"},
		{"REDIS.PASSWORD", "REDIS_PASSWORD"},
		{"REDIS.DB", "REDIS_DB"},
		{"REDIS.USE_TLS", "REDIS_USE_TLS"},
		// Archive config
		{"ARCHIVE.ENABLED", "ARCHIVE_ENABLED"},
		{"ARCHIVE.BUCKET", "ARCHIVE_BUCKET"},
		{"ARCHIVE.REGION", "ARCHIVE_REGION"},
		{"ARCHIVE.ENDPOINT", "ARCHIVE_ENDPOINT"},
		{"ARCHIVE.ACCESS_KEY_ID", "ARCHIVE_ACCESS_KEY_ID"},
		{"ARCHIVE.SECRET_ACCESS_KEY", "ARCHIVE_SECRET_ACCESS_KEY"},
		{"ARCHIVE.PREFIX", "ARCHIVE_PREFIX"},
		// Email config
		{"EMAIL.ENABLED", "EMAIL_ENABLED"},
		{"EMAIL.FROM_ADDRESS", "EMAIL_FROM_ADDRESS"},
		{"EMAIL.FROM_NAME", "EMAIL_FROM_NAME"},
		{"EMAIL.RESEND_API_KEY", "RESEND_API_KEY"},
		{"EMAIL.OPERATORS", "EMAIL_OPERATORS"},
	}

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Infow("Configuration loaded",
		"environment", cfg.Environment,
		"target_base_url", cfg.Target.BaseURL,
		"services", cfg.Target.Services,
		"parallelism", cfg.Executor.Parallelism,
		"budget_seconds", cfg.Executor.BudgetSeconds,
		"history_store", storeKind(&cfg),
		"archive_enabled", cfg.Archive.Enabled,
		"email_enabled", cfg.Email.Enabled,
	)
	return &cfg, nil
}

func storeKind(cfg *Config) string {
	if cfg.Database.Enabled() {
		return "postgres"
	}
	return "memory"
}

// validateConfig checks if the loaded configuration values are valid.
func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	// Validate Target Config
	if cfg.Target.BaseURL == "" {
		return fmt.Errorf("target base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.Target.BaseURL); err != nil {
		return fmt.Errorf("invalid target base URL '%s': %w", cfg.Target.BaseURL, err)
	}
	if len(cfg.Target.Services) == 0 {
		return fmt.Errorf("at least one target service is required")
	}

	// Validate Control Plane Config
	if cfg.ControlPlane.APIUrl != "" {
		if _, err := url.ParseRequestURI(cfg.ControlPlane.APIUrl); err != nil {
			return fmt.Errorf("invalid control plane API URL: %w", err)
		}
		if cfg.ControlPlane.TimeoutSeconds <= 0 {
			return fmt.Errorf("control plane timeout must be positive")
		}
	}

	// Validate Executor Config
	if cfg.Executor.Parallelism <= 0 {
		return fmt.Errorf("executor parallelism must be positive")
	}
	if cfg.Executor.QueueSize <= 0 {
		return fmt.Errorf("executor queue size must be positive")
	}
	if cfg.Executor.BudgetSeconds <= 0 {
		return fmt.Errorf("executor budget must be positive")
	}
	if cfg.Executor.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("executor shutdown timeout must be positive")
	}

	// Validate Report Config
	if cfg.Report.OutputDir == "" {
		return fmt.Errorf("report output directory is required")
	}

	// Validate Rollback Config
	if cfg.Rollback.StabilizationSeconds < 0 {
		return fmt.Errorf("rollback stabilization window must not be negative")
	}
	if cfg.Rollback.VerifyPolls <= 0 {
		return fmt.Errorf("rollback verify polls must be positive")
	}
	if cfg.Rollback.VerifyIntervalSeconds <= 0 {
		return fmt.Errorf("rollback verify interval must be positive")
	}
	if cfg.Rollback.LockTTLSeconds <= 0 {
		return fmt.Errorf("rollback lock TTL must be positive")
	}

	// Validate Database Config (optional section)
	if cfg.Database.Enabled() {
		if cfg.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if cfg.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if cfg.Database.Password == "" {
			log.Warn("Database password is not set. Ensure this is intended (e.g., using trusted auth).")
		}
	} else {
		log.Warn("No history database configured; run history is kept in memory only")
	}

	// Validate Redis Config (optional section)
	if !cfg.Redis.Enabled() {
		log.Warn("No Redis configured; rollback run-lock is process-local only")
	} else if cfg.Redis.Password == "" && cfg.Redis.UseTLS {
		log.Warn("Redis password is not set, but TLS is enabled. Ensure this is correct for your Redis provider.")
	}

	// Validate Archive Config
	if err := validateArchiveConfig(&cfg.Archive, log); err != nil {
		return err
	}

	// Validate Email Config
	if err := validateEmailConfig(&cfg.Email, log); err != nil {
		return err
	}

	return nil
}

// validateArchiveConfig validates object storage settings. If archiving is
// enabled but incomplete, it auto-disables with a warning rather than
// blocking the verification run.
func validateArchiveConfig(cfg *ArchiveConfig, log *zap.SugaredLogger) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.Bucket == "" {
		log.Warn("Archive bucket not set, auto-disabling report archiving")
		cfg.Enabled = false
		return nil
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		log.Warn("Archive credentials not set, auto-disabling report archiving")
		cfg.Enabled = false
		return nil
	}
	if len(cfg.AccessKeyID) < minKeyLength {
		return fmt.Errorf("archive access key ID must be at least %d characters long", minKeyLength)
	}
	return nil
}

// validateEmailConfig validates escalation email settings. If enabled but
// missing the API key or recipients, it auto-disables with a warning.
func validateEmailConfig(cfg *EmailConfig, log *zap.SugaredLogger) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.ResendAPIKey == "" {
		log.Warn("Resend API key not set, auto-disabling escalation emails")
		cfg.Enabled = false
		return nil
	}
	if len(cfg.Operators) == 0 {
		log.Warn("No operator addresses configured, auto-disabling escalation emails")
		cfg.Enabled = false
		return nil
	}
	if cfg.FromAddress == "" {
		return fmt.Errorf("email from address is required when escalation emails are enabled")
	}
	return nil
}
