package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvType represents a verification target environment
type EnvType string

const (
	// Development environment
	Development EnvType = "dev"

	// Staging environment
	Staging EnvType = "staging"

	// Production environment
	Production EnvType = "production"
)

// LoadConfigForEnv loads configuration for a specific environment from its
// conventional config file (config/config.<env>.yaml).
func LoadConfigForEnv(environment string) (*Config, error) {
	env := EnvType(environment)

	configPath, err := getConfigPath(env)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadConfigFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	cfg.Environment = env
	return cfg, nil
}

// getConfigPath determines the path to the environment-specific config
func getConfigPath(env EnvType) (string, error) {
	// Base config directory
	configDir := "config"

	// Check if running in a container (different path structure)
	if os.Getenv("CONTAINER") == "true" {
		configDir = "/app/config"
	}

	filename, err := configFilename(env)
	if err != nil {
		return "", err
	}

	path := filepath.Join(configDir, filename)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("configuration file not found: %s", path)
	}

	return path, nil
}

func configFilename(env EnvType) (string, error) {
	switch env {
	case Development:
		return "config.dev.yaml", nil
	case Staging:
		return "config.staging.yaml", nil
	case Production:
		return "config.prod.yaml", nil
	default:
		return "", fmt.Errorf("unknown environment: %s", env)
	}
}

// CreateConfigTemplateForEnvironment writes a starter config file for the
// given environment. Fails if the file already exists.
func CreateConfigTemplateForEnvironment(env EnvType) (string, error) {
	configDir := "config"

	filename, err := configFilename(env)
	if err != nil {
		return "", err
	}

	path := filepath.Join(configDir, filename)

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("configuration file already exists: %s", path)
	}

	template := getConfigTemplate(env)

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config template: %w", err)
	}

	return path, nil
}

// getConfigTemplate returns a config template for the given environment
func getConfigTemplate(env EnvType) string {
	baseTemplate := `# Release gate config for %s environment
environment: "%s"

target:
  base_url: "%s"
  ws_url: "%s"
  jwks_url: "%s/.well-known/jwks.json"
  # The bearer token for authenticated feature checks comes from the
  # TARGET_BEARER_TOKEN environment variable: "${TARGET_BEARER_TOKEN}"
  services:
    - backend

executor:
  parallelism: 4
  budget_seconds: 600

report:
  output_dir: "reports"

rollback:
  stabilization_seconds: 60
  verify_polls: 3
  verify_interval_seconds: 10

# Uncomment to keep run history in Postgres instead of process memory.
# database:
#   host: "${DB_HOST}"
#   port: 5432
#   user: "${DB_USER}"
#   password: "${DB_PASSWORD}"
#   name: "releasegate"
#   ssl_mode: "%s"

# Uncomment to allow rollback mutations through the deploy-ops API.
# control_plane:
#   api_url: "${CONTROL_PLANE_API_URL}"
#   api_key: "${CONTROL_PLANE_API_KEY}"
#   timeout_seconds: 15

# Uncomment for a cross-host rollback run-lock.
# redis:
#   address: "${REDIS_ADDRESS}"
#   password: "${REDIS_PASSWORD}"

# Uncomment to archive report artifacts to object storage.
# archive:
#   enabled: true
#   bucket: "${ARCHIVE_BUCKET}"
#   access_key_id: "${ARCHIVE_ACCESS_KEY_ID}"
#   secret_access_key: "${ARCHIVE_SECRET_ACCESS_KEY}"

# Uncomment to escalate NO_GO and failed rollbacks by email.
# email:
#   enabled: true
#   from_address: "releases@nomadcrew.uk"
#   resend_api_key: "${RESEND_API_KEY}"
#   operators:
#     - "oncall@nomadcrew.uk"
`

	var baseURL, wsURL, sslMode string

	switch env {
	case Development:
		baseURL = "http://localhost:8080"
		wsURL = "ws://localhost:8080/v1/ws"
		sslMode = "disable"
	case Staging:
		baseURL = "https://api.staging.nomadcrew.uk"
		wsURL = "wss://api.staging.nomadcrew.uk/v1/ws"
		sslMode = "require"
	case Production:
		baseURL = "https://api.nomadcrew.uk"
		wsURL = "wss://api.nomadcrew.uk/v1/ws"
		sslMode = "require"
	}

	return fmt.Sprintf(baseTemplate, env, env, baseURL, wsURL, baseURL, sslMode)
}
