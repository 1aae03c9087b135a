package config

import (
	"os"
	"strconv"
	"strings"
)

// FeatureFlags holds toggles for optional check groups
type FeatureFlags struct {
	EnableWebSocketChecks   bool // Controls whether realtime connectivity checks are registered
	EnablePerformanceChecks bool // Controls whether latency threshold checks are registered
}

// GetFeatureFlags loads feature flags from environment variables
func GetFeatureFlags() FeatureFlags {
	return FeatureFlags{
		EnableWebSocketChecks:   getBoolEnv("ENABLE_WEBSOCKET_CHECKS", true),
		EnablePerformanceChecks: getBoolEnv("ENABLE_PERFORMANCE_CHECKS", true),
	}
}

// getBoolEnv retrieves a boolean environment variable with a default value
func getBoolEnv(key string, defaultVal bool) bool {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}

	// Convert to lowercase for case-insensitive comparison
	val = strings.ToLower(val)

	// Check for truthy values
	if val == "true" || val == "yes" || val == "1" || val == "on" {
		return true
	}

	// Try parsing as int
	if intVal, err := strconv.Atoi(val); err == nil {
		return intVal != 0
	}

	return false
}
