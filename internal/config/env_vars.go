package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/rs/zerolog/log"
)

const (
	envPrefix = "DASH_"

	appNameVar         = "DASH_APP_NAME"
	graphQLURLVar      = "DASH_GRAPHQL_URL"
	logoutURLVar       = "DASH_LOGOUT_URL"
	defaultTenantIDVar = "DASH_DEFAULT_TENANT_ID"
	folderEnvVar       = "DASH_DATA_FOLDER"
	logLevelVar        = "DASH_LOG_LEVEL"
	logFormatVar       = "DASH_LOG_FORMAT"
	logFileVar         = "DASH_LOG_FILE"
	envVar             = "DASH_ENV"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "dashctl")
}

// GetGraphQLURL returns the single GraphQL endpoint used for every operation.
// There is deliberately no default: an unset value fails at client construction.
func (EnvVars) GetGraphQLURL() string {
	return GetEnv(graphQLURLVar, "")
}

// GetLogoutURL returns the best-effort logout endpoint. Empty disables the call.
func (EnvVars) GetLogoutURL() string {
	return GetEnv(logoutURLVar, "")
}

// GetDefaultTenantID is the placeholder tenant the backend assigns to users who
// have not completed onboarding.
func (EnvVars) GetDefaultTenantID() string {
	return GetEnv(defaultTenantIDVar, "")
}

func (EnvVars) GetDataFolder() string {
	if folder := GetEnv(folderEnvVar, ""); folder != "" {
		return folder
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".dashctl")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetLogFormat() string {
	return GetEnv(logFormatVar, "")
}

func (EnvVars) GetLogFile() string {
	return GetEnv(logFileVar, "")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "DEV")
}

func GetEnv(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	if value, ok := fileValue(envVar); ok {
		return value
	}
	return defaultValue
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	d, err := parseutil.ParseDurationSecond(raw)
	if err != nil {
		log.Warn().Err(err).Str("var", envVar).Str("value", raw).Msg("invalid duration, using default")
		return defaultValue
	}
	return d
}

func getInt(envVar string, defaultValue int) int {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	v, err := parseutil.ParseInt(raw)
	if err != nil {
		log.Warn().Err(err).Str("var", envVar).Str("value", raw).Msg("invalid integer, using default")
		return defaultValue
	}
	return int(v)
}

func getBool(envVar string, defaultValue bool) bool {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	v, err := parseutil.ParseBool(raw)
	if err != nil {
		log.Warn().Err(err).Str("var", envVar).Str("value", raw).Msg("invalid boolean, using default")
		return defaultValue
	}
	return v
}
