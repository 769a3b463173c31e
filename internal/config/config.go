package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type Config interface {
	EnvConfig
	SessionConfig
	TransportConfig
	StoreConfig
	OAuthConfig
}

type EnvConfig interface {
	GetAppName() string
	GetGraphQLURL() string
	GetLogoutURL() string
	GetDefaultTenantID() string
	GetDataFolder() string
	GetLogLevel() string
	GetLogFormat() string
	GetLogFile() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Session
	Transport
	Store
	OAuth
}

func New() Config {
	return mainConfig{}
}

var (
	fileValues   = map[string]string{}
	fileValuesMu sync.RWMutex
)

// LoadFile reads a YAML file whose keys are the env var names in lower case
// without the DASH_ prefix (graphql_url, store, redis_addr, ...). Values from the
// file sit underneath the environment: a set env var always wins.
func LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config.LoadFile read %s: %w", path, err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config.LoadFile parse %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToLower(k)] = fmt.Sprint(v)
	}

	fileValuesMu.Lock()
	fileValues = values
	fileValuesMu.Unlock()
	return nil
}

// ResetFile drops any values loaded by LoadFile.
func ResetFile() {
	fileValuesMu.Lock()
	fileValues = map[string]string{}
	fileValuesMu.Unlock()
}

func fileKey(envVar string) string {
	return strings.ToLower(strings.TrimPrefix(envVar, envPrefix))
}

func fileValue(envVar string) (string, bool) {
	fileValuesMu.RLock()
	defer fileValuesMu.RUnlock()
	v, ok := fileValues[fileKey(envVar)]
	return v, ok && v != ""
}
