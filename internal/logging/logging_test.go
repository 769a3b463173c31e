package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-tenant-session/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	var buf bytes.Buffer
	closer, err := logging.Setup(logging.Options{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	log.Debug().Str("tenant", "t1").Msg("switched")

	entry := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "debug", entry["level"])
	require.Equal(t, "t1", entry["tenant"])
	require.Equal(t, "switched", entry["message"])
}

func TestSetupLevelFiltering(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	var buf bytes.Buffer
	_, err := logging.Setup(logging.Options{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Info().Msg("hidden")
	require.Zero(t, buf.Len())
	log.Warn().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestSetupFile(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	path := filepath.Join(t.TempDir(), "logs", "dashctl.log")
	var buf bytes.Buffer
	closer, err := logging.Setup(logging.Options{Format: "json", File: path, Output: &buf})
	require.NoError(t, err)

	log.Info().Msg("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "to file")
}

func TestRetryableLogger(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	var buf bytes.Buffer
	_, err := logging.Setup(logging.Options{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	logging.NewRetryableLogger("transport").Warn("retrying", "attempt", 2, "error", errors.New("boom"))

	entry := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "transport", entry["component"])
	require.Equal(t, float64(2), entry["attempt"])
	require.Equal(t, "boom", entry["error"])
}
