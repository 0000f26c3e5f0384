package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: postgres://localhost/cleaning\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/cleaning", cfg.Database.DSN)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "America/Sao_Paulo", cfg.Schedule.Timezone)
	require.NotNil(t, cfg.Schedule.Location)
	assert.Equal(t, "America/Sao_Paulo", cfg.Schedule.Location.String())
	assert.Equal(t, DefaultCarriers, cfg.Schedule.Carriers)
	assert.Equal(t, DefaultAlertKeywords, cfg.Schedule.AlertKeywords)
	assert.Equal(t, 30*time.Second, cfg.Import.ExtractTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Fetcher.Interval)
	assert.False(t, cfg.Fetcher.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
schedule:
  timezone: America/Manaus
  carriers: ["ACME"]
import:
  extract_timeout_seconds: 5
`)
	t.Setenv("DATABASE_DSN", "postgres://env/override")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "America/Manaus", cfg.Schedule.Location.String())
	assert.Equal(t, []string{"ACME"}, cfg.Schedule.Carriers)
	assert.Equal(t, 5*time.Second, cfg.Import.ExtractTimeout)
	assert.Equal(t, "postgres://env/override", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	path := writeConfig(t, "schedule:\n  timezone: Mars/Olympus\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
