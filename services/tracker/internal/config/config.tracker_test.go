package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// clearEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	for _, name := range []string{
		"API_URL", "API_TOKEN", "WS_URL", "PERSIST_SECRET", "WS_SECRET", "TELEMETRY_SECRET",
		"PERSIST_CIPHER", "STORAGE_BACKEND", "STORAGE_PATH", "METRICS_ADDR", "LOG_LEVEL",
		"LOG_FORMAT", "VALIDATION_SCHEDULE", "ALERT_QUEUE", "SLOW_ACTION_MS", "SLOW_SELECTOR_MS",
		"HISTORY_CAPACITY", "MAX_STATE_BYTES", "TRACE_STDOUT", "ENCRYPT_SNAPSHOTS",
		"DB_HOST", "DB_NAME", "DB_USER", "DB_PASSWORD", "DB_PORT",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadConfig_DefaultsWithSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("PERSIST_SECRET", secret)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", cfg.APIURL)
	assert.Equal(t, BackendFile, cfg.StorageBackend)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowActionThreshold())
	assert.Equal(t, 50*time.Millisecond, cfg.SlowSelectorThreshold())
	assert.NotNil(t, cfg.CommonConfig)

	ws, err := cfg.WSKey()
	require.NoError(t, err)
	assert.Nil(t, ws)
}

func TestLoadConfig_MissingOrBadSecretFailsLoudly(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig("")
	assert.ErrorIs(t, err, domainErr.ErrConfiguration)

	t.Setenv("PERSIST_SECRET", "abc")
	_, err = LoadConfig("")
	assert.ErrorIs(t, err, domainErr.ErrConfiguration)

	t.Setenv("PERSIST_SECRET", secret)
	t.Setenv("WS_SECRET", "zz")
	_, err = LoadConfig("")
	assert.ErrorIs(t, err, domainErr.ErrConfiguration)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	yml := []byte("api_url: https://api.example.com\nstorage_backend: memory\nslow_action_ms: 500\npersist_secret: " + secret + "\n")
	require.NoError(t, os.WriteFile(path, yml, 0o600))
	t.Setenv("SLOW_ACTION_MS", "300")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, 300, cfg.SlowActionMs)
}

func TestLoadConfig_Rejections(t *testing.T) {
	cases := map[string]map[string]string{
		"bad int":          {"SLOW_ACTION_MS": "fast"},
		"bad bool":         {"TRACE_STDOUT": "maybe"},
		"bad backend":      {"STORAGE_BACKEND": "s3"},
		"postgres no db":   {"STORAGE_BACKEND": "postgres"},
		"bad api url":      {"API_URL": "ftp://x"},
		"negative history": {"HISTORY_CAPACITY": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PERSIST_SECRET", secret)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			assert.ErrorIs(t, err, domainErr.ErrConfiguration)
		})
	}

	clearEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, domainErr.ErrConfiguration)
}

func TestKeys_AreSeparated(t *testing.T) {
	cfg := Defaults()
	cfg.PersistSecret = secret

	persist, err := cfg.PersistKey()
	require.NoError(t, err)
	snap, err := cfg.SnapshotKey()
	require.NoError(t, err)
	assert.Len(t, persist, 32)
	assert.False(t, bytes.Equal(persist, snap))
}
