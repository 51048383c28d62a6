package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/crypto"
	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/Tanmoy095/LogiSynapse/shared/config"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"

	persistKeyPurpose   = "tracker/persist"
	telemetryKeyPurpose = "tracker/telemetry-snapshot"
)

// TrackerConfig is the tracker's own configuration. Infrastructure shared
// with the other services (database, kafka, rabbitmq) lives in CommonConfig.
type TrackerConfig struct {
	CommonConfig *config.CommonConfig `yaml:"-"`

	APIURL   string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
	WSURL    string `yaml:"ws_url"`

	// 64 hex characters each
	PersistSecret   string `yaml:"persist_secret"`
	WSSecret        string `yaml:"ws_secret"`
	TelemetrySecret string `yaml:"telemetry_secret"`
	Cipher          string `yaml:"cipher"`

	StorageBackend string `yaml:"storage_backend"`
	StoragePath    string `yaml:"storage_path"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	TraceStdout bool   `yaml:"trace_stdout"`

	SlowActionMs       int    `yaml:"slow_action_ms"`
	SlowSelectorMs     int    `yaml:"slow_selector_ms"`
	HistoryCapacity    int    `yaml:"history_capacity"`
	MaxStateBytes      int    `yaml:"max_state_bytes"`
	ValidationSchedule string `yaml:"validation_schedule"`
	AlertQueue         string `yaml:"alert_queue"`
	EncryptSnapshots   bool   `yaml:"encrypt_snapshots"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *TrackerConfig {
	return &TrackerConfig{
		APIURL:             "http://localhost:5000/api",
		WSURL:              "ws://localhost:5000/ws",
		Cipher:             crypto.DefaultAlgorithm,
		StorageBackend:     BackendFile,
		StoragePath:        ".tracker-state",
		MetricsAddr:        ":9090",
		LogLevel:           "info",
		LogFormat:          "json",
		SlowActionMs:       200,
		SlowSelectorMs:     50,
		HistoryCapacity:    1000,
		MaxStateBytes:      1024 * 1024,
		ValidationSchedule: "@every 1m",
		AlertQueue:         "telemetry_alerts",
		EncryptSnapshots:   true,
	}
}

// LoadConfig builds the configuration from defaults, then the optional YAML
// file at path, then the environment. The result is validated.
func LoadConfig(path string) (*TrackerConfig, error) {
	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: config file %s not found", domainErr.ErrConfiguration, path)
		case err != nil:
			return nil, fmt.Errorf("%w: read config file: %v", domainErr.ErrConfiguration, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config file %s: %v", domainErr.ErrConfiguration, path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.CommonConfig = config.LoadCommonConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *TrackerConfig) applyEnv() error {
	strs := map[string]*string{
		"API_URL":             &c.APIURL,
		"API_TOKEN":           &c.APIToken,
		"WS_URL":              &c.WSURL,
		"PERSIST_SECRET":      &c.PersistSecret,
		"WS_SECRET":           &c.WSSecret,
		"TELEMETRY_SECRET":    &c.TelemetrySecret,
		"PERSIST_CIPHER":      &c.Cipher,
		"STORAGE_BACKEND":     &c.StorageBackend,
		"STORAGE_PATH":        &c.StoragePath,
		"METRICS_ADDR":        &c.MetricsAddr,
		"LOG_LEVEL":           &c.LogLevel,
		"LOG_FORMAT":          &c.LogFormat,
		"VALIDATION_SCHEDULE": &c.ValidationSchedule,
		"ALERT_QUEUE":         &c.AlertQueue,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SLOW_ACTION_MS":   &c.SlowActionMs,
		"SLOW_SELECTOR_MS": &c.SlowSelectorMs,
		"HISTORY_CAPACITY": &c.HistoryCapacity,
		"MAX_STATE_BYTES":  &c.MaxStateBytes,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer, got %q", domainErr.ErrConfiguration, name, v)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"TRACE_STDOUT":      &c.TraceStdout,
		"ENCRYPT_SNAPSHOTS": &c.EncryptSnapshots,
	}
	for name, dst := range bools {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s must be a boolean, got %q", domainErr.ErrConfiguration, name, v)
		}
		*dst = b
	}
	return nil
}

// Validate fails loudly on anything the process cannot start without.
func (c *TrackerConfig) Validate() error {
	if _, err := crypto.ParseKey(c.PersistSecret); err != nil {
		return fmt.Errorf("PERSIST_SECRET: %w", err)
	}
	if c.WSSecret != "" {
		if _, err := crypto.ParseKey(c.WSSecret); err != nil {
			return fmt.Errorf("WS_SECRET: %w", err)
		}
	}
	if c.TelemetrySecret != "" {
		if _, err := crypto.ParseKey(c.TelemetrySecret); err != nil {
			return fmt.Errorf("TELEMETRY_SECRET: %w", err)
		}
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("%w: API_URL must be http(s), got %q", domainErr.ErrConfiguration, c.APIURL)
	}
	switch c.StorageBackend {
	case BackendMemory, BackendFile:
	case BackendPostgres:
		if c.CommonConfig == nil || !c.CommonConfig.HasDB() {
			return fmt.Errorf("%w: postgres storage needs DB_HOST and DB_NAME", domainErr.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", domainErr.ErrConfiguration, c.StorageBackend)
	}
	if c.SlowActionMs <= 0 || c.SlowSelectorMs <= 0 || c.HistoryCapacity <= 0 || c.MaxStateBytes <= 0 {
		return fmt.Errorf("%w: thresholds and limits must be positive", domainErr.ErrConfiguration)
	}
	return nil
}

// PersistKey is the key that encrypts the persisted state.
func (c *TrackerConfig) PersistKey() ([]byte, error) {
	master, err := crypto.ParseKey(c.PersistSecret)
	if err != nil {
		return nil, err
	}
	return crypto.DeriveKey(master, persistKeyPurpose)
}

// SnapshotKey encrypts telemetry snapshots. Without TELEMETRY_SECRET it is
// derived from the persist secret; it never equals the persist key.
func (c *TrackerConfig) SnapshotKey() ([]byte, error) {
	secret := c.TelemetrySecret
	if secret == "" {
		secret = c.PersistSecret
	}
	master, err := crypto.ParseKey(secret)
	if err != nil {
		return nil, err
	}
	return crypto.DeriveKey(master, telemetryKeyPurpose)
}

// WSKey is shared with the streaming server, so it is used as given.
// Nil means live tracking is disabled.
func (c *TrackerConfig) WSKey() ([]byte, error) {
	if c.WSSecret == "" {
		return nil, nil
	}
	return crypto.ParseKey(c.WSSecret)
}

func (c *TrackerConfig) SlowActionThreshold() time.Duration {
	return time.Duration(c.SlowActionMs) * time.Millisecond
}

func (c *TrackerConfig) SlowSelectorThreshold() time.Duration {
	return time.Duration(c.SlowSelectorMs) * time.Millisecond
}
