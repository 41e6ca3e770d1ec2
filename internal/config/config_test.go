package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/kalshi-trade/internal/batch"
)

func TestLoad(t *testing.T) {
	yaml := `
api:
  rest_url: https://demo-api.kalshi.co/trade-api/v2
  ws_url: wss://demo-api.kalshi.co/trade-api/ws/v2
  api_key: key-id
  private_key_path: /keys/kalshi.pem
stream:
  connect_strategy: simple
  ping_interval: 5s
  partial_updates: false
batch:
  tier: premier
  max_retries: 0
journal:
  enabled: true
  database:
    host: localhost
    name: trade
    user: trader
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.RestURL != "https://demo-api.kalshi.co/trade-api/v2" {
		t.Errorf("API.RestURL = %q, want %q", cfg.API.RestURL, "https://demo-api.kalshi.co/trade-api/v2")
	}
	if !cfg.API.HasCredentials() {
		t.Error("HasCredentials() = false, want true")
	}
	if cfg.Stream.PingInterval != 5*time.Second {
		t.Errorf("Stream.PingInterval = %v, want 5s", cfg.Stream.PingInterval)
	}
	if cfg.Stream.PartialUpdates == nil || *cfg.Stream.PartialUpdates {
		t.Errorf("Stream.PartialUpdates = %v, want false", cfg.Stream.PartialUpdates)
	}
	if cfg.Batch.MaxRetries == nil || *cfg.Batch.MaxRetries != 0 {
		t.Errorf("Batch.MaxRetries = %v, want explicit 0", cfg.Batch.MaxRetries)
	}
	if cfg.Journal.Database.Host != "localhost" {
		t.Errorf("Journal.Database.Host = %q, want %q", cfg.Journal.Database.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_KALSHI_KEY", "secret-key-id")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
api:
  api_key: ${TEST_KALSHI_KEY}
  private_key_path: /keys/kalshi.pem
journal:
  enabled: true
  database:
    host: localhost
    name: trade
    user: trader
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.APIKey != "secret-key-id" {
		t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "secret-key-id")
	}
	if cfg.Journal.Database.Password != "secret123" {
		t.Errorf("Journal.Database.Password = %q, want %q", cfg.Journal.Database.Password, "secret123")
	}
}

func TestLoadEnvValuesStayScalars(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "p@ss: #word\nlog:\n  level: debug")
	t.Setenv("TEST_DB_PORT", "6543")

	yaml := `
journal:
  database:
    port: ${TEST_DB_PORT}
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Journal.Database.Port != 6543 {
		t.Errorf("Journal.Database.Port = %d, want 6543", cfg.Journal.Database.Port)
	}
	if want := "p@ss: #word\nlog:\n  level: debug"; cfg.Journal.Database.Password != want {
		t.Errorf("Journal.Database.Password = %q, want %q", cfg.Journal.Database.Password, want)
	}
	if cfg.Log.Level != "" {
		t.Errorf("Log.Level = %q, env value leaked into the document", cfg.Log.Level)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"misspelled field", "stream:\n  ping_intervall: 5s\n", "ping_intervall"},
		{"unknown section", "metrics:\n  enabled: true\n", "metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempFile(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load = %v, want error naming %q", err, tt.want)
			}
		})
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeTempFile(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.RestURL != "" {
		t.Errorf("API.RestURL = %q, want empty", cfg.API.RestURL)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load(missing) = %v, want read error", err)
	}

	path := writeTempFile(t, "api: [not, a, map")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("Load(bad yaml) = %v, want parse error", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "log:\n  level: debug\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("API.RestURL = %q, want default %q", cfg.API.RestURL, DefaultRestURL)
	}
	if cfg.API.WSURL != DefaultWSURL {
		t.Errorf("API.WSURL = %q, want default %q", cfg.API.WSURL, DefaultWSURL)
	}
	if cfg.Stream.HeartbeatTimeout != DefaultHeartbeatTimeout {
		t.Errorf("Stream.HeartbeatTimeout = %v, want default %v", cfg.Stream.HeartbeatTimeout, DefaultHeartbeatTimeout)
	}
	if cfg.Stream.PartialUpdates == nil || !*cfg.Stream.PartialUpdates {
		t.Error("Stream.PartialUpdates should default to true")
	}
	if cfg.Batch.MaxRetries == nil || *cfg.Batch.MaxRetries != DefaultBatchRetries {
		t.Errorf("Batch.MaxRetries = %v, want default %d", cfg.Batch.MaxRetries, DefaultBatchRetries)
	}
	if cfg.Journal.Database.Port != 0 {
		t.Errorf("disabled journal should not get db defaults, port = %d", cfg.Journal.Database.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "batch:\n  tier: platinum\n")
	_, err := LoadAndValidate(path)
	if err == nil || !strings.Contains(err.Error(), "validate config") {
		t.Fatalf("LoadAndValidate = %v, want validate error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "key without private key",
			mutate:  func(c *Config) { c.API.APIKey = "key" },
			wantErr: "api.api_key and api.private_key_path must be set together",
		},
		{
			name:    "unknown connect strategy",
			mutate:  func(c *Config) { c.Stream.ConnectStrategy = "forever" },
			wantErr: `stream.connect_strategy must be simple or retry, got "forever"`,
		},
		{
			name:    "heartbeat shorter than ping",
			mutate:  func(c *Config) { c.Stream.HeartbeatTimeout = time.Second },
			wantErr: "stream.heartbeat_timeout (1s) must exceed stream.ping_interval (10s)",
		},
		{
			name:    "backoff max below base",
			mutate:  func(c *Config) { c.Stream.BackoffMax = time.Millisecond },
			wantErr: "stream.backoff_max must be >= stream.backoff_base",
		},
		{
			name:    "bad batch tier",
			mutate:  func(c *Config) { c.Batch.Tier = "gold" },
			wantErr: "batch: validation error: unknown rate limit tier \"gold\"",
		},
		{
			name: "journal missing host",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				applyDBDefaults(&c.Journal.Database)
			},
			wantErr: "journal.database.host is required",
		},
		{
			name: "journal min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Database = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 5, MinConns: 10}
			},
			wantErr: "journal.database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: `log.level must be debug, info, warn or error, got "verbose"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestEngineConfigs(t *testing.T) {
	cfg := Default()
	cfg.Stream.ConnectStrategy = "retry"
	cfg.Stream.ConnectAttempts = 5
	partial := false
	cfg.Stream.PartialUpdates = &partial
	cfg.Batch.Tier = "prime"

	sc, strategy := cfg.StreamConfig()
	if err := sc.Validate(); err != nil {
		t.Fatalf("stream config invalid: %v", err)
	}
	if sc.URL != DefaultWSURL || !sc.DisablePartialUpdates {
		t.Errorf("stream config = %+v", sc)
	}
	if strategy.Attempts() != 5 {
		t.Errorf("Attempts() = %d, want 5", strategy.Attempts())
	}

	cfg.Stream.ConnectStrategy = "simple"
	if _, strategy := cfg.StreamConfig(); strategy.Attempts() != 1 {
		t.Errorf("simple Attempts() = %d, want 1", strategy.Attempts())
	}

	bc, err := cfg.BatchConfig()
	if err != nil {
		t.Fatalf("BatchConfig: %v", err)
	}
	if bc.Tier != batch.TierPrime || bc.MaxRetries != DefaultBatchRetries {
		t.Errorf("batch config = %+v", bc)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
