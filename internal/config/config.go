package config

import "time"

// Config is the root configuration shared by the commands.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Stream  StreamConfig  `yaml:"stream"`
	Batch   BatchConfig   `yaml:"batch"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
}

// APIConfig holds Kalshi API settings.
type APIConfig struct {
	RestURL        string        `yaml:"rest_url"`
	WSURL          string        `yaml:"ws_url"`
	APIKey         string        `yaml:"api_key"`          // API key ID (for KALSHI-ACCESS-KEY header)
	PrivateKeyPath string        `yaml:"private_key_path"` // Path to RSA private key PEM file
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// HasCredentials reports whether both key fields are set.
func (a APIConfig) HasCredentials() bool {
	return a.APIKey != "" && a.PrivateKeyPath != ""
}

// StreamConfig holds streaming session settings.
type StreamConfig struct {
	ConnectStrategy  string        `yaml:"connect_strategy"` // simple or retry
	ConnectAttempts  int           `yaml:"connect_attempts"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	BufferSize       int           `yaml:"buffer_size"`

	// PartialUpdates uses delete_markets to drop tickers. Defaults to true.
	PartialUpdates *bool `yaml:"partial_updates"`
}

// BatchConfig holds batch order manager settings.
type BatchConfig struct {
	Tier             string        `yaml:"tier"`
	MaxRetries       *int          `yaml:"max_retries"` // nil means default; 0 disables retries
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
	MinChunkInterval time.Duration `yaml:"min_chunk_interval"`
}

// JournalConfig enables recording batch outcomes and fills to Postgres.
type JournalConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Database DBConfig `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
