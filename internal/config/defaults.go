package config

import (
	"time"

	"github.com/rickgao/kalshi-trade/internal/api"
	"github.com/rickgao/kalshi-trade/internal/stream"
)

// Default values for optional configuration fields.
const (
	DefaultRestURL          = api.DefaultBaseURL
	DefaultWSURL            = stream.DefaultURL
	DefaultAPITimeout       = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultConnectStrategy  = "retry"
	DefaultConnectAttempts  = 3
	DefaultBackoffBase      = 100 * time.Millisecond
	DefaultBackoffMax       = 10 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultPingInterval     = 10 * time.Second
	DefaultHeartbeatTimeout = 30 * time.Second
	DefaultCommandTimeout   = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultBufferSize       = 1024
	DefaultTier             = "basic"
	DefaultBatchRetries     = 3
	DefaultRetryBaseDelay   = 100 * time.Millisecond
	DefaultRetryMaxDelay    = 10 * time.Second
	DefaultMinChunkInterval = 100 * time.Millisecond
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultLogLevel         = "info"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Stream defaults
	s := &c.Stream
	if s.ConnectStrategy == "" {
		s.ConnectStrategy = DefaultConnectStrategy
	}
	if s.ConnectAttempts == 0 {
		s.ConnectAttempts = DefaultConnectAttempts
	}
	if s.BackoffBase == 0 {
		s.BackoffBase = DefaultBackoffBase
	}
	if s.BackoffMax == 0 {
		s.BackoffMax = DefaultBackoffMax
	}
	if s.HandshakeTimeout == 0 {
		s.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if s.PingInterval == 0 {
		s.PingInterval = DefaultPingInterval
	}
	if s.HeartbeatTimeout == 0 {
		s.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if s.CommandTimeout == 0 {
		s.CommandTimeout = DefaultCommandTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.BufferSize == 0 {
		s.BufferSize = DefaultBufferSize
	}
	if s.PartialUpdates == nil {
		partial := true
		s.PartialUpdates = &partial
	}

	// Batch defaults
	b := &c.Batch
	if b.Tier == "" {
		b.Tier = DefaultTier
	}
	if b.MaxRetries == nil {
		retries := DefaultBatchRetries
		b.MaxRetries = &retries
	}
	if b.RetryBaseDelay == 0 {
		b.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if b.RetryMaxDelay == 0 {
		b.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if b.MinChunkInterval == 0 {
		b.MinChunkInterval = DefaultMinChunkInterval
	}

	// Journal defaults
	if c.Journal.Enabled {
		applyDBDefaults(&c.Journal.Database)
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
