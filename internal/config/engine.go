package config

import (
	"log/slog"

	"github.com/rickgao/kalshi-trade/internal/batch"
	"github.com/rickgao/kalshi-trade/internal/stream"
)

// StreamConfig maps the stream section onto a session config. The signer is
// left for the caller to attach.
func (c *Config) StreamConfig() (stream.Config, stream.ConnectStrategy) {
	s := c.Stream
	cfg := stream.Config{
		URL:              c.API.WSURL,
		HandshakeTimeout: s.HandshakeTimeout,
		PingInterval:     s.PingInterval,
		HeartbeatTimeout: s.HeartbeatTimeout,
		CommandTimeout:   s.CommandTimeout,
		WriteTimeout:     s.WriteTimeout,
		BufferSize:       s.BufferSize,
	}
	if s.PartialUpdates != nil {
		cfg.DisablePartialUpdates = !*s.PartialUpdates
	}

	strategy := stream.Simple()
	if s.ConnectStrategy == "retry" {
		strategy = stream.Retry(s.ConnectAttempts, s.BackoffBase, s.BackoffMax)
	}
	return cfg, strategy
}

// BatchConfig maps the batch section onto a manager config.
func (c *Config) BatchConfig() (batch.Config, error) {
	b := c.Batch
	tier, err := batch.ParseTier(b.Tier)
	if err != nil {
		return batch.Config{}, err
	}
	cfg := batch.Config{
		Tier:             tier,
		RetryBaseDelay:   b.RetryBaseDelay,
		RetryMaxDelay:    b.RetryMaxDelay,
		MinChunkInterval: b.MinChunkInterval,
	}
	if b.MaxRetries != nil {
		cfg.MaxRetries = *b.MaxRetries
	}
	return cfg, cfg.Validate()
}

// LogLevel returns the slog level for log.level.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
