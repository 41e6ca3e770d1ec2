package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if (c.API.APIKey == "") != (c.API.PrivateKeyPath == "") {
		return errors.New("api.api_key and api.private_key_path must be set together")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	switch c.Stream.ConnectStrategy {
	case "simple", "retry":
	default:
		return fmt.Errorf("stream.connect_strategy must be simple or retry, got %q", c.Stream.ConnectStrategy)
	}
	if c.Stream.ConnectAttempts < 1 {
		return errors.New("stream.connect_attempts must be >= 1")
	}
	if c.Stream.BackoffMax < c.Stream.BackoffBase {
		return errors.New("stream.backoff_max must be >= stream.backoff_base")
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}
	if c.Stream.HeartbeatTimeout <= c.Stream.PingInterval {
		return fmt.Errorf("stream.heartbeat_timeout (%s) must exceed stream.ping_interval (%s)", c.Stream.HeartbeatTimeout, c.Stream.PingInterval)
	}

	if _, err := c.BatchConfig(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
