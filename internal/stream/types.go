package stream

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/kalshi-trade/internal/errs"
)

// DefaultURL is the production websocket endpoint.
const DefaultURL = "wss://api.elections.kalshi.com/trade-api/ws/v2"

// Signer produces authentication headers for the handshake.
// *auth.Credentials satisfies it.
type Signer interface {
	SignRequest(method, path string) (map[string]string, error)
}

// Config configures a streaming session.
type Config struct {
	URL    string // Websocket URL including the /trade-api/ws/v2 path
	Signer Signer // nil connects without authentication

	HandshakeTimeout time.Duration // Bound on the opening handshake
	PingInterval     time.Duration // How often the client pings the server
	HeartbeatTimeout time.Duration // Max silence before the session is declared lost
	CommandTimeout   time.Duration // Max wait for a command's confirmations
	WriteTimeout     time.Duration // Write deadline for frames
	BufferSize       int           // Per-receiver update buffer depth

	// DisablePartialUpdates replaces delete_markets with an unsubscribe
	// followed by a subscribe of the remaining tickers.
	DisablePartialUpdates bool

	// Dialer overrides the default websocket dialer.
	Dialer *websocket.Dialer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:              DefaultURL,
		HandshakeTimeout: 5 * time.Second,
		PingInterval:     10 * time.Second,
		HeartbeatTimeout: 30 * time.Second,
		CommandTimeout:   10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1024,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return errs.Validation("stream url is required")
	}
	if c.HandshakeTimeout <= 0 {
		return errs.Validation("handshake timeout must be > 0")
	}
	if c.PingInterval <= 0 {
		return errs.Validation("ping interval must be > 0")
	}
	if c.HeartbeatTimeout <= 0 {
		return errs.Validation("heartbeat timeout must be > 0")
	}
	if c.CommandTimeout <= 0 {
		return errs.Validation("command timeout must be > 0")
	}
	if c.WriteTimeout <= 0 {
		return errs.Validation("write timeout must be > 0")
	}
	if c.BufferSize < 1 {
		return errs.Validation("buffer size must be >= 1")
	}
	return nil
}

// ConnectStrategy controls how Connect handles a failed handshake.
// The zero value behaves like Simple.
type ConnectStrategy struct {
	retry       bool
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// Simple makes a single attempt and returns its error.
func Simple() ConnectStrategy {
	return ConnectStrategy{maxAttempts: 1}
}

// Retry makes up to attempts handshakes, doubling the delay between them
// from base up to max.
func Retry(attempts int, base, max time.Duration) ConnectStrategy {
	return ConnectStrategy{retry: true, maxAttempts: attempts, baseDelay: base, maxDelay: max}
}

// Attempts returns the maximum number of handshakes.
func (s ConnectStrategy) Attempts() int {
	if !s.retry {
		return 1
	}
	return s.maxAttempts
}

// Validate rejects retry strategies that could never succeed.
func (s ConnectStrategy) Validate() error {
	if !s.retry {
		return nil
	}
	if s.maxAttempts < 1 {
		return errs.Validation("retry strategy needs at least 1 attempt, got %d", s.maxAttempts)
	}
	if s.baseDelay <= 0 {
		return errs.Validation("retry base delay must be > 0")
	}
	if s.maxDelay < s.baseDelay {
		return errs.Validation("retry max delay %s is below base delay %s", s.maxDelay, s.baseDelay)
	}
	return nil
}

func (s ConnectStrategy) String() string {
	if !s.retry {
		return "simple"
	}
	return fmt.Sprintf("retry(attempts=%d, base=%s, max=%s)", s.maxAttempts, s.baseDelay, s.maxDelay)
}

// State is the session lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateLost
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateLost:
		return "lost"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CommandError is a server-reported error for a command.
type CommandError struct {
	RequestID int64
	Code      int
	Message   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %d rejected: code %d: %s", e.RequestID, e.Code, e.Message)
}

func (e *CommandError) Unwrap() error { return errs.ErrAPI }

// ConnectionLostError reports an unexpected termination together with the
// subscriptions that were active, so the caller can resubscribe on a new session.
type ConnectionLostError struct {
	Reason   string
	Snapshot Snapshot
}

func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("connection lost: %s", e.Reason)
}

func (e *ConnectionLostError) Unwrap() error { return errs.ErrConnectionLost }
