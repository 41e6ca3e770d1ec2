package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/rickgao/kalshi-trade/internal/errs"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty url", func(c *Config) { c.URL = "" }, true},
		{"zero handshake", func(c *Config) { c.HandshakeTimeout = 0 }, true},
		{"zero ping", func(c *Config) { c.PingInterval = 0 }, true},
		{"zero heartbeat", func(c *Config) { c.HeartbeatTimeout = 0 }, true},
		{"zero command timeout", func(c *Config) { c.CommandTimeout = 0 }, true},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }, true},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, errs.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestConnectStrategy(t *testing.T) {
	if got := Simple().Attempts(); got != 1 {
		t.Errorf("Simple().Attempts() = %d, want 1", got)
	}
	if got := (ConnectStrategy{}).Attempts(); got != 1 {
		t.Errorf("zero value Attempts() = %d, want 1", got)
	}

	r := Retry(3, 100*time.Millisecond, 10*time.Second)
	if r.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", r.Attempts())
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if r.String() != "retry(attempts=3, base=100ms, max=10s)" {
		t.Errorf("String() = %q", r.String())
	}
	if err := Retry(0, time.Millisecond, time.Second).Validate(); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("zero attempts err = %v, want ErrValidation", err)
	}
}

func TestErrors_Unwrap(t *testing.T) {
	lost := &ConnectionLostError{Reason: "heartbeat timeout"}
	if !errors.Is(lost, errs.ErrConnectionLost) {
		t.Error("ConnectionLostError does not match ErrConnectionLost")
	}
	if lost.Error() != "connection lost: heartbeat timeout" {
		t.Errorf("Error() = %q", lost.Error())
	}

	cerr := &CommandError{RequestID: 4, Code: 6, Message: "Unknown channel name"}
	if !errors.Is(cerr, errs.ErrAPI) {
		t.Error("CommandError does not match ErrAPI")
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosing:    "closing",
		StateLost:       "lost",
		StateClosed:     "closed",
		State(99):       "unknown",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
