package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/rickgao/kalshi-trade/internal/auth"
	"github.com/rickgao/kalshi-trade/internal/errs"
)

// Connect performs the handshake according to strategy and starts the
// session's run loop. The returned session is open.
func Connect(ctx context.Context, cfg Config, strategy ConnectStrategy, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	conn, err := dial(ctx, cfg, strategy, logger)
	if err != nil {
		return nil, err
	}

	s := newSession(cfg, conn, logger)
	s.start()
	return s, nil
}

func dial(ctx context.Context, cfg Config, strategy ConnectStrategy, logger *slog.Logger) (*websocket.Conn, error) {
	attempts := strategy.Attempts()
	if attempts == 1 {
		return dialOnce(ctx, cfg)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = strategy.baseDelay
	b.MaxInterval = strategy.maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := dialOnce(ctx, cfg)
		if err == nil {
			if attempt > 1 {
				logger.Info("websocket connected after retry", "attempt", attempt)
			}
			return conn, nil
		}
		lastErr = err

		// Bad credentials or a cancelled caller will not improve with retries
		if errors.Is(err, errs.ErrAuth) || errors.Is(err, errs.ErrValidation) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == attempts {
			break
		}

		delay := b.NextBackOff()
		logger.Warn("websocket connect failed, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("connect after %d attempts: %w", attempts, lastErr)
}

// dialOnce performs a single signed handshake.
func dialOnce(ctx context.Context, cfg Config) (*websocket.Conn, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errs.Validation("invalid stream url %q: %v", cfg.URL, err)
	}
	path := u.Path
	if path == "" {
		path = auth.WebSocketPath
	}

	header := http.Header{}
	if cfg.Signer != nil {
		signed, err := cfg.Signer.SignRequest(http.MethodGet, path)
		if err != nil {
			if errors.Is(err, errs.ErrAuth) {
				return nil, err
			}
			return nil, errs.Auth("sign handshake", err)
		}
		for k, v := range signed {
			header.Set(k, v)
		}
	}

	dialer := *websocket.DefaultDialer
	if cfg.Dialer != nil {
		dialer = *cfg.Dialer
	}
	dialer.HandshakeTimeout = cfg.HandshakeTimeout

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, errs.Auth(fmt.Sprintf("handshake rejected: %s", resp.Status), err)
			default:
				return nil, errs.Connect(fmt.Sprintf("handshake failed: %s", resp.Status), err)
			}
		}
		if ctx.Err() != nil {
			return nil, errs.Connect("dial", ctx.Err())
		}
		return nil, errs.Connect("dial", err)
	}
	return conn, nil
}
