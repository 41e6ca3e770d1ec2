package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/kalshi-trade/internal/auth"
	"github.com/rickgao/kalshi-trade/internal/errs"
)

// flakyServer fails the first n handshakes with status, then upgrades.
func flakyServer(t *testing.T, n int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var attempts atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= n {
			http.Error(w, http.StatusText(status), status)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, &attempts
}

func serverURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + auth.WebSocketPath
}

func closeSession(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestConnect_Simple(t *testing.T) {
	server, attempts := flakyServer(t, 0, 0)

	s, err := Connect(context.Background(), testConfig(serverURL(server)), Simple(), nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer closeSession(t, s)

	if s.State() != StateOpen {
		t.Errorf("State() = %s, want open", s.State())
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestConnect_SimpleFailsOnce(t *testing.T) {
	server, attempts := flakyServer(t, 10, http.StatusServiceUnavailable)

	_, err := Connect(context.Background(), testConfig(serverURL(server)), Simple(), nil)
	if !errors.Is(err, errs.ErrConnect) {
		t.Errorf("err = %v, want ErrConnect", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestConnect_RetryThenSuccess(t *testing.T) {
	server, attempts := flakyServer(t, 2, http.StatusServiceUnavailable)

	start := time.Now()
	s, err := Connect(context.Background(), testConfig(serverURL(server)),
		Retry(3, 100*time.Millisecond, time.Second), nil)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer closeSession(t, s)

	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
	// 100ms then 200ms between attempts
	if elapsed < 300*time.Millisecond || elapsed > 700*time.Millisecond {
		t.Errorf("elapsed = %s, want between 300ms and 700ms", elapsed)
	}
}

func TestConnect_RetryExhausted(t *testing.T) {
	server, attempts := flakyServer(t, 100, http.StatusServiceUnavailable)

	_, err := Connect(context.Background(), testConfig(serverURL(server)),
		Retry(2, 10*time.Millisecond, 20*time.Millisecond), nil)
	if !errors.Is(err, errs.ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("err = %q, want attempt count", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestConnect_AuthFailureNotRetried(t *testing.T) {
	server, attempts := flakyServer(t, 100, http.StatusUnauthorized)

	_, err := Connect(context.Background(), testConfig(serverURL(server)),
		Retry(5, 10*time.Millisecond, 50*time.Millisecond), nil)
	if !errors.Is(err, errs.ErrAuth) {
		t.Errorf("err = %v, want ErrAuth", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestConnect_InvalidStrategy(t *testing.T) {
	server, attempts := flakyServer(t, 0, 0)

	tests := []struct {
		name     string
		strategy ConnectStrategy
	}{
		{"zero attempts", Retry(0, 10*time.Millisecond, time.Second)},
		{"zero base", Retry(3, 0, time.Second)},
		{"max below base", Retry(3, time.Second, time.Millisecond)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Connect(context.Background(), testConfig(serverURL(server)), tt.strategy, nil)
			if !errors.Is(err, errs.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
	if attempts.Load() != 0 {
		t.Errorf("attempts = %d, want 0", attempts.Load())
	}
}

func TestConnect_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 0
	if _, err := Connect(context.Background(), cfg, Simple(), nil); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestConnect_ContextCanceledDuringBackoff(t *testing.T) {
	server, _ := flakyServer(t, 100, http.StatusServiceUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Connect(ctx, testConfig(serverURL(server)), Retry(5, time.Second, 5*time.Second), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Connect did not honor context cancellation")
	}
}

type recordingSigner struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (s *recordingSigner) SignRequest(method, path string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.paths = append(s.paths, method+" "+path)
	return map[string]string{
		auth.HeaderAccessKey:       "key-id",
		auth.HeaderAccessTimestamp: "1700000000000",
		auth.HeaderAccessSignature: "c2ln",
	}, nil
}

func TestConnect_SignsHandshake(t *testing.T) {
	ex := newFakeExchange(t)
	signer := &recordingSigner{}

	cfg := testConfig(ex.URL())
	cfg.Signer = signer
	s := connectTest(t, cfg)
	if _, err := s.Handle().Subscriptions(context.Background()); err != nil {
		t.Fatalf("Subscriptions failed: %v", err)
	}

	ex.mu.Lock()
	header, path := ex.header, ex.path
	ex.mu.Unlock()

	if got := header.Get(auth.HeaderAccessKey); got != "key-id" {
		t.Errorf("%s = %q, want %q", auth.HeaderAccessKey, got, "key-id")
	}
	if got := header.Get(auth.HeaderAccessSignature); got != "c2ln" {
		t.Errorf("%s = %q, want %q", auth.HeaderAccessSignature, got, "c2ln")
	}
	if path != auth.WebSocketPath {
		t.Errorf("path = %q, want %q", path, auth.WebSocketPath)
	}

	signer.mu.Lock()
	defer signer.mu.Unlock()
	if len(signer.paths) != 1 || signer.paths[0] != "GET "+auth.WebSocketPath {
		t.Errorf("signed = %v, want [GET %s]", signer.paths, auth.WebSocketPath)
	}
}

func TestConnect_SignerFailure(t *testing.T) {
	server, attempts := flakyServer(t, 0, 0)
	cfg := testConfig(serverURL(server))
	cfg.Signer = &recordingSigner{err: errors.New("no key")}

	_, err := Connect(context.Background(), cfg, Retry(3, 10*time.Millisecond, 20*time.Millisecond), nil)
	if !errors.Is(err, errs.ErrAuth) {
		t.Errorf("err = %v, want ErrAuth", err)
	}
	if attempts.Load() != 0 {
		t.Errorf("attempts = %d, want 0", attempts.Load())
	}
}
