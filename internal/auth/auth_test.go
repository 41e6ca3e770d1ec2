package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/kalshi-trade/internal/errs"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("failed to generate test key: %v", err)
		}
	})
	return testKey
}

func writeKey(t *testing.T, block *pem.Block) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-key.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestCredentials_SignRequest(t *testing.T) {
	creds := &Credentials{
		KeyID:      "test-key-id",
		PrivateKey: newTestKey(t),
		now:        func() time.Time { return time.UnixMilli(1703123456789) },
	}

	headers, err := creds.SignRequest("GET", "/trade-api/v2/portfolio/balance")
	if err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}

	if headers[HeaderAccessKey] != "test-key-id" {
		t.Errorf("%s = %q, want %q", HeaderAccessKey, headers[HeaderAccessKey], "test-key-id")
	}
	if headers[HeaderAccessTimestamp] != "1703123456789" {
		t.Errorf("%s = %q, want %q", HeaderAccessTimestamp, headers[HeaderAccessTimestamp], "1703123456789")
	}
	if !isValidBase64(headers[HeaderAccessSignature]) {
		t.Errorf("%s is not valid base64: %q", HeaderAccessSignature, headers[HeaderAccessSignature])
	}

	if err := creds.Verify(1703123456789, "GET", "/trade-api/v2/portfolio/balance", headers[HeaderAccessSignature]); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestCredentials_SignRequestStripsQuery(t *testing.T) {
	creds := &Credentials{
		KeyID:      "k",
		PrivateKey: newTestKey(t),
		now:        func() time.Time { return time.UnixMilli(42) },
	}

	headers, err := creds.SignRequest("GET", "/trade-api/v2/markets?limit=10")
	if err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	if err := creds.Verify(42, "GET", "/trade-api/v2/markets", headers[HeaderAccessSignature]); err != nil {
		t.Errorf("expected signature over path without query: %v", err)
	}
}

func TestCredentials_SignIsRandomizedButVerifies(t *testing.T) {
	creds := &Credentials{KeyID: "k", PrivateKey: newTestKey(t)}

	a, err := creds.Sign(1000, "POST", "/trade-api/v2/portfolio/orders")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	b, err := creds.Sign(1000, "POST", "/trade-api/v2/portfolio/orders")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if a == b {
		t.Error("expected PSS signatures over identical input to differ")
	}
	for _, sig := range []string{a, b} {
		if err := creds.Verify(1000, "POST", "/trade-api/v2/portfolio/orders", sig); err != nil {
			t.Errorf("signature does not verify: %v", err)
		}
	}
	if err := creds.Verify(1001, "POST", "/trade-api/v2/portfolio/orders", a); err == nil {
		t.Error("expected verification to fail for a different timestamp")
	}
}

func TestCredentials_SignWithoutKey(t *testing.T) {
	creds := &Credentials{KeyID: "k"}
	_, err := creds.Sign(1, "GET", "/")
	if !errors.Is(err, errs.ErrAuth) {
		t.Errorf("err = %v, want ErrAuth", err)
	}
}

func TestCredentials_SignWebSocket(t *testing.T) {
	before := time.Now().UnixMilli()
	creds := &Credentials{KeyID: "ws-key", PrivateKey: newTestKey(t)}

	headers, err := creds.SignWebSocket()
	if err != nil {
		t.Fatalf("SignWebSocket failed: %v", err)
	}

	ts, err := strconv.ParseInt(headers[HeaderAccessTimestamp], 10, 64)
	if err != nil {
		t.Fatalf("timestamp is not an integer: %v", err)
	}
	if ts < before {
		t.Errorf("timestamp %d is older than test start %d", ts, before)
	}
	if err := creds.Verify(ts, "GET", WebSocketPath, headers[HeaderAccessSignature]); err != nil {
		t.Errorf("websocket signature does not verify: %v", err)
	}
}

func TestParsePrivateKey(t *testing.T) {
	key := newTestKey(t)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal PKCS#8: %v", err)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"pkcs8", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}), false},
		{"pkcs1", pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), false},
		{"not pem", []byte("not a pem file"), true},
		{"garbage block", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte("junk")}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrivateKey(tt.data)
			if tt.wantErr {
				if !errors.Is(err, errs.ErrAuth) {
					t.Errorf("err = %v, want ErrAuth", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrivateKey failed: %v", err)
			}
			if got.N.Cmp(key.N) != 0 {
				t.Error("parsed key does not match original")
			}
		})
	}
}

func TestLoadPrivateKey_FileNotFound(t *testing.T) {
	_, err := LoadPrivateKey("/nonexistent/path/to/key.pem")
	if !errors.Is(err, errs.ErrAuth) {
		t.Errorf("err = %v, want ErrAuth", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	pkcs8, _ := x509.MarshalPKCS8PrivateKey(newTestKey(t))
	path := writeKey(t, &pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8})

	creds, err := LoadCredentials("my-key-id", path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.KeyID != "my-key-id" {
		t.Errorf("KeyID = %q, want %q", creds.KeyID, "my-key-id")
	}
	if creds.PrivateKey == nil {
		t.Error("PrivateKey is nil")
	}
	if strings.Contains(creds.String(), "PrivateKey") {
		t.Errorf("String() leaks key material: %s", creds.String())
	}
}

func TestLoadCredentials_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		keyID string
		path  string
	}{
		{"missing key id", "", "/some/path"},
		{"missing path", "key-id", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCredentials(tt.keyID, tt.path)
			if !errors.Is(err, errs.ErrAuth) {
				t.Errorf("err = %v, want ErrAuth", err)
			}
		})
	}
}

func isValidBase64(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/=", c) {
			return false
		}
	}
	return len(s) > 0
}
