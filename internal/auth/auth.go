// Package auth signs Kalshi API requests with RSA-PSS.
//
// The same credentials authenticate REST calls and the websocket handshake.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/kalshi-trade/internal/errs"
)

// Header names attached to every authenticated request.
const (
	HeaderAccessKey       = "KALSHI-ACCESS-KEY"
	HeaderAccessTimestamp = "KALSHI-ACCESS-TIMESTAMP"
	HeaderAccessSignature = "KALSHI-ACCESS-SIGNATURE"
)

// WebSocketPath is the path used for websocket handshake signatures.
const WebSocketPath = "/trade-api/ws/v2"

// Credentials holds the API key and private key for signing requests.
type Credentials struct {
	KeyID      string          // API key ID from the Kalshi dashboard
	PrivateKey *rsa.PrivateKey // RSA private key for signing

	now func() time.Time
}

// NewCredentials wraps an already parsed key.
func NewCredentials(keyID string, key *rsa.PrivateKey) (*Credentials, error) {
	if keyID == "" {
		return nil, errs.Auth("API key ID is required", nil)
	}
	if key == nil {
		return nil, errs.Auth("private key is required", nil)
	}
	return &Credentials{KeyID: keyID, PrivateKey: key}, nil
}

// LoadCredentials loads credentials from key ID and private key file path.
func LoadCredentials(keyID, privateKeyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, errs.Auth("API key ID is required", nil)
	}
	if privateKeyPath == "" {
		return nil, errs.Auth("private key path is required", nil)
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, err
	}

	return NewCredentials(keyID, privateKey)
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Auth("read key file", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey decodes a PEM encoded RSA key in PKCS#8 or PKCS#1 form.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errs.Auth("failed to decode PEM block", nil)
	}

	// PKCS#8 first, it is what the dashboard hands out
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errs.Auth("key is not an RSA private key", nil)
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errs.Auth("parse private key", err)
	}

	return rsaKey, nil
}

// Sign returns the base64 signature of timestampMs + method + path.
//
// PSS padding is randomized, so two signatures over the same input differ
// even though both verify.
func (c *Credentials) Sign(timestampMs int64, method, path string) (string, error) {
	if c == nil || c.PrivateKey == nil {
		return "", errs.Auth("private key is required", nil)
	}

	message := strconv.FormatInt(timestampMs, 10) + method + path
	hashed := sha256.Sum256([]byte(message))

	signature, err := rsa.SignPSS(
		rand.Reader,
		c.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", errs.Auth("sign message", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// Verify checks a signature produced by Sign against the public half of the key.
func (c *Credentials) Verify(timestampMs int64, method, path, signature string) error {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return errs.Auth("decode signature", err)
	}
	message := strconv.FormatInt(timestampMs, 10) + method + path
	hashed := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPSS(&c.PrivateKey.PublicKey, crypto.SHA256, hashed[:], raw,
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}); err != nil {
		return errs.Auth("verify signature", err)
	}
	return nil
}

// SignRequest generates authentication headers for a request using the current time.
// The query string, if any, is not part of the signed path.
func (c *Credentials) SignRequest(method, path string) (map[string]string, error) {
	if c == nil {
		return nil, errs.Auth("credentials are required", nil)
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	timestampMs := now().UnixMilli()

	signature, err := c.Sign(timestampMs, method, path)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		HeaderAccessKey:       c.KeyID,
		HeaderAccessTimestamp: strconv.FormatInt(timestampMs, 10),
		HeaderAccessSignature: signature,
	}, nil
}

// SignWebSocket generates authentication headers for the websocket handshake.
func (c *Credentials) SignWebSocket() (map[string]string, error) {
	return c.SignRequest("GET", WebSocketPath)
}

// String hides the key material when credentials end up in logs.
func (c *Credentials) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Credentials{KeyID: %s}", c.KeyID)
}
