// Package kalshi implements the exchange client: signed REST calls,
// rate limiting and retries.
package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Signer produces the exchange's RSA-PSS request signatures. The key is
// loaded once at startup and never rotated mid-run.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
}

// NewSigner loads the PEM private key from disk.
func NewSigner(keyID, keyPath string) (*Signer, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("kalshi.NewSigner: read key %q: %w", keyPath, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("kalshi.NewSigner: no PEM block in %q", keyPath)
	}

	key, err := parsePrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("kalshi.NewSigner: parse key: %w", err)
	}
	return &Signer{keyID: keyID, key: key}, nil
}

func parsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA key: %T", parsed)
	}
	return key, nil
}

// Sign authenticates one request. The signed message is the millisecond
// timestamp, the uppercase method and the request path concatenated.
func (s *Signer) Sign(req *http.Request, now time.Time) error {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	msg := ts + req.Method + req.URL.Path

	digest := sha256.Sum256([]byte(msg))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return fmt.Errorf("kalshi.Sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", s.keyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(sig))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}
