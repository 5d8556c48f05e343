package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCE is a Proof Key for Code Exchange pair (RFC 7636).  The verifier is
// held in memory only until the token exchange completes.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a fresh pair: a 32-byte random verifier in url-safe
// base64 without padding, and its S256 challenge.
func NewPKCE() (PKCE, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return PKCE{}, fmt.Errorf("pkce: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(buf[:])
	sum := sha256.Sum256([]byte(verifier))
	return PKCE{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}
