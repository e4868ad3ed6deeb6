// Package pkce implements RFC 7636 Proof Key for Code Exchange with the
// S256 challenge method.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Method is the only challenge method supported.
const Method = "S256"

// Pair is a verifier/challenge pair for one authorization attempt.
type Pair struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPair generates a fresh verifier from 32 bytes of system randomness and
// derives its S256 challenge. 32 bytes encode to 43 characters, the minimum
// verifier length RFC 7636 allows.
func NewPair() (Pair, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Pair{}, fmt.Errorf("generate pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(buf)
	return Pair{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    Method,
	}, nil
}

// Challenge returns the S256 challenge for a verifier: the unpadded
// base64url encoding of its SHA-256 digest.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Verify checks a verifier against a challenge in constant time.
// Only the S256 method is accepted.
func Verify(verifier, challenge, method string) bool {
	if method != Method {
		return false
	}
	expected := Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}
