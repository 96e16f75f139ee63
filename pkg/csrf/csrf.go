// Package csrf mints and checks per-session CSRF tokens.
//
// A token is a keyed digest of the session ID. Handing the token to the
// client somewhere the browser does not send automatically (i.e. not in
// a cookie) lets the server tell a same-site request from a cross-site
// one. Keeping the secret secret is of paramount importance: anyone
// holding it can forge tokens for any session.
package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	// MinSecretLen is the minimum accepted secret length in bytes.
	MinSecretLen = 32
	// MaxSecretLen is the maximum accepted secret length in bytes.
	MaxSecretLen = 4096

	digestLen = 16
)

// ErrRejected is returned for tokens that do not check out.
var ErrRejected = errors.New("csrf: token rejected")

// tokenVersion is prepended to every digest. One constant for now.
var tokenVersion = []byte{0x00, 0x00}

// Stopper makes and checks CSRF tokens using HMAC-SHA256 over a secret.
type Stopper struct {
	secret []byte
}

// NewStopper returns a Stopper using the given secret.
// The secret must be between MinSecretLen and MaxSecretLen bytes.
func NewStopper(secret []byte) (*Stopper, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	return &Stopper{secret: append([]byte(nil), secret...)}, nil
}

// ValidateSecret checks that a secret is of acceptable length.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return fmt.Errorf("csrf: secret is %d bytes, need at least %d", len(secret), MinSecretLen)
	}
	if len(secret) > MaxSecretLen {
		return fmt.Errorf("csrf: secret is %d bytes, need at most %d", len(secret), MaxSecretLen)
	}
	return nil
}

func (s *Stopper) digest(sessionID []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(sessionID)
	// Take the first 128 bits of the 256.
	return append(append(make([]byte, 0, len(tokenVersion)+digestLen), tokenVersion...),
		mac.Sum(nil)[:digestLen]...)
}

// MakeToken returns the token for the given session ID as URL-safe base64.
func (s *Stopper) MakeToken(sessionID []byte) string {
	return base64.URLEncoding.EncodeToString(s.digest(sessionID))
}

// CheckToken verifies that token belongs to the given session ID.
// It returns ErrRejected for tokens that are not valid base64 or do not
// match. The comparison takes constant time.
func (s *Stopper) CheckToken(sessionID []byte, token string) error {
	claimed, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return ErrRejected
	}
	if !hmac.Equal(claimed, s.digest(sessionID)) {
		return ErrRejected
	}
	return nil
}

// SecureCompare reports whether a and b are equal, taking the same
// amount of time for any two inputs of the same length.
//
// If the lengths differ the comparison returns early; compare only
// fixed-length values to avoid leaking the expected length.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
