// Package apikey validates the admin keys that guard refresh and cache
// management. Keys come from configuration and are held only as SHA-256
// digests.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

var (
	ErrMissingKey = errors.New("missing api key")
	ErrInvalidKey = errors.New("invalid api key")
)

// KeyInfo identifies a validated key without revealing it.
type KeyInfo struct {
	ID string `json:"id"`
}

type Validator struct {
	hashes [][sha256.Size]byte
	logger *slog.Logger
}

// NewValidator hashes keys; blank entries are ignored.
func NewValidator(keys []string) *Validator {
	v := &Validator{logger: slog.Default().With("component", "apikey-validator")}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			v.hashes = append(v.hashes, sha256.Sum256([]byte(k)))
		}
	}
	if len(v.hashes) == 0 {
		v.logger.Warn("no admin keys configured, admin routes will reject every request")
	}
	return v
}

// Enabled reports whether any key is configured.
func (v *Validator) Enabled() bool {
	return len(v.hashes) > 0
}

// Validate compares rawKey against every configured key in constant time.
func (v *Validator) Validate(_ context.Context, rawKey string) (*KeyInfo, error) {
	if rawKey == "" {
		return nil, ErrMissingKey
	}
	sum := sha256.Sum256([]byte(rawKey))
	match := 0
	for _, h := range v.hashes {
		match |= subtle.ConstantTimeCompare(sum[:], h[:])
	}
	if match != 1 {
		return nil, ErrInvalidKey
	}
	return &KeyInfo{ID: HashKey(rawKey)[:12]}, nil
}

// FromRequest reads the key from the Authorization bearer header, then
// X-API-Key.
func FromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// HashKey returns the SHA-256 hex digest of a raw key.
func HashKey(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}

// GenerateKey returns a random 32-byte hex key suitable for auth.adminKeys.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
