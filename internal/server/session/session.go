// Package session implements cookie-resident sessions encrypted with
// AES-256-GCM. Session state never touches the primary datastore: a guest's
// authenticated-token set and an internal user's login live only in the
// browser cookie, sealed under the service session key.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Cookie names for the two session kinds.
const (
	GuestCookieName    = "securesend_guest"
	InternalCookieName = "securesend_session"
)

var ErrInvalidSession = errors.New("invalid session")

// Guest is the per-browser state of a guest: the tokens that have already
// passed the auth gate, so the guest is not re-prompted within one session.
type Guest struct {
	AuthenticatedTokens []string  `json:"authenticated_tokens"`
	IssuedAt            time.Time `json:"issued_at"`
}

// HasToken reports whether the session already passed the gate for a token.
func (g *Guest) HasToken(token string) bool {
	for _, t := range g.AuthenticatedTokens {
		if t == token {
			return true
		}
	}
	return false
}

// AddToken records a gate-pass. Adding an already present token is a no-op.
func (g *Guest) AddToken(token string) {
	if !g.HasToken(token) {
		g.AuthenticatedTokens = append(g.AuthenticatedTokens, token)
	}
}

// Internal is the session of a logged-in internal user.
type Internal struct {
	UserID   string    `json:"user_id"`
	Admin    bool      `json:"admin"`
	IssuedAt time.Time `json:"issued_at"`
}

// Codec seals session payloads into opaque cookie values and back.
type Codec struct {
	gcm cipher.AEAD
	ttl time.Duration
}

// NewCodec derives an AES-256 key from the configured secret via SHA-256.
func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	key := sha256.Sum256([]byte(secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Codec{gcm: gcm, ttl: ttl}, nil
}

// TTL returns the configured session lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode seals a session value into a base64 cookie string.
func (c *Codec) Encode(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decode opens a cookie string into the given session value. Tampered,
// truncated, or otherwise unreadable cookies yield ErrInvalidSession so
// callers can fall back to an empty session.
func (c *Codec) Decode(encoded string, v any) error {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return ErrInvalidSession
	}
	if len(raw) < c.gcm.NonceSize() {
		return ErrInvalidSession
	}

	nonce, sealed := raw[:c.gcm.NonceSize()], raw[c.gcm.NonceSize():]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ErrInvalidSession
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return ErrInvalidSession
	}
	return nil
}
