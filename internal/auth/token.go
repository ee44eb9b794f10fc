// Package auth signs and verifies the bearer tokens used by the chat server.
// Tokens are compact HS256 JWTs so they interoperate with the web add-in.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of minted tokens.
const DefaultTTL = 30 * 24 * time.Hour

// LocalUser is the identity used when the server runs without a secret.
const LocalUser = "local"

// ErrInvalidToken is returned for malformed, tampered, expired or
// non-expiring tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims identify the user behind a request. Only iat and exp of the
// registered claims are set.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// now is replaced in tests.
var now = time.Now

// Sign mints a token for c valid for ttl. A zero ttl means DefaultTTL.
func Sign(secret string, c Claims, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("no signing secret configured: run 'xla config set auth.secret <value>'")
	}
	if c.UserID == "" {
		return "", errors.New("token needs a user id")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	t := now()
	c.IssuedAt = jwt.NewNumericDate(t)
	c.ExpiresAt = jwt.NewNumericDate(t.Add(ttl))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("could not sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry of token and returns its claims.
// Tokens without an expiry are rejected.
func Verify(secret, token string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case c.UserID == "":
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return &c, nil
}

// FromRequest authenticates r. With an empty secret every request is the
// local user.
func FromRequest(secret string, r *http.Request) (*Claims, error) {
	if secret == "" {
		return &Claims{UserID: LocalUser}, nil
	}
	token, ok := bearer(r.Header.Get("Authorization"))
	if !ok {
		// Browsers cannot set headers on websocket upgrades.
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrInvalidToken)
	}
	return Verify(secret, token)
}

func bearer(h string) (string, bool) {
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
