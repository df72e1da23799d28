// Package share issues and verifies signed download links for files in
// the tree. Tokens are HS256 JWTs carrying the root-relative path of the
// shared file; verification happens on the HTTP side before any disk
// access.
package share

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrDisabled     = errors.New("share links are not configured")
	ErrInvalidToken = errors.New("invalid share token")
)

type claims struct {
	Path string `json:"pth"`
	jwt.RegisteredClaims
}

// Signer mints and checks share tokens. A Signer with an empty secret is
// valid but refuses to issue or verify anything.
type Signer struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
}

func NewSigner(secret, baseURL string, ttl time.Duration) *Signer {
	return &Signer{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
	}
}

// Enabled reports whether the signer has a secret configured.
func (s *Signer) Enabled() bool { return len(s.secret) > 0 }

// TTL returns the lifetime stamped into issued tokens.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue returns a full download URL for the given root-relative path.
func (s *Signer) Issue(rel string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	now := time.Now()
	c := claims{
		Path: rel,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign share token: %w", err)
	}
	return s.baseURL + "/d/" + token, nil
}

// Verify checks the token signature and expiry and returns the
// root-relative path it grants access to.
func (s *Signer) Verify(token string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if c.Path == "" {
		return "", ErrInvalidToken
	}
	return c.Path, nil
}
