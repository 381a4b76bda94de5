package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	tokenIssuer = "storefront"
	// DefaultTTL is how long an idle session stays valid.
	DefaultTTL = 24 * time.Hour
)

var (
	// ErrTokenMissing means no session token was presented.
	ErrTokenMissing = errors.New("session: token missing")
	// ErrTokenInvalid means the token failed verification or has expired.
	ErrTokenInvalid = errors.New("session: token invalid")
)

// Tokens issues and verifies HS256 session tokens whose subject is the session id.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a token codec. The secret must be at least 32 bytes.
func NewTokens(secret string, ttl time.Duration, now func() time.Time) (*Tokens, error) {
	if len(strings.TrimSpace(secret)) < 32 {
		return nil, errors.New("session: signing secret must be at least 32 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// TTL returns the token lifetime.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue signs a token for id.
func (t *Tokens) Issue(id string) (string, time.Time, error) {
	issued := t.now().UTC()
	expires := issued.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies raw and returns the session id.
func (t *Tokens) Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrTokenMissing
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !claims.VerifyExpiresAt(t.now(), true) {
		return "", fmt.Errorf("%w: token expired", ErrTokenInvalid)
	}
	if claims.Issuer != tokenIssuer || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
