// Package auth issues and verifies identity tokens and checks login credentials.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that are malformed, badly signed or expired.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified content of a token.
type Identity struct {
	User      string
	ExpiresAt time.Time
}

// Verifier checks tokens presented on WebSocket connections.
type Verifier interface {
	Verify(token string) (Identity, error)
}

type claims struct {
	User string `json:"user"`
	jwt.RegisteredClaims
}

// TokenService signs HS256 tokens carrying a user name and an expiry.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a token for user.
func (s *TokenService) Issue(user string) (string, time.Time, error) {
	if user == "" {
		return "", time.Time{}, errors.New("user is required")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses token and returns the identity it carries.
func (s *TokenService) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.User == "" {
		return Identity{}, fmt.Errorf("%w: no user claim", ErrInvalidToken)
	}

	return Identity{User: c.User, ExpiresAt: c.ExpiresAt.Time}, nil
}
