// Package token issues and verifies the signed session tokens handed out at
// login.  Verification depends only on the token, the secret and the clock;
// there is no server-side session or revocation list, so a token lives until
// it expires.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/secure-forum/internal/model"
)

var (
	// ErrTokenMalformed: the string does not decode into header.payload.signature
	// or the payload lacks the fields an issued token always carries.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenInvalid: the signature does not match the payload under the secret.
	ErrTokenInvalid = errors.New("token signature invalid")
	// ErrTokenExpired: the current time is past the token's expiry.
	ErrTokenExpired = errors.New("token expired")
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 24 * time.Hour

// Token is a signed session token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type claims struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and verifies tokens with one process-wide secret.  It is
// immutable after New and safe for concurrent use.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, e.g. to simulate an expired session.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a Service.  The secret must be non-empty and the ttl positive.
func New(secret string, ttl time.Duration, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, errors.New("token: empty signing secret")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token: ttl must be positive, got %s", ttl)
	}
	s := &Service{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		// Expiry is checked by Verify itself, before the signature.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL reports the lifetime given to issued tokens.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue signs {identity, iat=now, exp=now+ttl} with HS256.  exp is carried
// in whole seconds and rounded up, so a token never expires before ttl has
// elapsed.
func (s *Service) Issue(id model.Identity) (Token, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	if whole := exp.Truncate(time.Second); whole.Before(exp) {
		exp = whole.Add(time.Second)
	}
	c := claims{
		UserID:   id.ID,
		Username: id.Username,
		Role:     string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("token: sign: %w", err)
	}
	return Token{Value: signed, ExpiresAt: c.ExpiresAt.Time}, nil
}

// Verify returns the identity a token was issued for.  Expiry is decided
// before the signature is checked, so an expired token reports
// ErrTokenExpired whether or not it was tampered with.
func (s *Service) Verify(raw string) (model.Identity, error) {
	var unverified claims
	if _, _, err := s.parser.ParseUnverified(raw, &unverified); err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if unverified.ExpiresAt == nil || unverified.UserID <= 0 {
		return model.Identity{}, fmt.Errorf("%w: missing exp or id", ErrTokenMalformed)
	}
	if s.now().After(unverified.ExpiresAt.Time) {
		return model.Identity{}, ErrTokenExpired
	}

	var c claims
	tok, err := s.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return model.Identity{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case err != nil:
		return model.Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case !tok.Valid:
		return model.Identity{}, ErrTokenInvalid
	}

	role, ok := model.ParseRole(c.Role)
	if !ok {
		return model.Identity{}, fmt.Errorf("%w: unknown role %q", ErrTokenMalformed, c.Role)
	}
	return model.Identity{ID: c.UserID, Username: c.Username, Role: role}, nil
}

// IsRejection reports whether err is one of the verification failures.
func IsRejection(err error) bool {
	return errors.Is(err, ErrTokenMalformed) || errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired)
}
