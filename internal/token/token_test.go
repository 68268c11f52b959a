package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/secure-forum/internal/model"
)

const secret = "unit-test-secret-value"

var andi = model.Identity{ID: 2, Username: "andi", Role: model.RoleUser}

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, err := New("", time.Hour)
	assert.Error(t, err)
	_, err = New(secret, 0)
	assert.Error(t, err)

	s, err := New(secret, DefaultTTL)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, s.TTL())
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	s, err := New(secret, DefaultTTL, fixedClock(now))
	require.NoError(t, err)

	for _, id := range []model.Identity{andi, {ID: 1, Username: "hilmy", Role: model.RoleAdmin}} {
		tok, err := s.Issue(id)
		require.NoError(t, err)
		assert.Equal(t, now.Add(DefaultTTL), tok.ExpiresAt)
		assert.Equal(t, 2, strings.Count(tok.Value, "."))

		got, err := s.Verify(tok.Value)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestVerifyRejectsEverySingleCharacterMutation(t *testing.T) {
	s, err := New(secret, time.Hour)
	require.NoError(t, err)
	tok, err := s.Issue(andi)
	require.NoError(t, err)

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	raw := []byte(tok.Value)
	for i := range raw {
		mutated := append([]byte(nil), raw...)
		for _, c := range []byte(alphabet) {
			if c != raw[i] {
				mutated[i] = c
				break
			}
		}
		_, err := s.Verify(string(mutated))
		require.Error(t, err, "mutation at %d accepted", i)
		assert.True(t, IsRejection(err), "position %d: %v", i, err)
	}
}

func TestVerifyExpiry(t *testing.T) {
	issuedAt := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	issuer, err := New(secret, time.Hour, fixedClock(issuedAt))
	require.NoError(t, err)
	tok, err := issuer.Issue(andi)
	require.NoError(t, err)

	t.Run("at the expiry instant the token is still valid", func(t *testing.T) {
		s, err := New(secret, time.Hour, fixedClock(issuedAt.Add(time.Hour)))
		require.NoError(t, err)
		_, err = s.Verify(tok.Value)
		assert.NoError(t, err)
	})

	t.Run("after expiry", func(t *testing.T) {
		s, err := New(secret, time.Hour, fixedClock(issuedAt.Add(time.Hour+time.Second)))
		require.NoError(t, err)
		_, err = s.Verify(tok.Value)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("expired regardless of signature", func(t *testing.T) {
		s, err := New("a-completely-different-secret", time.Hour, fixedClock(issuedAt.Add(2*time.Hour)))
		require.NoError(t, err)
		_, err = s.Verify(tok.Value)
		assert.ErrorIs(t, err, ErrTokenExpired)

		parts := strings.Split(tok.Value, ".")
		parts[2] = strings.Repeat("A", len(parts[2])-1) + "A"
		_, err = s.Verify(strings.Join(parts, "."))
		assert.ErrorIs(t, err, ErrTokenExpired)
	})
}

func TestSubSecondIssueLastsTheWholeTTL(t *testing.T) {
	issuedAt := time.Date(2026, 10, 16, 12, 0, 0, 900_000_000, time.UTC)
	issuer, err := New(secret, time.Hour, fixedClock(issuedAt))
	require.NoError(t, err)
	tok, err := issuer.Issue(andi)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 16, 13, 0, 1, 0, time.UTC), tok.ExpiresAt)

	almost := issuedAt.Add(time.Hour - 200*time.Millisecond)
	s, err := New(secret, time.Hour, fixedClock(almost))
	require.NoError(t, err)
	_, err = s.Verify(tok.Value)
	assert.NoError(t, err)

	s, err = New(secret, time.Hour, fixedClock(tok.ExpiresAt.Add(time.Millisecond)))
	require.NoError(t, err)
	_, err = s.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyFailures(t *testing.T) {
	s, err := New(secret, time.Hour)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other, err := New("some-other-secret-value", time.Hour)
		require.NoError(t, err)
		tok, err := other.Issue(andi)
		require.NoError(t, err)
		_, err = s.Verify(tok.Value)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("malformed strings", func(t *testing.T) {
		for _, raw := range []string{"", "abc", "a.b", "a.b.c", "....", "not a token at all"} {
			_, err := s.Verify(raw)
			assert.ErrorIs(t, err, ErrTokenMalformed, raw)
		}
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		c := claims{UserID: 2, Username: "andi", Role: "user", RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString([]byte(secret))
		require.NoError(t, err)
		_, err = s.Verify(raw)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("unsigned token", func(t *testing.T) {
		c := claims{UserID: 2, Username: "andi", Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.Verify(raw)
		assert.True(t, IsRejection(err))
	})

	t.Run("missing exp or id", func(t *testing.T) {
		noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{UserID: 2, Role: "user"}).SignedString([]byte(secret))
		require.NoError(t, err)
		_, err = s.Verify(noExp)
		assert.ErrorIs(t, err, ErrTokenMalformed)

		noID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{Role: "user", RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}).SignedString([]byte(secret))
		require.NoError(t, err)
		_, err = s.Verify(noID)
		assert.ErrorIs(t, err, ErrTokenMalformed)
	})

	t.Run("unknown role", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{UserID: 2, Role: "root", RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}).SignedString([]byte(secret))
		require.NoError(t, err)
		_, err = s.Verify(raw)
		assert.ErrorIs(t, err, ErrTokenMalformed)
	})
}
