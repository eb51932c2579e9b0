package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
)

var cfg = config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 30}

func issuer(t *testing.T, at time.Time) *Issuer {
	t.Helper()
	i, err := NewIssuer(cfg)
	require.NoError(t, err)
	i.now = func() time.Time { return at }
	return i
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	user := uuid.New()

	token, err := issuer(t, now).Issue(user, " buyer@example.com ")
	require.NoError(t, err)

	claims, err := NewVerifier(cfg).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user, claims.UserID)
	assert.Equal(t, "buyer@example.com", claims.Email)
	assert.Equal(t, cfg.Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.ExpiresAt.Time.Equal(now.Add(30*time.Minute)))
}

func TestVerifyRejections(t *testing.T) {
	now := time.Now()
	valid, err := issuer(t, now).Issue(uuid.New(), "")
	require.NoError(t, err)

	expired, err := issuer(t, now.Add(-time.Hour)).Issue(uuid.New(), "")
	require.NoError(t, err)
	_, err = NewVerifier(cfg).Verify(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = NewVerifier(cfg).Verify(valid + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := cfg
	other.Issuer = "someone-else"
	_, err = NewVerifier(other).Verify(valid)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewVerifier(config.JWTConfig{}).Verify(valid)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestVerifyToleratesSmallSkew(t *testing.T) {
	token, err := issuer(t, time.Now().Add(-30*time.Minute-10*time.Second)).Issue(uuid.New(), "")
	require.NoError(t, err)
	_, err = NewVerifier(cfg).Verify(token)
	assert.NoError(t, err)
}

func TestVerifyRequiresUserAndExpiry(t *testing.T) {
	sign := func(c Claims) string {
		s, err := jwt.NewWithClaims(signingMethod, c).SignedString([]byte(cfg.Secret))
		require.NoError(t, err)
		return s
	}
	noUser := sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	_, err := NewVerifier(cfg).Verify(noUser)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExpiry := sign(Claims{UserID: uuid.New(), RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer}})
	_, err = NewVerifier(cfg).Verify(noExpiry)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerValidatesConfig(t *testing.T) {
	_, err := NewIssuer(config.JWTConfig{Issuer: "x", ExpirationMinutes: 1})
	assert.ErrorIs(t, err, ErrNoKey)
	_, err = NewIssuer(config.JWTConfig{Secret: "s", ExpirationMinutes: 1})
	assert.Error(t, err)
	_, err = NewIssuer(config.JWTConfig{Secret: "s", Issuer: "x"})
	assert.Error(t, err)

	i, err := NewIssuer(cfg)
	require.NoError(t, err)
	_, err = i.Issue(uuid.Nil, "")
	assert.Error(t, err)
}
