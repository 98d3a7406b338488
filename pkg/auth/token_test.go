package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claystudio/membership-backend/pkg/config"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "claystudio", ExpirationMinutes: 30}

func TestIssueThenVerify(t *testing.T) {
	now := time.Now()
	member := uuid.New()

	tok, err := Issue(testCfg, now, member, []string{"role-admin", " ", "role-member", "role-admin"})
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(30*time.Minute), tok.ExpiresAt, time.Second)

	claims, err := Verify(testCfg, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, member, claims.MemberID())
	assert.Equal(t, []string{"role-admin", "role-member"}, claims.Roles)
	assert.Equal(t, "claystudio", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{Audience}, claims.Audience)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyRejectsExpired(t *testing.T) {
	tok, err := Issue(testCfg, time.Now().Add(-time.Hour), uuid.New(), nil)
	require.NoError(t, err)
	_, err = Verify(testCfg, tok.Value)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyToleratesSmallClockSkew(t *testing.T) {
	tok, err := Issue(testCfg, time.Now().Add(10*time.Second), uuid.New(), nil)
	require.NoError(t, err)
	_, err = Verify(testCfg, tok.Value)
	assert.NoError(t, err)
}

func TestVerifyRejectsForeignSecretOrIssuer(t *testing.T) {
	tok, err := Issue(testCfg, time.Now(), uuid.New(), nil)
	require.NoError(t, err)

	other := testCfg
	other.Secret = "other"
	_, err = Verify(other, tok.Value)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	other = testCfg
	other.Issuer = "elsewhere"
	_, err = Verify(other, tok.Value)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestVerifyRejectsHandBuiltTokens(t *testing.T) {
	sign := func(m jwt.SigningMethod, c Claims) string {
		s, err := jwt.NewWithClaims(m, c).SignedString([]byte(testCfg.Secret))
		require.NoError(t, err)
		return s
	}
	base := jwt.RegisteredClaims{
		Issuer:    testCfg.Issuer,
		Subject:   uuid.NewString(),
		Audience:  jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	_, err := Verify(testCfg, sign(jwt.SigningMethodHS512, Claims{RegisteredClaims: base}))
	assert.Error(t, err, "HS512")

	noAud := base
	noAud.Audience = nil
	_, err = Verify(testCfg, sign(method, Claims{RegisteredClaims: noAud}))
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)

	badSubject := base
	badSubject.Subject = "not-a-uuid"
	_, err = Verify(testCfg, sign(method, Claims{RegisteredClaims: badSubject}))
	assert.EqualError(t, err, "token subject is not a member id")
}

func TestIssueValidatesInput(t *testing.T) {
	_, err := Issue(testCfg, time.Now(), uuid.Nil, nil)
	assert.EqualError(t, err, "member id required")

	noSecret := testCfg
	noSecret.Secret = ""
	_, err = Issue(noSecret, time.Now(), uuid.New(), nil)
	assert.EqualError(t, err, "jwt secret not configured")

	noTTL := testCfg
	noTTL.ExpirationMinutes = 0
	_, err = Issue(noTTL, time.Now(), uuid.New(), nil)
	assert.Error(t, err)
}
