// internal/utils/jwt_test.go
package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTestSecret(t *testing.T, secret string) {
	t.Helper()
	SetJWTSecret(secret)
	t.Cleanup(func() { SetJWTSecret("change-me-in-production") })
}

func TestGenerateAndValidateJWT(t *testing.T) {
	withTestSecret(t, "unit-test-secret")

	token, err := GenerateJWT("operator", 12)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Operator)
	assert.Equal(t, "operator", claims.Subject)
	assert.Equal(t, "arbitrage-backend", claims.Issuer)
	assert.True(t, claims.ExpiresAt.After(time.Now().Add(11*time.Hour)))
}

func TestValidateJWTRejectsTampered(t *testing.T) {
	withTestSecret(t, "unit-test-secret")

	token, err := GenerateJWT("operator", 1)
	require.NoError(t, err)

	_, err = ValidateJWT(token + "x")
	assert.Error(t, err)
}

func TestValidateJWTRejectsExpired(t *testing.T) {
	withTestSecret(t, "unit-test-secret")

	token, err := GenerateJWT("operator", -1)
	require.NoError(t, err)

	_, err = ValidateJWT(token)
	assert.Error(t, err)
}

func TestSecretRotationInvalidatesOldTokens(t *testing.T) {
	withTestSecret(t, "secret-before")

	token, err := GenerateJWT("operator", 1)
	require.NoError(t, err)

	SetJWTSecret("secret-after")
	_, err = ValidateJWT(token)
	assert.Error(t, err)
}
