// internal/services/auth_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/utils"
)

func testJWTConfig(t *testing.T, password string) config.JWTConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return config.JWTConfig{
		SecretKey:        "test-secret",
		TokenTTL:         12,
		OperatorName:     "operator",
		OperatorPassHash: string(hash),
	}
}

func TestLoginSuccess(t *testing.T) {
	svc := NewAuthService(testJWTConfig(t, "hunter2"))

	resp, err := svc.Login(&LoginRequest{Operator: "operator", Password: "hunter2"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 12*3600, resp.ExpiresIn)

	claims, err := utils.ValidateJWT(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Operator)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := NewAuthService(testJWTConfig(t, "hunter2"))

	_, err := svc.Login(&LoginRequest{Operator: "operator", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWrongOperator(t *testing.T) {
	svc := NewAuthService(testJWTConfig(t, "hunter2"))

	_, err := svc.Login(&LoginRequest{Operator: "intruder", Password: "hunter2"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginDisabledWithoutHash(t *testing.T) {
	cfg := testJWTConfig(t, "hunter2")
	cfg.OperatorPassHash = ""
	svc := NewAuthService(cfg)

	_, err := svc.Login(&LoginRequest{Operator: "operator", Password: "hunter2"})
	assert.ErrorIs(t, err, ErrAdminDisabled)
}
