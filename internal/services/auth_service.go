// internal/services/auth_service.go
package services

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/utils"
)

var (
	// ErrInvalidCredentials covers both a wrong operator name and a wrong
	// password; callers get no hint which.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAdminDisabled is returned when no operator password hash is
	// configured, which disables the whole admin surface.
	ErrAdminDisabled = errors.New("admin access is not configured")
)

type LoginRequest struct {
	Operator string `json:"operator" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // in seconds
}

// AuthService issues tokens for the single operator account. There is no
// user table; the operator credential lives in configuration and every admin
// route requires a token from here.
type AuthService struct {
	cfg config.JWTConfig
}

func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{cfg: cfg}
}

// Login verifies the operator credential and returns a signed token.
func (s *AuthService) Login(req *LoginRequest) (*AuthResponse, error) {
	if s.cfg.OperatorPassHash == "" {
		return nil, ErrAdminDisabled
	}
	if req.Operator != s.cfg.OperatorName {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.OperatorPassHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := utils.GenerateJWT(req.Operator, s.cfg.TokenTTL)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	return &AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   s.cfg.TokenTTL * 3600,
	}, nil
}
