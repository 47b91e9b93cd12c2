package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"ddtcorpus/internal/config"
	"ddtcorpus/internal/domain"
)

// Claims is the JWT payload for the reviewer session.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthService authenticates the single reviewer account and issues tokens.
type AuthService interface {
	Login(ctx context.Context, username, password string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type authService struct {
	authCfg config.AuthConfig
	jwtCfg  config.JWTConfig
}

// NewAuthService creates a new AuthService implementation.
func NewAuthService(authCfg config.AuthConfig, jwtCfg config.JWTConfig) AuthService {
	return &authService{authCfg: authCfg, jwtCfg: jwtCfg}
}

func (s *authService) Login(_ context.Context, username, password string) (string, error) {
	if username != s.authCfg.ReviewerUsername || s.authCfg.ReviewerPasswordHash == "" {
		return "", domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.authCfg.ReviewerPasswordHash), []byte(password)); err != nil {
		return "", domain.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.jwtCfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtCfg.AccessTokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtCfg.Secret))
	if err != nil {
		return "", fmt.Errorf("authService.Login: signing token: %w", err)
	}
	return signed, nil
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtCfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}
