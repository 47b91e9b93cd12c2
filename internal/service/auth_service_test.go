package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ddtcorpus/internal/config"
	"ddtcorpus/internal/domain"
)

func newAuthService(t *testing.T) AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthService(
		config.AuthConfig{ReviewerUsername: "reviewer", ReviewerPasswordHash: string(hash)},
		config.JWTConfig{Secret: "test-secret", Issuer: "ddtcorpus", AccessTokenExpiry: time.Hour},
	)
}

func TestLoginIssuesValidToken(t *testing.T) {
	svc := newAuthService(t)

	token, err := svc.Login(context.Background(), "reviewer", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "reviewer", claims.Username)
	assert.Equal(t, "ddtcorpus", claims.Issuer)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newAuthService(t)

	_, err := svc.Login(context.Background(), "reviewer", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "intruder", "correct-horse")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := newAuthService(t)

	token, err := svc.Login(context.Background(), "reviewer", "correct-horse")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token + "x")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
