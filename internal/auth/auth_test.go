package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	return NewService("test-secret", ttl, Operator{Username: "ops", PasswordHash: hash})
}

func TestService_TokenRoundTrip(t *testing.T) {
	svc := newService(t, time.Hour)

	token, err := svc.GenerateToken("ops")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)
	assert.Equal(t, "ops", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestService_ValidateToken(t *testing.T) {
	svc := newService(t, time.Hour)
	other := NewService("other-secret", time.Hour, Operator{})
	foreign, err := other.GenerateToken("ops")
	require.NoError(t, err)

	expiredSvc := newService(t, -time.Hour)
	expired, err := expiredSvc.GenerateToken("ops")
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		expected error
	}{
		{name: "garbage", token: "invalid-token", expected: ErrInvalidToken},
		{name: "wrong secret", token: foreign, expected: ErrInvalidToken},
		{name: "expired", token: expired, expected: ErrExpiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestService_Login(t *testing.T) {
	svc := newService(t, time.Hour)

	tests := []struct {
		name     string
		username string
		password string
		expected error
	}{
		{name: "valid", username: "ops", password: "s3cret-pass"},
		{name: "wrong password", username: "ops", password: "nope", expected: ErrInvalidCredentials},
		{name: "wrong user", username: "root", password: "s3cret-pass", expected: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := svc.Login(tt.username, tt.password)
			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, token)
		})
	}
}

func TestService_LoginWithoutOperator(t *testing.T) {
	svc := NewService("test-secret", time.Hour, Operator{})
	_, err := svc.Login("ops", "anything")
	assert.ErrorIs(t, err, ErrNoOperator)
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("mypassword123")
	require.NoError(t, err)

	assert.True(t, CheckPassword("mypassword123", hash))
	assert.False(t, CheckPassword("wrongpassword", hash))
}
