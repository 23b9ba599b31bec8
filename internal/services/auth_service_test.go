package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"medilink-chat/internal/domain/identity"
	medilink_errors "medilink-chat/pkg/errors"
)

func signToken(t *testing.T, secret, subject, role string, expiry time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseAccessToken(t *testing.T) {
	svc := NewAuthService("test-secret")

	u, err := svc.ParseAccessToken(signToken(t, "test-secret", "7", "patient", time.Hour))
	require.NoError(t, err)
	require.Equal(t, identity.Ref{ID: 7, Role: identity.RolePatient}, u)
}

func TestParseAccessTokenRejects(t *testing.T) {
	svc := NewAuthService("test-secret")

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signToken(t, "other-secret", "7", "patient", time.Hour)},
		{"expired", signToken(t, "test-secret", "7", "patient", -time.Hour)},
		{"non numeric subject", signToken(t, "test-secret", "alice", "patient", time.Hour)},
		{"unknown role", signToken(t, "test-secret", "7", "admin", time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ParseAccessToken(tc.token)
			require.ErrorIs(t, err, medilink_errors.ErrUnauthorized)
		})
	}
}
