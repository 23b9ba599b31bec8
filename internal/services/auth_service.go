package services

import (
	"fmt"
	"strconv"

	"medilink-chat/internal/domain/identity"
	medilink_errors "medilink-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService validates bearer tokens issued by the credential subsystem.
// Token issuance, passwords and OTP live outside this service; the chat
// core only needs the (id, role) identity carried in the claims.
type AuthService struct {
	secret []byte
}

type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{secret: []byte(secret)}
}

// ParseAccessToken validates the token signature and expiry and returns
// the identity from the subject and role claims.
func (s *AuthService) ParseAccessToken(token string) (identity.Ref, error) {
	if token == "" {
		return identity.Ref{}, medilink_errors.ErrUnauthorized
	}

	var claims AccessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return identity.Ref{}, medilink_errors.ErrUnauthorized
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return identity.Ref{}, medilink_errors.ErrUnauthorized
	}
	role := identity.Role(claims.Role)
	if !role.Valid() {
		return identity.Ref{}, medilink_errors.ErrUnauthorized
	}

	return identity.Ref{ID: userID, Role: role}, nil
}
