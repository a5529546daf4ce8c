package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Anonymous is the subject assigned when authentication is disabled
const Anonymous = "anonymous"

var (
	ErrMissingToken  = errors.New("missing token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidHeader = errors.New("invalid authorization header format")
)

// TokenValidator verifies HMAC signed JWTs
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator creates a validator. An empty secret disables authentication.
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// Enabled reports whether tokens are checked
func (v *TokenValidator) Enabled() bool {
	return len(v.secret) > 0
}

// Validate parses the token and returns its subject (user_id claim, falling back to sub)
func (v *TokenValidator) Validate(tokenString string) (string, error) {
	if !v.Enabled() {
		return Anonymous, nil
	}
	if tokenString == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}
	if subject, ok := claims["user_id"].(string); ok && subject != "" {
		return subject, nil
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("%w: no subject claim", ErrInvalidToken)
}

// TokenFromHeader extracts the token from an Authorization header.
// Both "Bearer <token>" and a bare token are accepted.
func TokenFromHeader(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.Fields(header)
	switch len(parts) {
	case 1:
		return parts[0], nil
	case 2:
		if !strings.EqualFold(parts[0], "bearer") {
			return "", ErrInvalidHeader
		}
		return parts[1], nil
	default:
		return "", ErrInvalidHeader
	}
}
