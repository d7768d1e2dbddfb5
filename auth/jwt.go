package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hazyhaar/sitegen/horosafe"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// GenerateToken signs claims with HS256. IssuedAt and ExpiresAt are set
// from the current time and expiry.
func GenerateToken(secret []byte, claims *Claims, expiry time.Duration) (string, error) {
	if err := horosafe.ValidateSecret(secret); err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	claims.Subject = claims.UserID
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken verifies tokenStr and returns its claims. Only HS256 is
// accepted.
func ValidateToken(secret []byte, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
