package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLen is enforced on registration.
const MinPasswordLen = 8

var (
	ErrWeakPassword  = fmt.Errorf("auth: password must be at least %d characters", MinPasswordLen)
	ErrWrongPassword = errors.New("auth: wrong password")
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", ErrWeakPassword
	}
	// bcrypt rejects inputs over 72 bytes.
	if len(password) > 72 {
		return "", errors.New("auth: password longer than 72 bytes")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword compares password with a stored bcrypt hash.
func CheckPassword(hash, password string) error {
	if hash == "" {
		return ErrWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrWrongPassword
	}
	return nil
}
