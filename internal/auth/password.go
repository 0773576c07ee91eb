package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultMinPasswordLength is the password policy floor.
const DefaultMinPasswordLength = 8

// dummyHash is compared against when the email lookup misses, so an unknown
// email costs the same bcrypt work as a wrong password.
var dummyHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("ekklesia-credential-pad"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored bcrypt hash.
// An empty hash still burns a compare against the dummy hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		hash = dummyHash
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// CheckPasswordPolicy validates a candidate password against the configured
// minimum length.
func CheckPasswordPolicy(password string, minLength int) error {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	if len(password) < minLength {
		return fmt.Errorf("%w: minimum length is %d", ErrWeakPassword, minLength)
	}
	return nil
}
