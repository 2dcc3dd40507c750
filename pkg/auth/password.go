package auth

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the bcrypt input limit
const MaxPasswordBytes = 72

// HashPassword hashes a plaintext password using bcrypt
func HashPassword(password string) (string, error) {
	return HashPasswordCost(password, bcrypt.DefaultCost)
}

// HashPasswordCost hashes with an explicit bcrypt cost
func HashPasswordCost(password string, cost int) (string, error) {
	if err := validatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", Wrap(KindInternal, "failed to hash password", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored hash
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// UnusablePasswordHash returns the hash of a random value nobody knows.
// Accounts created through an identity provider get one.
func UnusablePasswordHash(cost int) (string, error) {
	return HashPasswordCost(uuid.NewString(), cost)
}
