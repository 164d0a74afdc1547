// Package password implements bcrypt hashing and verification. It protects
// the cron trigger token: the config carries only the bcrypt hash, the
// external scheduler presents the plaintext token.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// GetHash returns the bcrypt hash of a secret for storage in config.
func GetHash(secret string) (string, error) {
	const op = "password.GetHash"
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// CompareHash checks a presented secret against the stored bcrypt hash.
// Returns nil on match.
func CompareHash(originalHash, presented string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(presented)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
