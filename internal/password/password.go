// Package password wraps bcrypt hashing with the broker's fixed work factor.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hashes are issued with a fixed cost; verification accepts whatever cost is
// embedded in the stored hash, so raising this later is a rolling upgrade.
const hashCost = 10

// Hash returns the bcrypt hash of plaintext.
func Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether plaintext matches the stored hash. The comparison
// is constant-time with respect to correctness.
func Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
