// Package ident produces collision-checked random identifiers: UUIDv4 for
// structured entity keys and fixed-alphabet opaque strings for bearer
// secrets. All randomness is drawn from crypto/rand.
package ident

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	"github.com/google/uuid"

	"github.com/isleoflan/sso-server/internal/domain"
)

// Alphabet is the fixed 144-symbol set opaque tokens are drawn from. Kept
// verbatim for compatibility with tokens already issued.
const Alphabet = "CqIas6$HZgY:ajOx{uvnw(@xSl*r1-tZ!1i_im>poX)GsVudmhIp]v9zzB8rbC}<W=7egMkd,U0K2Rq2y9e#+8QfNQEtcDPn3yGXkR.6[PYESc3V4HwBhL7MODJA5J4bKUfT0o5NTFWjlFL"

// OpaqueLength is the default length of opaque tokens.
const OpaqueLength = 80

// maxAttempts caps collision retries. The id spaces are large enough that
// hitting this indicates a broken store, not bad luck.
const maxAttempts = 10

var uuidPattern = regexp.MustCompile(`^\{?[0-9a-f]{8}-?[0-9a-f]{4}-?[0-9a-f]{4}-?[0-9a-f]{4}-?[0-9a-f]{12}\}?$`)

// ExistsFunc reports whether a candidate value is already present in the
// store column the identifier is destined for.
type ExistsFunc func(ctx context.Context, value string) (bool, error)

// IsUUID reports whether value is a well-formed UUID.
func IsUUID(value string) bool {
	return uuidPattern.MatchString(value)
}

// IsOpaque reports whether every character of value belongs to Alphabet.
func IsOpaque(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if !containsRune(Alphabet, r) {
			return false
		}
	}
	return true
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

// NewUUID returns a fresh UUIDv4 that exists does not know yet.
func NewUUID(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("generate uuid: %w", err)
		}
		candidate := id.String()
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("uuid collision check: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("uuid generation exhausted %d attempts", maxAttempts)
}

// NewOpaque returns a fresh random string of the given length over Alphabet
// that exists does not know yet. A length of 0 falls back to OpaqueLength.
func NewOpaque(ctx context.Context, length int, exists ExistsFunc) (string, error) {
	if length <= 0 {
		length = OpaqueLength
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate, err := randomString(length)
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("token collision check: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("token generation exhausted %d attempts", maxAttempts)
}

func randomString(length int) (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = Alphabet[n.Int64()]
	}
	return string(out), nil
}

// ValidateUUID returns ErrInvalidValue for malformed identifiers.
func ValidateUUID(value string) error {
	if !IsUUID(value) {
		return fmt.Errorf("%w: malformed identifier", domain.ErrInvalidValue)
	}
	return nil
}
