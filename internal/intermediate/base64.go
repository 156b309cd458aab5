package intermediate

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/isleoflan/sso-server/internal/domain"
)

// The wire format uses a home-grown URL-safe base64 variant that predates
// this implementation: standard base64 with '/' mapped to '-' and '+' mapped
// to '_'. It must be reproduced exactly, existing app backends parse it.

func encode64(input []byte) string {
	out := base64.StdEncoding.EncodeToString(input)
	out = strings.ReplaceAll(out, "/", "-")
	return strings.ReplaceAll(out, "+", "_")
}

func decode64(input string) ([]byte, error) {
	input = strings.ReplaceAll(input, "-", "/")
	input = strings.ReplaceAll(input, "_", "+")
	out, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %v", domain.ErrInvalidValue, err)
	}
	return out, nil
}

// decode64Loose accepts input with stripped '=' padding, as produced for the
// checksum segment.
func decode64Loose(input string) ([]byte, error) {
	input = strings.ReplaceAll(input, "-", "/")
	input = strings.ReplaceAll(input, "_", "+")
	input = strings.TrimRight(input, "=")
	out, err := base64.RawStdEncoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %v", domain.ErrInvalidValue, err)
	}
	return out, nil
}
