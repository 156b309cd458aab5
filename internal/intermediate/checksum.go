package intermediate

import (
	"strconv"
	"strings"
)

const checksumAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var checksumValues = func() map[byte]int {
	m := make(map[byte]int, len(checksumAlphabet))
	for i := 0; i < len(checksumAlphabet); i++ {
		m[checksumAlphabet[i]] = i
	}
	return m
}()

// checksum sums the alphabet value of every byte of the encoded token.
// Bytes outside the alphabet ('-', '_', '=') count as zero.
func checksum(token string) int {
	sum := 0
	for i := 0; i < len(token); i++ {
		sum += checksumValues[token[i]]
	}
	return sum
}

// encodeChecksum renders the sum as lowercase hex, applies the wire base64
// variant and strips padding.
func encodeChecksum(sum int) string {
	encoded := encode64([]byte(strconv.FormatInt(int64(sum), 16)))
	return strings.ReplaceAll(encoded, "=", "")
}

func decodeChecksum(segment string) (int, error) {
	raw, err := decode64Loose(segment)
	if err != nil {
		return 0, err
	}
	sum, err := strconv.ParseInt(string(raw), 16, 64)
	if err != nil {
		return 0, errChecksumFormat
	}
	return int(sum), nil
}
