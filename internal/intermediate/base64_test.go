package intermediate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode64Mapping(t *testing.T) {
	// 0xff 0xef encodes to "/+8=" in standard base64, covering both
	// remapped characters.
	out := encode64([]byte{0xff, 0xef})
	require.Equal(t, "-_8=", out)
	require.NotContains(t, out, "/")
	require.NotContains(t, out, "+")

	decoded, err := decode64(out)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xef}, decoded)
}

func TestChecksumIgnoresUnmappedCharacters(t *testing.T) {
	// '-' and '_' sit outside the checksum alphabet and count as zero, so
	// the sum only reflects the mapped characters.
	require.Equal(t, checksum("A"), checksum("A-_"))
	require.NotEqual(t, checksum("A"), checksum("B"))
}
