package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/isleoflan/sso-server/internal/domain"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewCodecFromKey(key)
}

func TestSignVerifyRoundtrip(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Sign("1c1e3f0e-9e2f-4a8a-9a15-6f0c6f8b4e55")
	require.NoError(t, err)

	sessionID, err := codec.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "1c1e3f0e-9e2f-4a8a-9a15-6f0c6f8b4e55", sessionID)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	minter := newTestCodec(t)
	verifier := newTestCodec(t)

	token, err := minter.Sign("1c1e3f0e-9e2f-4a8a-9a15-6f0c6f8b4e55")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, domain.ErrAuth)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	codec := newTestCodec(t)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := codec.Verify(token)
		require.ErrorIs(t, err, domain.ErrAuth, "token %q", token)
	}
}

func TestVerifyRejectsMissingSessionClaim(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	codec := NewCodecFromKey(key)

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.RS256, Key: key},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	token, err := gojwt.Signed(signer).Claims(map[string]any{"iat": 1}).Serialize()
	require.NoError(t, err)

	_, err = codec.Verify(token)
	require.ErrorIs(t, err, domain.ErrAuth)
}
