package password

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("Secret123!")
	require.NoError(t, err)
	require.NotEqual(t, "Secret123!", hash)

	require.True(t, Verify("Secret123!", hash))
	require.False(t, Verify("wrong", hash))
	require.False(t, Verify("", hash))
}

func TestHashUsesFixedCost(t *testing.T) {
	hash, err := Hash("Secret123!")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	require.Equal(t, hashCost, cost)
}

func TestHashesAreSalted(t *testing.T) {
	first, err := Hash("Secret123!")
	require.NoError(t, err)
	second, err := Hash("Secret123!")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	require.False(t, Verify("Secret123!", "not-a-bcrypt-hash"))
}
