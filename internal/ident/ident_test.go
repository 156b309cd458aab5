package ident

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isleoflan/sso-server/internal/domain"
)

func neverExists(context.Context, string) (bool, error) {
	return false, nil
}

func TestNewUUIDUniqueAcrossManyGenerations(t *testing.T) {
	issued := make(map[string]bool)
	exists := func(_ context.Context, value string) (bool, error) {
		return issued[value], nil
	}

	for i := 0; i < 10000; i++ {
		id, err := NewUUID(context.Background(), exists)
		require.NoError(t, err)
		require.False(t, issued[id], "duplicate id %s", id)
		require.True(t, IsUUID(id))
		issued[id] = true
	}
}

func TestNewUUIDRetriesOnCollision(t *testing.T) {
	collisions := 3
	exists := func(context.Context, string) (bool, error) {
		if collisions > 0 {
			collisions--
			return true, nil
		}
		return false, nil
	}

	id, err := NewUUID(context.Background(), exists)
	require.NoError(t, err)
	require.True(t, IsUUID(id))
	require.Zero(t, collisions)
}

func TestNewUUIDGivesUpAfterRetryCap(t *testing.T) {
	calls := 0
	alwaysTaken := func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	}

	_, err := NewUUID(context.Background(), alwaysTaken)
	require.Error(t, err)
	require.Equal(t, maxAttempts, calls)
}

func TestNewOpaqueDefaultsToStandardLength(t *testing.T) {
	token, err := NewOpaque(context.Background(), 0, neverExists)
	require.NoError(t, err)
	require.Len(t, token, OpaqueLength)
	require.True(t, IsOpaque(token))
}

func TestNewOpaqueUsesOnlyAlphabetCharacters(t *testing.T) {
	token, err := NewOpaque(context.Background(), 200, neverExists)
	require.NoError(t, err)
	for _, r := range token {
		require.True(t, strings.ContainsRune(Alphabet, r), "character %q outside alphabet", r)
	}
}

func TestIsUUID(t *testing.T) {
	require.True(t, IsUUID("8b109265-4a34-4f52-a266-3421c725b7c2"))
	require.False(t, IsUUID("8B109265-4A34-4F52-A266-3421C725B7C2"))
	require.False(t, IsUUID("not-a-uuid"))
	require.False(t, IsUUID(""))
}

func TestValidateUUID(t *testing.T) {
	require.NoError(t, ValidateUUID("8b109265-4a34-4f52-a266-3421c725b7c2"))
	require.ErrorIs(t, ValidateUUID("nope"), domain.ErrInvalidValue)
}

func TestIsOpaque(t *testing.T) {
	require.False(t, IsOpaque(""))
	require.True(t, IsOpaque("CqIas6"))
	// '~' is not part of the alphabet.
	require.False(t, IsOpaque("CqIas6~"))
}
