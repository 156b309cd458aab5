package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionExpiryBoundaries(t *testing.T) {
	now := time.Now()

	justBefore := Session{ExpiresAt: now.Add(1 * time.Second)}
	require.False(t, justBefore.IsExpired())

	withinLeeway := Session{ExpiresAt: now.Add(-ExpirationLeeway / 2)}
	require.False(t, withinLeeway.IsExpired())

	pastLeeway := Session{ExpiresAt: now.Add(-ExpirationLeeway - 1*time.Second)}
	require.True(t, pastLeeway.IsExpired())
}

func TestGlobalSessionValidityBoundaries(t *testing.T) {
	now := time.Now()

	live := GlobalSession{ExpiresAt: now.Add(1 * time.Second)}
	require.True(t, live.IsValid())

	withinLeeway := GlobalSession{ExpiresAt: now.Add(-ExpirationLeeway / 2)}
	require.True(t, withinLeeway.IsValid())

	pastLeeway := GlobalSession{ExpiresAt: now.Add(-ExpirationLeeway - 1*time.Second)}
	require.False(t, pastLeeway.IsValid())
}

func TestRevocationBackdateDefeatsLeeway(t *testing.T) {
	revoked := GlobalSession{ExpiresAt: time.Now().Add(-RevocationBackdate)}
	require.False(t, revoked.IsValid())

	revokedSession := Session{ExpiresAt: time.Now().Add(-RevocationBackdate)}
	require.True(t, revokedSession.IsExpired())
}

func TestResetExpiry(t *testing.T) {
	fresh := Reset{CreatedAt: time.Now()}
	require.False(t, fresh.IsExpired())

	stale := Reset{CreatedAt: time.Now().Add(-ResetExpiration - 1*time.Second)}
	require.True(t, stale.IsExpired())
}
