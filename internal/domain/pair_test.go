package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/speeddate/internal/domain"
)

func TestNewPairKeyCanonicalOrder(t *testing.T) {
	k1, err := domain.NewPairKey("bob", "alice")
	require.NoError(t, err)
	k2, err := domain.NewPairKey("alice", "bob")
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Equal(t, "alice", k1.User1)
	assert.Equal(t, "bob", k1.User2)

	side, ok := k1.Side("bob")
	assert.True(t, ok)
	assert.Equal(t, domain.Side2, side)
	assert.Equal(t, domain.Side1, side.Other())

	partner, ok := k1.Partner("alice")
	assert.True(t, ok)
	assert.Equal(t, "bob", partner)

	_, ok = k1.Partner("carol")
	assert.False(t, ok)
}

func TestNewPairKeyRejectsInvalid(t *testing.T) {
	_, err := domain.NewPairKey("alice", "alice")
	assert.ErrorIs(t, err, domain.ErrSelfPair)

	_, err = domain.NewPairKey("", "bob")
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestStateHelpers(t *testing.T) {
	assert.True(t, domain.StateMatched.Paired())
	assert.True(t, domain.StateVoting.Paired())
	assert.False(t, domain.StateWaiting.Paired())
	assert.False(t, domain.PresenceState("sleeping").Valid())

	assert.True(t, domain.PairPending.Open())
	assert.False(t, domain.PairCancelled.Open())
}
