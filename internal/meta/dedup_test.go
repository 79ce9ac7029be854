package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenSetDedup(t *testing.T) {
	s := NewSeenSet(4)
	assert.False(t, s.Seen(1), "first sighting is never a duplicate")
	assert.True(t, s.Seen(1), "second sighting of the same nonce is a duplicate")
}

func TestSeenSetEvictsOldest(t *testing.T) {
	s := NewSeenSet(2)
	assert.False(t, s.Seen(1))
	assert.False(t, s.Seen(2))
	assert.False(t, s.Seen(3)) // evicts 1
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Seen(1), "1 was evicted so it is no longer considered seen")
}

func TestNewNonceIsNonZeroMostOfTheTime(t *testing.T) {
	// Not a strong property, but guards against a degenerate all-zero
	// implementation creeping in.
	seen := map[uint32]bool{}
	for i := 0; i < 8; i++ {
		seen[NewNonce()] = true
	}
	assert.Greater(t, len(seen), 1)
}
