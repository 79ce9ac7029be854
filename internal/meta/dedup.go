package meta

import (
	"github.com/google/uuid"

	"github.com/relaymesh/relayd/internal/ordmap"
)

// NewNonce returns a fresh 32-bit nonce for a mutation message, drawn from
// a uuid.v4's random bits the same way session identifiers are drawn
// from github.com/google/uuid elsewhere, truncated to the wire's 32-bit
// nonce field since the dedup set only needs a large enough space to
// make collisions negligible at the target scale (tens of nodes).
func NewNonce() uint32 {
	id := uuid.New()
	b := id[:]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// SeenSet is the bounded recently-seen nonce cache behind request
// deduplication: a fixed-capacity set with FIFO eviction, built on
// internal/ordmap.List for O(1) head/tail operations.
type SeenSet struct {
	capacity int
	list     *ordmap.List[uint32]
	index    map[uint32]*ordmap.ListElem[uint32]
}

// NewSeenSet creates a dedup set that remembers at most capacity nonces,
// evicting the oldest once full.
func NewSeenSet(capacity int) *SeenSet {
	return &SeenSet{
		capacity: capacity,
		list:     ordmap.NewList[uint32](),
		index:    make(map[uint32]*ordmap.ListElem[uint32]),
	}
}

// Seen reports whether nonce was already recorded, and records it if not.
// Returns true when the message carrying nonce must be dropped as a
// duplicate.
func (s *SeenSet) Seen(nonce uint32) bool {
	if _, ok := s.index[nonce]; ok {
		return true
	}
	elem := s.list.PushBack(nonce)
	s.index[nonce] = elem
	if len(s.index) > s.capacity {
		oldest := s.list.Front()
		oldest.Remove()
		delete(s.index, oldest.Value)
	}
	return false
}

// Len reports how many nonces are currently remembered.
func (s *SeenSet) Len() int {
	return len(s.index)
}
