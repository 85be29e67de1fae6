package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCreateUpdateRemove(t *testing.T) {
	s := NewStore(8)

	_, ok := s.Get(1)
	assert.False(t, ok)

	require.True(t, s.Set(1, PhaseReadingTarget))
	phase, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, PhaseReadingTarget, phase)

	require.True(t, s.Set(1, PhaseIdle))
	phase, _ = s.Get(1)
	assert.Equal(t, PhaseIdle, phase)
	assert.Equal(t, 1, s.Len())

	s.Remove(1)
	_, ok = s.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	// Remove is idempotent.
	s.Remove(1)
}

func TestStoreCapacityDrops(t *testing.T) {
	s := NewStore(2)

	require.True(t, s.Set(1, PhaseIdle))
	require.True(t, s.Set(2, PhaseIdle))
	assert.False(t, s.Set(3, PhaseIdle), "insert beyond capacity must drop")
	assert.Equal(t, uint64(1), s.Drops())

	// Updates to existing keys still succeed at capacity.
	assert.True(t, s.Set(1, PhaseReadingTarget))

	// Removing frees capacity for new keys.
	s.Remove(2)
	assert.True(t, s.Set(3, PhaseIdle))
	assert.Equal(t, uint64(1), s.Drops())
}

func TestStoreKeysSnapshot(t *testing.T) {
	s := NewStore(0)
	s.Set(10, PhaseIdle)
	s.Set(20, PhaseReadingTarget)

	keys := s.Keys()
	assert.ElementsMatch(t, []uint32{10, 20}, keys)
}

func TestStoreDefaultCapacity(t *testing.T) {
	s := NewStore(0)
	assert.Equal(t, DefaultCapacity, s.capacity)
	s = NewStore(-1)
	assert.Equal(t, DefaultCapacity, s.capacity)
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore(0)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base uint32) {
			defer wg.Done()
			for j := uint32(0); j < 1000; j++ {
				tid := base*1000 + j
				s.Set(tid, PhaseReadingTarget)
				s.Get(tid)
				s.Set(tid, PhaseIdle)
				s.Remove(tid)
			}
		}(uint32(i))
	}
	wg.Wait()

	assert.Equal(t, 0, s.Len())
}
