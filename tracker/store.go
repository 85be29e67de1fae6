package tracker

import (
	"sync"
	"sync/atomic"
)

// Store is a thread-safe, capacity-bounded map of classification phases
// keyed by thread id.
//
// Entries are created on the first Set for a key and removed only by
// Remove. Setting an existing key to PhaseIdle keeps the entry: reclaiming
// on every idle transition would cost one free per read call across every
// monitored thread, while reclaiming only on thread exit costs one free per
// thread lifetime. The store therefore grows with the number of live
// monitored threads, not with read volume.
//
// When the store is full, Set for a new key is dropped rather than
// evicting: evicting a live thread's entry would silently corrupt its
// classification, which is exactly the failure the bound exists to surface.
type Store struct {
	mu       sync.RWMutex
	phases   map[uint32]Phase
	capacity int
	drops    atomic.Uint64
}

// DefaultCapacity bounds the store when no capacity is configured. One
// entry per live thread of one executable; 16k is far beyond any sane
// deployment and small enough that exhaustion means something is wrong.
const DefaultCapacity = 16384

// NewStore creates a store holding at most capacity entries. A capacity
// of zero or less selects DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		phases:   make(map[uint32]Phase),
		capacity: capacity,
	}
}

// Get returns the phase for a thread id, or false if no entry exists.
func (s *Store) Get(tid uint32) (Phase, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.phases[tid]
	return p, ok
}

// Set records the phase for a thread id, creating the entry if needed.
// Returns false when the entry had to be created but the store is at
// capacity; the update is dropped and the drop counter incremented.
func (s *Store) Set(tid uint32, p Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.phases[tid]; !exists && len(s.phases) >= s.capacity {
		s.drops.Add(1)
		return false
	}
	s.phases[tid] = p
	return true
}

// Remove deletes the entry for a thread id. Idempotent.
func (s *Store) Remove(tid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.phases, tid)
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.phases)
}

// Keys returns a snapshot of all thread ids with live entries.
func (s *Store) Keys() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]uint32, 0, len(s.phases))
	for tid := range s.phases {
		keys = append(keys, tid)
	}
	return keys
}

// Drops returns the number of dropped Set calls since creation.
func (s *Store) Drops() uint64 {
	return s.drops.Load()
}
