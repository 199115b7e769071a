// Package internal provides the entry store that backs each half of the TLB.
package internal

import (
	"log"

	"github.com/sarchlab/rvtlb/mem/vm"
)

// A Store holds a bounded, insertion-ordered sequence of translations.
// Lookup, Refill, Evict and Invalidate are the operations which we can perform
// on a store.
type Store interface {
	// Lookup returns the oldest entry that translates vAddr in asid.
	Lookup(vAddr uint32, asid vm.ASID) (entry vm.TLBEntry, found bool)

	// Refill appends entry as the newest one. An entry caching the same
	// mapping is dropped first. If the store is still full, the oldest entry
	// is evicted and returned.
	Refill(entry vm.TLBEntry) (evicted vm.TLBEntry, hasEvicted bool)

	// Evict removes and returns the oldest entry. The store must not be empty.
	Evict() vm.TLBEntry

	// Invalidate removes every entry match accepts and returns how many were
	// removed. The remaining entries keep their order.
	Invalidate(match func(vm.TLBEntry) bool) int

	Len() int
	Cap() int

	// Entries returns a copy of the entries, oldest first.
	Entries() []vm.TLBEntry

	// Reset drops all entries.
	Reset()
}

// NewStore creates an empty FIFO store holding at most capacity entries.
func NewStore(capacity int) Store {
	if capacity <= 0 {
		log.Panicf("TLB store capacity must be positive, got %d", capacity)
	}

	return &fifoStore{
		entries: make([]vm.TLBEntry, capacity),
	}
}

// fifoStore keeps entries in a ring. Slot head holds the oldest entry and the
// next size slots after it hold the rest in insertion order.
type fifoStore struct {
	entries []vm.TLBEntry
	head    int
	size    int
}

func (s *fifoStore) slot(i int) *vm.TLBEntry {
	return &s.entries[(s.head+i)%len(s.entries)]
}

func (s *fifoStore) Lookup(vAddr uint32, asid vm.ASID) (vm.TLBEntry, bool) {
	for i := 0; i < s.size; i++ {
		e := s.slot(i)
		if e.Matches(vAddr, asid) {
			return *e, true
		}
	}

	return vm.TLBEntry{}, false
}

func (s *fifoStore) Refill(entry vm.TLBEntry) (evicted vm.TLBEntry, hasEvicted bool) {
	s.Invalidate(entry.SameSlot)

	if s.size == len(s.entries) {
		evicted = s.Evict()
		hasEvicted = true
	}

	*s.slot(s.size) = entry
	s.size++

	return evicted, hasEvicted
}

func (s *fifoStore) Evict() vm.TLBEntry {
	if s.size == 0 {
		log.Panic("evicting from an empty TLB store")
	}

	oldest := s.entries[s.head]
	s.entries[s.head] = vm.TLBEntry{}
	s.head = (s.head + 1) % len(s.entries)
	s.size--

	return oldest
}

func (s *fifoStore) Invalidate(match func(vm.TLBEntry) bool) int {
	kept := 0

	for i := 0; i < s.size; i++ {
		e := *s.slot(i)
		if match(e) {
			continue
		}

		*s.slot(kept) = e
		kept++
	}

	for i := kept; i < s.size; i++ {
		*s.slot(i) = vm.TLBEntry{}
	}

	removed := s.size - kept
	s.size = kept

	return removed
}

func (s *fifoStore) Len() int {
	return s.size
}

func (s *fifoStore) Cap() int {
	return len(s.entries)
}

func (s *fifoStore) Entries() []vm.TLBEntry {
	out := make([]vm.TLBEntry, s.size)
	for i := range out {
		out[i] = *s.slot(i)
	}

	return out
}

func (s *fifoStore) Reset() {
	clear(s.entries)
	s.head = 0
	s.size = 0
}
