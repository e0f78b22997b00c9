// Package table implements the sparse, lock-striped Section/Table
// primitive that backs both the open-file table and the process table.
// It is grounded on original_source/kern/lib/section.c and table.c
// (the teaching-OS C implementation this module was distilled from) and
// written in Biscuit's Go idiom: short, snake-ish names, terse comments,
// package-level state protected by stdlib sync rather than a hand-rolled
// spinlock (Biscuit itself guards every shared structure, e.g. its process
// table, with a plain sync.Mutex/sync.RWMutex).
package table

import "sync/atomic"

// SectionSize is the fixed capacity of a Section. Matches
// original_source's SECTION_SIZE (section.h: "Don't make smaller than
// 256").
const SectionSize = 256

// ErrNoRoom is returned by setfirst when no empty slot exists in the
// requested range.
type ErrNoRoom struct{}

func (ErrNoRoom) Error() string { return "no room" }

// Section is the fixed-capacity slot array described in spec §4.1: get,
// set, setfirst, remove, num, cleanup. The population counter is an
// atomic so concurrent set/remove on disjoint slots still linearise
// correctly without a separate lock (section.c uses a spinlock for the
// same purpose; atomic.Int32 is the equivalent stdlib primitive).
type Section[T any] struct {
	slots [SectionSize]*T
	num   atomic.Int32
}

func NewSection[T any]() *Section[T] {
	return &Section[T]{}
}

// Get returns the element at index, or nil if the slot is empty.
// Callers are expected to hold at least the enclosing Container's read
// lock (spec §4.1).
func (s *Section[T]) Get(index int) *T {
	return s.slots[index]
}

// Set installs v at index, which must be non-nil. Returns true if the
// slot transitioned from empty to non-empty (so the caller can bump the
// enclosing Table's population counter). Callers must hold the
// enclosing Container's write lock.
func (s *Section[T]) Set(index int, v *T) bool {
	if v == nil {
		panic("table: Section.Set called with nil value; use Remove")
	}
	wasEmpty := s.slots[index] == nil
	s.slots[index] = v
	if wasEmpty {
		s.num.Add(1)
	}
	return wasEmpty
}

// SetFirst installs v in the lowest empty slot in [start, end), returning
// that index. Returns ErrNoRoom if population equals capacity or no hole
// is found in range. Callers must hold the enclosing Container's write
// lock.
func (s *Section[T]) SetFirst(v *T, start, end int) (int, error) {
	if int(s.num.Load()) == SectionSize {
		return 0, ErrNoRoom{}
	}
	for i := start; i < end; i++ {
		if s.slots[i] == nil {
			s.slots[i] = v
			s.num.Add(1)
			return i, nil
		}
	}
	return 0, ErrNoRoom{}
}

// Remove nulls index and decrements the population counter iff the slot
// was non-empty, reporting whether it actually removed something.
// Callers must hold the enclosing Container's write lock.
func (s *Section[T]) Remove(index int) bool {
	if s.slots[index] != nil {
		s.slots[index] = nil
		s.num.Add(-1)
		return true
	}
	return false
}

// Num returns the current population. Callers must hold at least the
// enclosing Container's read lock.
func (s *Section[T]) Num() int {
	return int(s.num.Load())
}

// Cleanup asserts the section is empty; called just before a Container
// discards it.
func (s *Section[T]) Cleanup() {
	if s.num.Load() != 0 {
		panic("table: Section.Cleanup called on non-empty section")
	}
}
