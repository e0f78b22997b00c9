package table

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrOutOfRange is returned when an index is not below the table's
// current max.
type ErrOutOfRange struct {
	Index, Max uint64
}

func (e ErrOutOfRange) Error() string {
	return fmt.Sprintf("table: index %d out of range (max %d)", e.Index, e.Max)
}

// Container is a Section together with the reader/writer lock that guards
// both its optional-ness and its contents (spec §3/§4.1). The Container
// itself, once allocated, is never torn down; only the Section it wraps
// is reclaimed when empty, so the rwlock's address stays stable for the
// table's lifetime.
type Container[T any] struct {
	lock    sync.RWMutex
	section *Section[T]
}

// Table is the lazily-allocated, lock-striped sparse array described in
// spec §3/§4.2. Concurrency design: per-section reader/writer locks let
// reads of distinct sections, and concurrent reads of the same section,
// proceed in parallel; growth of the container slice is rare and
// serialised by containerLock. The population counter is an
// atomic.Uint64, the Go stdlib's answer to the spec's "short spinlock"
// (Biscuit itself leans on sync/atomic for exactly this kind of shared
// counter rather than a hand-rolled spinlock type).
//
// Lock ordering (outer to inner, per spec §5): containerLock -> a
// Container's rwlock -> nothing else here (the table's own population
// counter is lock-free). Never hold a Container's lock while waiting on
// containerLock.
type Table[T any] struct {
	containerLock sync.Mutex
	containers    []*Container[T]

	max uint64
	num atomic.Uint64
}

// New returns an empty Table with max capacity 0; call SetSize to grow it.
func New[T any]() *Table[T] {
	return &Table[T]{}
}

// NewSized returns a Table pre-sized to n elements.
func NewSized[T any](n uint64) *Table[T] {
	t := New[T]()
	t.SetSize(n)
	return t
}

// Num returns the number of populated indices in the table.
func (t *Table[T]) Num() uint64 {
	return t.num.Load()
}

// Max returns the table's current logical capacity.
func (t *Table[T]) Max() uint64 {
	return t.containerLockedMax()
}

func (t *Table[T]) containerLockedMax() uint64 {
	t.containerLock.Lock()
	defer t.containerLock.Unlock()
	return t.max
}

// SetSize grows the table's logical capacity to n; it never shrinks
// (spec §4.2's setsize contract).
func (t *Table[T]) SetSize(n uint64) {
	t.containerLock.Lock()
	defer t.containerLock.Unlock()
	if n > t.max {
		t.max = n
	}
}

// growLocked ensures containers exist for every section index up to and
// including sectionIdx. Caller must hold containerLock.
func (t *Table[T]) growLocked(sectionIdx uint64) {
	for uint64(len(t.containers)) <= sectionIdx {
		t.containers = append(t.containers, &Container[T]{})
	}
}

func splitIndex(index uint64) (sectionIdx uint64, rem int) {
	rem = int(index % SectionSize)
	sectionIdx = index / SectionSize
	return
}

// Get returns the element at index, or nil if absent. Out-of-range
// indices return nil rather than erroring, matching the C original's
// table_get contract (bounds are asserted there; here we simply treat
// anything beyond current containers as empty).
func (t *Table[T]) Get(index uint64) *T {
	if index >= t.containerLockedMax() {
		return nil
	}
	sectionIdx, rem := splitIndex(index)

	t.containerLock.Lock()
	if sectionIdx >= uint64(len(t.containers)) {
		t.containerLock.Unlock()
		return nil
	}
	c := t.containers[sectionIdx]
	t.containerLock.Unlock()

	c.lock.RLock()
	defer c.lock.RUnlock()
	if c.section == nil {
		return nil
	}
	return c.section.Get(rem)
}

// Set installs v at index (which must be non-nil), creating containers
// and sections as needed. Bumps the population counter iff this
// transitioned the slot from empty to non-empty.
func (t *Table[T]) Set(index uint64, v *T) error {
	if index >= t.containerLockedMax() {
		return ErrOutOfRange{index, t.containerLockedMax()}
	}
	sectionIdx, rem := splitIndex(index)

	t.containerLock.Lock()
	t.growLocked(sectionIdx)
	c := t.containers[sectionIdx]
	t.containerLock.Unlock()

	c.lock.Lock()
	if c.section == nil {
		c.section = NewSection[T]()
	}
	wasEmpty := c.section.Set(rem, v)
	c.lock.Unlock()

	if wasEmpty {
		t.num.Add(1)
	}
	return nil
}

// SetFirst installs v in the lowest empty index in [start, max), scanning
// section by section. It is restartable: because other writers may
// mutate between a section's unlock and the next section's lock, a full
// pass that finds nothing loops from the point the container slice last
// grew to, mirroring original_source's table_setfirst. Containers past
// the current slice are created under containerLock before being scanned.
func (t *Table[T]) SetFirst(v *T, start uint64) (uint64, error) {
	max := t.containerLockedMax()
	if start >= max {
		return 0, ErrOutOfRange{start, max}
	}

	sectionIdx, off := splitIndex(start)

	for {
		if t.num.Load() == max {
			return 0, ErrNoRoom{}
		}

		t.containerLock.Lock()
		containerNum := uint64(len(t.containers))
		if sectionIdx >= containerNum {
			// No container exists yet at this section: grow the slice
			// under containerLock, then scan it like any other so a
			// concurrent writer's slot is never overwritten.
			t.growLocked(sectionIdx)
			containerNum = uint64(len(t.containers))
		}
		t.containerLock.Unlock()

		for i := sectionIdx; i < containerNum; i++ {
			c := t.containers[i]
			c.lock.Lock()
			if c.section == nil {
				c.section = NewSection[T]()
			}
			lo := 0
			if i == sectionIdx {
				lo = off
			}
			hi := SectionSize
			if (i+1)*SectionSize > max {
				hi = int(max - i*SectionSize)
			}
			idx, err := c.section.SetFirst(v, lo, hi)
			if err == nil {
				c.lock.Unlock()
				t.num.Add(1)
				return i*SectionSize + uint64(idx), nil
			}
			c.lock.Unlock()
		}

		t.containerLock.Lock()
		containerNum = uint64(len(t.containers))
		t.containerLock.Unlock()

		maxContainers := (max + SectionSize - 1) / SectionSize
		if containerNum >= maxContainers {
			return 0, ErrNoRoom{}
		}

		sectionIdx = containerNum
		off = 0
	}
}

// Add grows the table by one and installs v at the new last index. Not
// required to be linearisable with other concurrent Adds; the call site
// is expected to serialise them with an external lock (spec §4.2).
func (t *Table[T]) Add(v *T) (uint64, error) {
	index := t.containerLockedMax()
	t.SetSize(index + 1)
	if err := t.Set(index, v); err != nil {
		return 0, err
	}
	return index, nil
}

// Remove clears index if populated, tearing down the backing section
// when its population reaches zero (the Container itself is kept).
func (t *Table[T]) Remove(index uint64) {
	if index >= t.containerLockedMax() {
		return
	}
	sectionIdx, rem := splitIndex(index)

	t.containerLock.Lock()
	if sectionIdx >= uint64(len(t.containers)) {
		t.containerLock.Unlock()
		return
	}
	c := t.containers[sectionIdx]
	t.containerLock.Unlock()

	c.lock.Lock()
	removed := false
	if c.section != nil {
		removed = c.section.Remove(rem)
		if removed && c.section.Num() == 0 {
			c.section.Cleanup()
			c.section = nil
		}
	}
	c.lock.Unlock()

	if removed {
		t.num.Add(^uint64(0))
	}
}
