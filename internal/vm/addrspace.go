// Package vm stands in for the virtual-memory address-space object that
// execv/fork consume as an opaque collaborator. The real Biscuit address
// space (Vm_t, see its vm/as.go) is a mutex-protected region list plus a
// hardware page table; ours keeps the same mutex-guarded-region shape but
// drops the hardware paging, since that layer is out of scope for this
// subsystem (§1, "the virtual-memory address-space object, treated as an
// opaque handle supporting copy/destroy/activate/set_stack").
package vm

import (
	"sync"

	"github.com/justanotherdot/kernel161/internal/kerr"
)

// AddressSpace is the contract fork/execv/proc_exit rely on. A concrete
// implementation owns some notion of mapped memory and a user stack; this
// subsystem never inspects it beyond these operations.
type AddressSpace interface {
	// Copy produces an independent copy of the address space (fork).
	Copy() (AddressSpace, error)
	// Destroy releases all resources held by the address space.
	Destroy()
	// Activate installs the address space as the currently running one.
	Activate()
	// StackTop returns the top of the user stack region (the initial SP
	// before any argument bytes are pushed).
	StackTop() (uintptr, error)
	// WriteStack copies data into the stack region at the given absolute
	// address, as returned by a StackTop-relative computation. Used by
	// execv to place the packed argv blob before switching to it.
	WriteStack(addr uintptr, data []byte) error
}

// Region is a single mapped range, mirroring Vm_t's Vmregion entries
// closely enough for a reference (non-hardware) implementation.
type Region struct {
	Base uintptr
	Len  uintptr
}

// SimpleAS is a slice-backed reference AddressSpace used by tests and by
// the demo kernel when no real hardware MMU is present. Like Vm_t, all
// mutable state is behind a single mutex.
type SimpleAS struct {
	mu      sync.Mutex
	regions []Region
	stack   []byte
	active  bool
}

const defaultStackSize = 1 << 20 // 1 MiB, comfortably larger than ARG_MAX

func NewSimpleAS() *SimpleAS {
	return &SimpleAS{stack: make([]byte, defaultStackSize)}
}

func (as *SimpleAS) Copy() (AddressSpace, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	cp := &SimpleAS{
		regions: append([]Region(nil), as.regions...),
		stack:   append([]byte(nil), as.stack...),
	}
	return cp, nil
}

func (as *SimpleAS) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.regions = nil
	as.stack = nil
	as.active = false
}

func (as *SimpleAS) Activate() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.active = true
}

func (as *SimpleAS) StackTop() (uintptr, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.stack == nil {
		return 0, kerr.ENOMEM
	}
	// Stack grows down; the initial SP sits at the top of the region.
	return uintptr(len(as.stack)), nil
}

func (as *SimpleAS) WriteStack(addr uintptr, data []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.stack == nil {
		return kerr.ENOMEM
	}
	if int(addr)+len(data) > len(as.stack) {
		return kerr.ENOMEM
	}
	copy(as.stack[addr:int(addr)+len(data)], data)
	return nil
}
