// Package proc implements the process table, PID allocator, and process
// object described in spec §3/§4.4, grounded on
// original_source/kern/proc/proc.c and kern/include/proc.h, and on
// Biscuit's own proc_new/Proc_t idiom (biscuit/src/kernel/main.go) for
// naming and lock-usage register.
package proc

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/justanotherdot/kernel161/internal/oft"
	"github.com/justanotherdot/kernel161/internal/vfs"
	"github.com/justanotherdot/kernel161/internal/vm"
)

// Phase is the process lifecycle state named in spec §3.
type Phase int

const (
	Created Phase = iota
	Alive
	Zombie
)

// Process is the process object of spec §3. mainlock serialises
// modifications to FDs (open/close/dup2/chdir/getcwd/fork-copy);
// pLock is the short lock guarding only the AS/cwd pointers themselves,
// matching the lock-ordering note in spec §5 that mainlock must not be
// held across VFS I/O.
type Process struct {
	Name string

	pLock    sync.Mutex
	mainlock sync.Mutex

	PID  int32
	PPID int32

	as      vm.AddressSpace
	cwd     vfs.Vnode
	cwdPath string

	Children []*Process
	FDs      []*oft.FileDescriptor

	phase   atomic.Int32
	ExitVal int32
	ExitSem *semaphore.Weighted

	NumThreads atomic.Int32

	oft *oft.Table
}

// NewProcess creates a proc in the "created" phase: no PID, no address
// space (spec §3 lifecycle table). ot is the system-wide open-file table
// this process's descriptors are released against when it exits.
func NewProcess(name string, ot *oft.Table) *Process {
	p := &Process{
		Name:    name,
		ExitSem: semaphore.NewWeighted(1),
		oft:     ot,
	}
	// The semaphore starts "empty": proc_exit releases (V) it exactly
	// once, and waitpid acquires (P) it. Weighted semaphores start fully
	// available, so we preclaim the one unit of weight here to model a
	// counting semaphore initialised to 0.
	p.ExitSem.Acquire(context.Background(), 1)
	p.phase.Store(int32(Created))
	return p
}

func (p *Process) Phase() Phase { return Phase(p.phase.Load()) }

// AS returns the process's address space under pLock (proc_getas).
func (p *Process) AS() vm.AddressSpace {
	p.pLock.Lock()
	defer p.pLock.Unlock()
	return p.as
}

// SetAS installs a new address space and returns the old one (proc_setas).
func (p *Process) SetAS(newAS vm.AddressSpace) vm.AddressSpace {
	p.pLock.Lock()
	defer p.pLock.Unlock()
	old := p.as
	p.as = newAS
	return old
}

// Cwd returns the process's current-working-directory vnode under pLock.
func (p *Process) Cwd() vfs.Vnode {
	p.pLock.Lock()
	defer p.pLock.Unlock()
	return p.cwd
}

// SetCwd installs a new cwd vnode and its path under pLock. The caller
// owns refcount bookkeeping on both the old and new vnode.
func (p *Process) SetCwd(v vfs.Vnode, path string) {
	p.pLock.Lock()
	defer p.pLock.Unlock()
	p.cwd = v
	p.cwdPath = path
}

// CwdPath returns the path last passed to SetCwd (__getcwd's backing
// store; a real VFS would instead walk ".." entries to reconstruct it).
func (p *Process) CwdPath() string {
	p.pLock.Lock()
	defer p.pLock.Unlock()
	return p.cwdPath
}

// MainlockDo runs fn with mainlock held, serialising it against any other
// open/close/dup2/chdir/fork-copy on this process. fn must never block
// on VFS I/O or another process's lock (spec §5 lock ordering: mainlock
// is never held across VOP calls).
func (p *Process) MainlockDo(fn func()) {
	p.mainlock.Lock()
	defer p.mainlock.Unlock()
	fn()
}

// AddThread increments the thread count (proc_addthread).
func (p *Process) AddThread() {
	p.NumThreads.Add(1)
}

// RemThread decrements the thread count and, if it was the last thread,
// runs Exit (proc_remthread -> proc_exit).
func (p *Process) RemThread() {
	if p.NumThreads.Add(-1) == 0 {
		p.Exit()
	}
}

// Exit releases every resource the process exclusively owns except its
// name/PID/exit value/exit semaphore, then posts the exit semaphore and
// transitions to Zombie. Only the final thread's exit path may call this
// (spec §3 invariants).
func (p *Process) Exit() {
	p.pLock.Lock()
	if p.cwd != nil {
		p.cwd.Decref()
		p.cwd = nil
	}
	as := p.as
	p.as = nil
	p.pLock.Unlock()
	if as != nil {
		as.Destroy()
	}

	p.mainlock.Lock()
	fds := p.FDs
	p.FDs = nil
	p.mainlock.Unlock()
	for _, fd := range fds {
		if fd != nil && p.oft != nil {
			p.oft.Dec(fd)
		}
	}

	p.Children = nil

	p.phase.Store(int32(Zombie))
	p.ExitSem.Release(1)
}
