package syscall

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/justanotherdot/kernel161/internal/kerr"
	"github.com/justanotherdot/kernel161/internal/proc"
	"github.com/justanotherdot/kernel161/internal/vfs"
	"github.com/justanotherdot/kernel161/internal/vm"
	"github.com/justanotherdot/kernel161/internal/waitstatus"
)

// ptrSize is the width of a user-space pointer in the packed argv vector
// execv builds on the child's new stack. There's no real MIPS/amd64
// register file underneath this subsystem, so this is a modelling choice
// rather than a hardware fact; 8 matches the stack's own int64-sized
// arithmetic.
const ptrSize = 8

// Fork implements spec §4.6's fork: allocate and install a PID for the
// child, copy the parent's address space, share fd references (fh_inc on
// every non-null slot, open question (ii): null slots stay null), share
// cwd (vnode Incref), and record the parent/child relationship. Fork does
// not itself spawn the goroutine that runs the child; that's the
// caller's concern, mirroring the split between proc_fork's setup and the
// separate thread_fork call in the original.
func (k *Kernel) Fork(parent *proc.Process) (*proc.Process, error) {
	child := proc.NewProcess(parent.Name, k.OFT)
	if err := k.PT.SetPID(child); err != nil {
		k.observe("fork", err)
		return nil, err
	}
	child.PPID = parent.PID

	newAS, err := parent.AS().Copy()
	if err != nil {
		child.Exit()
		k.PT.Destroy(child)
		k.observe("fork", err)
		return nil, err
	}
	child.SetAS(newAS)

	parent.MainlockDo(func() {
		for _, pfd := range parent.FDs {
			if pfd == nil {
				child.FDs = append(child.FDs, nil)
				continue
			}
			k.OFT.Inc(pfd)
			child.FDs = append(child.FDs, pfd)
		}
	})

	if cwd := parent.Cwd(); cwd != nil {
		cwd.Incref()
		child.SetCwd(cwd, parent.CwdPath())
	}

	parent.MainlockDo(func() {
		parent.Children = append(parent.Children, child)
	})

	child.AddThread()
	k.observe("fork", nil)
	return child, nil
}

// Execv implements spec §4.6's execv: resolve the new program, install a
// fresh address space, pack argv onto its stack, and commit, restoring
// the old address space on any failure along the way (original_source's
// sys_execv fail paths). ELF loading itself is the out-of-scope VFS/VM
// collaborator named in spec §1; here it's a no-op once the vnode has
// been resolved, since this subsystem only owns what happens around it.
func (k *Kernel) Execv(p *proc.Process, path string, argv []string) (uintptr, error) {
	if len(path) > k.Limits.PathMax {
		k.observe("execv", kerr.ENAMETOOLONG)
		return 0, kerr.ENAMETOOLONG
	}

	vn, err := k.FS.Open(path, vfs.ORDONLY)
	if err != nil {
		k.observe("execv", err)
		return 0, err
	}

	oldAS := p.AS()
	newAS := vm.NewSimpleAS()
	p.SetAS(newAS)
	newAS.Activate()
	vn.Close()

	top, err := newAS.StackTop()
	if err != nil {
		p.SetAS(oldAS)
		if oldAS != nil {
			oldAS.Activate()
		}
		k.observe("execv", err)
		return 0, err
	}

	sp, blobAddr, blob, err := packArgv(top, argv, k.Limits.ArgMax)
	if err != nil {
		p.SetAS(oldAS)
		if oldAS != nil {
			oldAS.Activate()
		}
		k.observe("execv", err)
		return 0, err
	}

	if err := newAS.WriteStack(blobAddr, blob); err != nil {
		p.SetAS(oldAS)
		if oldAS != nil {
			oldAS.Activate()
		}
		k.observe("execv", err)
		return 0, err
	}

	if oldAS != nil {
		oldAS.Destroy()
	}
	k.observe("execv", nil)
	return sp, nil
}

// packArgv lays out argv as a NULL-terminated pointer vector followed by
// the 4-byte-aligned argument strings, sized to end exactly at top (the
// address a stack-grows-down region starts unused at). It returns the
// stack pointer a caller should install (the start of the pointer
// vector, matching argv[0] conventionally sitting just above it), the
// absolute address the whole blob must be written at, and the blob
// itself. E2BIG mirrors copyout failing once more than ARG_MAX bytes of
// pointers-plus-strings would be required.
func packArgv(top uintptr, argv []string, argMax int) (sp, blobAddr uintptr, blob []byte, err error) {
	stringOffsets := make([]int, len(argv))
	cursor := 0
	for i, s := range argv {
		stringOffsets[i] = cursor
		aligned := (len(s) + 1 + 3) &^ 3
		cursor += aligned
	}
	stringsSize := cursor
	ptrVecSize := (len(argv) + 1) * ptrSize
	total := ptrVecSize + stringsSize

	if total > argMax {
		return 0, 0, nil, kerr.E2BIG
	}
	if uintptr(total) > top {
		return 0, 0, nil, kerr.ENOMEM
	}

	blobAddr = top - uintptr(total)
	blob = make([]byte, total)
	for i, s := range argv {
		addr := uint64(blobAddr) + uint64(ptrVecSize+stringOffsets[i])
		binary.LittleEndian.PutUint64(blob[i*ptrSize:], addr)
		copy(blob[ptrVecSize+stringOffsets[i]:], s)
	}
	binary.LittleEndian.PutUint64(blob[len(argv)*ptrSize:], 0)

	return blobAddr, blobAddr, blob, nil
}

// Waitpid implements spec §4.6's waitpid: validate options and pid range,
// find the child in the caller's Children, block on its exit semaphore,
// reap it (proc_destroy plus removal from Children), and report its
// encoded wait status. ECHILD covers both "never a child" and "already
// reaped", the same outcome original_source's sys_waitpid gives.
func (k *Kernel) Waitpid(p *proc.Process, pid int32, options int) (int32, int32, error) {
	if options != 0 {
		k.observe("waitpid", kerr.EINVAL)
		return 0, 0, kerr.EINVAL
	}
	if pid < k.PT.PIDMin || pid > k.PT.PIDMax {
		k.observe("waitpid", kerr.ESRCH)
		return 0, 0, kerr.ESRCH
	}

	var child *proc.Process
	p.MainlockDo(func() {
		for _, c := range p.Children {
			if c.PID == pid {
				child = c
				return
			}
		}
	})
	if child == nil {
		k.observe("waitpid", kerr.ECHILD)
		return 0, 0, kerr.ECHILD
	}

	start := time.Now()
	if err := child.ExitSem.Acquire(context.Background(), 1); err != nil {
		k.observe("waitpid", err)
		return 0, 0, err
	}
	if k.Metrics != nil {
		k.Metrics.ObserveWaitSeconds(time.Since(start).Seconds())
	}

	status := waitstatus.MkExit(child.ExitVal)

	k.PT.Destroy(child)
	p.MainlockDo(func() {
		for i, c := range p.Children {
			if c == child {
				p.Children = append(p.Children[:i], p.Children[i+1:]...)
				return
			}
		}
	})

	k.observe("waitpid", nil)
	return child.PID, status, nil
}

// Exit implements spec §4.6's _exit: record the exit code and drive the
// process through its last thread's Exit cleanup (proc_remthread ->
// proc_exit), which posts the exit semaphore a blocked waitpid wakes on.
func (k *Kernel) Exit(p *proc.Process, code int32) {
	p.ExitVal = code
	p.RemThread()
	k.observe("_exit", nil)
}

// Getpid implements spec §4.6's getpid.
func (k *Kernel) Getpid(p *proc.Process) int32 {
	return p.PID
}
