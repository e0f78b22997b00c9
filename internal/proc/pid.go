package proc

import (
	"sync"

	"github.com/justanotherdot/kernel161/internal/kerr"
	"github.com/justanotherdot/kernel161/internal/table"
)

// Table is the process table (PT): a Table[Process] of fixed size
// PID_MAX+1, plus the circular-allocation cursor described in spec §4.4.
type Table struct {
	t *table.Table[Process]

	mu      sync.Mutex // guards procNum/pidRef, the spec's proc_spinlock
	procNum uint32
	pidRef  int32

	PIDMin, PIDMax int32
	ProcMax        uint32
}

// NewTable builds a process table sized [pidMin, pidMax] with a cap of
// procMax simultaneously-live processes.
func NewTable(pidMin, pidMax int32, procMax uint32) *Table {
	return &Table{
		t:       table.NewSized[Process](uint64(pidMax) + 1),
		pidRef:  pidMin,
		PIDMin:  pidMin,
		PIDMax:  pidMax,
		ProcMax: procMax,
	}
}

// Get looks up the live process at pid, or nil.
func (pt *Table) Get(pid int32) *Process {
	if pid < 0 {
		return nil
	}
	return pt.t.Get(uint64(pid))
}

// SetPID installs p into the process table at the next circularly
// -allocated free PID (spec §4.4):
//  1. Under the spinlock, fail EMPROC if already at capacity; else
//     reserve a slot and wrap pidRef back to PIDMin if it overran PIDMax.
//  2. Table.SetFirst from pidRef; on success record p.PID and advance
//     pidRef past it.
//  3. On "no room" from pidRef, rewind to PIDMin and retry once; a
//     second failure releases the reservation and fails EMPROC.
func (pt *Table) SetPID(p *Process) error {
	pt.mu.Lock()
	if pt.procNum >= pt.ProcMax {
		pt.mu.Unlock()
		return kerr.EMPROC
	}
	pt.procNum++
	if pt.pidRef > pt.PIDMax {
		pt.pidRef = pt.PIDMin
	}
	start := pt.pidRef
	pt.mu.Unlock()

	rewound := false
	for {
		idx, err := pt.t.SetFirst(p, uint64(start))
		if err == nil {
			p.PID = int32(idx)
			pt.mu.Lock()
			if int32(idx) >= pt.pidRef {
				pt.pidRef = int32(idx) + 1
			}
			pt.mu.Unlock()
			p.phase.Store(int32(Alive))
			return nil
		}

		pt.mu.Lock()
		if !rewound && pt.pidRef != pt.PIDMin {
			pt.pidRef = pt.PIDMin
			start = pt.PIDMin
			rewound = true
			pt.mu.Unlock()
			continue
		}
		pt.procNum--
		pt.mu.Unlock()
		return kerr.EMPROC
	}
}

// Destroy removes p from the process table if it is still installed
// there, decrementing procNum. Called by the parent's waitpid after the
// child has passed through Exit (spec §3/§4.6 proc_destroy).
func (pt *Table) Destroy(p *Process) {
	if p.PID >= pt.PIDMin && p.PID <= pt.PIDMax && pt.t.Get(uint64(p.PID)) == p {
		pt.t.Remove(uint64(p.PID))
		pt.mu.Lock()
		pt.procNum--
		pt.mu.Unlock()
	}
}

// NumProcs reports the number of currently live processes (diagnostics).
func (pt *Table) NumProcs() uint32 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.procNum
}
