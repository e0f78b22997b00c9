package syscall

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/justanotherdot/kernel161/internal/config"
	"github.com/justanotherdot/kernel161/internal/kerr"
	"github.com/justanotherdot/kernel161/internal/proc"
	"github.com/justanotherdot/kernel161/internal/vfs"
	"github.com/justanotherdot/kernel161/internal/vm"
	"github.com/justanotherdot/kernel161/internal/waitstatus"
)

func newRootProcess(t *testing.T, k *Kernel) *proc.Process {
	t.Helper()
	p := newTestProcess(t, k)
	p.SetAS(vm.NewSimpleAS())
	p.AddThread()
	return p
}

func TestForkSharesFDsViaRefcountAndPreservesNullSlots(t *testing.T) {
	k, fs := newTestKernel(t)
	fs.WriteFile("a", []byte("hello"))
	fs.WriteFile("b", []byte("world"))
	parent := newRootProcess(t, k)

	fdA, err := k.Open(parent, "a", vfs.ORDONLY)
	require.NoError(t, err)
	_, err = k.Open(parent, "b", vfs.ORDONLY)
	require.NoError(t, err)

	// Punch a hole at fdA so Fork must preserve it as null rather than
	// compacting the slice (open question (ii)).
	require.NoError(t, k.Close(parent, fdA))

	beforeRefcount := parent.FDs[1].Handle.Refcount()

	child, err := k.Fork(parent)
	require.NoError(t, err)
	require.NotEqual(t, parent.PID, child.PID)
	require.Equal(t, parent.PID, child.PPID)
	require.Len(t, child.FDs, len(parent.FDs))
	require.Nil(t, child.FDs[fdA])
	require.Equal(t, beforeRefcount+1, parent.FDs[1].Handle.Refcount())

	require.Contains(t, parent.Children, child)
}

func TestForkCopiesAddressSpaceIndependently(t *testing.T) {
	k, _ := newTestKernel(t)
	parent := newRootProcess(t, k)

	child, err := k.Fork(parent)
	require.NoError(t, err)
	require.NotNil(t, child.AS())
	require.NotSame(t, parent.AS(), child.AS())
}

func TestForkFailsEMPROCWhenProcTableFull(t *testing.T) {
	fs := vfs.NewMemFS()
	limits := config.Default()
	limits.ProcMax = 1
	k := New(limits, fs, nil)
	parent := newRootProcess(t, k)

	_, err := k.Fork(parent)
	require.ErrorIs(t, err, kerr.EMPROC)
}

func TestExecvPacksArgvOntoFreshStack(t *testing.T) {
	k, fs := newTestKernel(t)
	fs.WriteFile("bin/prog", []byte("prog"))
	p := newRootProcess(t, k)
	oldAS := p.AS()

	sp, err := k.Execv(p, "bin/prog", []string{"prog", "one", "two"})
	require.NoError(t, err)
	require.NotZero(t, sp)
	require.NotEqual(t, oldAS, p.AS())
}

func TestExecvFailsE2BIGAndRestoresOldAddressSpace(t *testing.T) {
	k, fs := newTestKernel(t)
	fs.WriteFile("bin/prog", []byte("prog"))
	limits := config.Default()
	limits.ArgMax = 16
	k = New(limits, fs, nil)
	p := newRootProcess(t, k)
	oldAS := p.AS()

	huge := strings.Repeat("x", 4096)
	_, err := k.Execv(p, "bin/prog", []string{huge})
	require.ErrorIs(t, err, kerr.E2BIG)
	require.Equal(t, oldAS, p.AS(), "failed execv must restore the old address space")
}

func TestExecvFailsENAMETOOLONG(t *testing.T) {
	k, _ := newTestKernel(t)
	p := newRootProcess(t, k)

	limits := k.Limits
	longPath := strings.Repeat("p", limits.PathMax+1)
	_, err := k.Execv(p, longPath, nil)
	require.ErrorIs(t, err, kerr.ENAMETOOLONG)
}

func TestWaitpidReapsExitedChildAndReturnsStatus(t *testing.T) {
	k, _ := newTestKernel(t)
	parent := newRootProcess(t, k)

	child, err := k.Fork(parent)
	require.NoError(t, err)

	k.Exit(child, 7)

	gotPID, status, err := k.Waitpid(parent, child.PID, 0)
	require.NoError(t, err)
	require.Equal(t, child.PID, gotPID)
	require.True(t, waitstatus.IfExited(status))
	require.EqualValues(t, 7, waitstatus.ExitStatus(status))
}

func TestWaitpidOnUnknownChildIsECHILD(t *testing.T) {
	k, _ := newTestKernel(t)
	parent := newRootProcess(t, k)

	_, _, err := k.Waitpid(parent, 999, 0)
	require.ErrorIs(t, err, kerr.ECHILD)
}

func TestWaitpidIsNotRepeatableOnceReaped(t *testing.T) {
	k, _ := newTestKernel(t)
	parent := newRootProcess(t, k)

	child, err := k.Fork(parent)
	require.NoError(t, err)
	k.Exit(child, 0)

	_, _, err = k.Waitpid(parent, child.PID, 0)
	require.NoError(t, err)

	_, _, err = k.Waitpid(parent, child.PID, 0)
	require.ErrorIs(t, err, kerr.ECHILD)
}

func TestWaitpidRejectsNonzeroOptions(t *testing.T) {
	k, _ := newTestKernel(t)
	parent := newRootProcess(t, k)

	_, _, err := k.Waitpid(parent, parent.PID, 1)
	require.ErrorIs(t, err, kerr.EINVAL)
}

func TestGetpidReturnsAssignedPID(t *testing.T) {
	k, _ := newTestKernel(t)
	p := newRootProcess(t, k)
	require.Equal(t, p.PID, k.Getpid(p))
}
