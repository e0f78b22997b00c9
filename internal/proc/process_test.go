package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/justanotherdot/kernel161/internal/oft"
	"github.com/justanotherdot/kernel161/internal/vfs"
	"github.com/justanotherdot/kernel161/internal/vm"
)

func TestNewProcessStartsCreated(t *testing.T) {
	ot := oft.NewTable(16)
	p := NewProcess("a", ot)
	require.Equal(t, Created, p.Phase())
	require.Nil(t, p.AS())
}

func TestSetASReturnsPrevious(t *testing.T) {
	ot := oft.NewTable(16)
	p := NewProcess("a", ot)

	as1 := vm.NewSimpleAS()
	old := p.SetAS(as1)
	require.Nil(t, old)
	require.Equal(t, as1, p.AS())

	as2 := vm.NewSimpleAS()
	old = p.SetAS(as2)
	require.Equal(t, as1, old)
	require.Equal(t, as2, p.AS())
}

func TestSetCwdUpdatesBothVnodeAndPath(t *testing.T) {
	ot := oft.NewTable(16)
	p := NewProcess("a", ot)
	fs := vfs.NewMemFS()
	vn, err := fs.Open("dir", vfs.ORDONLY)
	require.NoError(t, err)

	p.SetCwd(vn, "/dir")
	require.Equal(t, vn, p.Cwd())
	require.Equal(t, "/dir", p.CwdPath())
}

func TestRemThreadRunsExitOnLastThread(t *testing.T) {
	ot := oft.NewTable(16)
	p := NewProcess("a", ot)
	p.SetAS(vm.NewSimpleAS())
	p.AddThread()
	p.AddThread()

	p.RemThread()
	require.Equal(t, Created, p.Phase(), "still alive with one thread left")

	p.RemThread()
	require.Equal(t, Zombie, p.Phase())
	require.Nil(t, p.AS())
}

func TestExitReleasesFDsAndSignalsExitSem(t *testing.T) {
	ot := oft.NewTable(16)
	fs := vfs.NewMemFS()
	fs.WriteFile("a", []byte("x"))

	p := NewProcess("a", ot)
	p.SetAS(vm.NewSimpleAS())
	fd, err := ot.Add(fs, "a", vfs.ORDONLY)
	require.NoError(t, err)
	p.FDs = []*oft.FileDescriptor{fd}

	p.Exit()

	require.EqualValues(t, 0, fd.Handle.Refcount())
	require.Equal(t, Zombie, p.Phase())

	acquired := p.ExitSem.TryAcquire(1)
	require.True(t, acquired, "Exit should have released the exit semaphore")
}
