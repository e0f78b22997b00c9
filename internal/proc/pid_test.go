package proc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/justanotherdot/kernel161/internal/kerr"
	"github.com/justanotherdot/kernel161/internal/oft"
)

func TestSetPIDAssignsFromPIDMin(t *testing.T) {
	pt := NewTable(1, 10, 100)
	ot := oft.NewTable(16)

	p := NewProcess("a", ot)
	require.NoError(t, pt.SetPID(p))
	require.EqualValues(t, 1, p.PID)
	require.Equal(t, Alive, p.Phase())
}

func TestSetPIDIsCircularAfterDrainAndRefill(t *testing.T) {
	pt := NewTable(1, 3, 100)
	ot := oft.NewTable(16)

	var ps []*Process
	for i := 0; i < 3; i++ {
		p := NewProcess("a", ot)
		require.NoError(t, pt.SetPID(p))
		ps = append(ps, p)
	}
	// Table is full [1,3]; a fourth allocation must fail EMPROC... but
	// the table itself (sized PIDMax+1) isn't full, only the [1,3] PID
	// range SetFirst scans from pidRef=4 onward, which is out of range
	// and wraps once. With no free PID in [1,3], SetPID fails.
	p4 := NewProcess("a", ot)
	err := pt.SetPID(p4)
	require.ErrorIs(t, err, kerr.EMPROC)

	// Free PID 2 and confirm the next allocation reuses it.
	pt.Destroy(ps[1])
	p5 := NewProcess("a", ot)
	require.NoError(t, pt.SetPID(p5))
	require.EqualValues(t, 2, p5.PID)
}

func TestSetPIDFailsWhenProcMaxReached(t *testing.T) {
	pt := NewTable(1, 1000, 2)
	ot := oft.NewTable(16)

	p1 := NewProcess("a", ot)
	require.NoError(t, pt.SetPID(p1))
	p2 := NewProcess("a", ot)
	require.NoError(t, pt.SetPID(p2))

	p3 := NewProcess("a", ot)
	err := pt.SetPID(p3)
	require.ErrorIs(t, err, kerr.EMPROC)
	require.EqualValues(t, 2, pt.NumProcs())
}

func TestSetPIDUniqueUnderConcurrency(t *testing.T) {
	const n = 500
	pt := NewTable(1, n, uint32(n)+1)
	ot := oft.NewTable(16)

	seen := make(chan int32, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			p := NewProcess("a", ot)
			if err := pt.SetPID(p); err != nil {
				return err
			}
			seen <- p.PID
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(seen)

	unique := make(map[int32]bool)
	for pid := range seen {
		require.False(t, unique[pid], "PID %d assigned twice", pid)
		unique[pid] = true
	}
	require.Len(t, unique, n)
}

func TestDestroyIsIdempotent(t *testing.T) {
	pt := NewTable(1, 10, 100)
	ot := oft.NewTable(16)

	p := NewProcess("a", ot)
	require.NoError(t, pt.SetPID(p))
	require.EqualValues(t, 1, pt.NumProcs())

	pt.Destroy(p)
	require.EqualValues(t, 0, pt.NumProcs())

	// A second Destroy on an already-removed process must not
	// double-decrement procNum.
	pt.Destroy(p)
	require.EqualValues(t, 0, pt.NumProcs())
}
