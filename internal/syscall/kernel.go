// Package syscall implements the file and process syscall surface of
// spec §4.5/§4.6/§6, composing internal/table, internal/oft, and
// internal/proc. Named syscall (not os/syscall) deliberately: this is the
// kernel side of the boundary the real os/syscall package crosses.
package syscall

import (
	"github.com/justanotherdot/kernel161/internal/config"
	"github.com/justanotherdot/kernel161/internal/metrics"
	"github.com/justanotherdot/kernel161/internal/oft"
	"github.com/justanotherdot/kernel161/internal/proc"
	"github.com/justanotherdot/kernel161/internal/vfs"
)

// Kernel bundles the singletons the syscall layer composes: the
// open-file table, the process table, the VFS namespace, the configured
// limits, and (optionally) metrics. Spec §9 calls the OFT, PT, and PID
// cursor "process-wide singletons initialised by explicit bootstrap
// routines"; Kernel is that bootstrap's result.
type Kernel struct {
	OFT     *oft.Table
	PT      *proc.Table
	FS      vfs.FS
	Limits  config.Limits
	Metrics *metrics.Metrics
}

// New builds a Kernel from limits, wiring the OFT and PT to the given
// limits' capacities.
func New(limits config.Limits, fs vfs.FS, m *metrics.Metrics) *Kernel {
	return &Kernel{
		OFT:     oft.NewTable(limits.OpenFileMax),
		PT:      proc.NewTable(limits.PIDMin, limits.PIDMax, limits.ProcMax),
		FS:      fs,
		Limits:  limits,
		Metrics: m,
	}
}

func (k *Kernel) observe(name string, err error) {
	if k.Metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "errno"
	}
	k.Metrics.ObserveSyscall(name, outcome)
	k.Metrics.SetTableNum("oft", float64(k.OFT.NumOpen()))
	k.Metrics.SetTableNum("pt", float64(k.PT.NumProcs()))
}
