// Package metrics instruments the kernel with Prometheus client_golang,
// grounded on gcsfuse's go.mod (github.com/prometheus/client_golang,
// contrib.go.opencensus.io/exporter/prometheus). gcsfuse exports gauges
// and counters for its caching layer; here the same shape tracks table
// population, syscall outcomes, and waitpid blocking.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the kernel registers. A nil *Metrics is
// valid everywhere it's consumed (all methods are safe on nil receivers)
// so tests can run without standing up a registry.
type Metrics struct {
	TableNum *prometheus.GaugeVec
	Syscalls *prometheus.CounterVec
	WaitLatency prometheus.Histogram
}

// New registers a fresh set of collectors against reg and returns the
// handle used to update them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TableNum: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kernel",
			Name:      "table_num",
			Help:      "Current population of a sparse Table (oft or pt).",
		}, []string{"table"}),
		Syscalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernel",
			Name:      "syscalls_total",
			Help:      "Syscalls by name and outcome.",
		}, []string{"syscall", "outcome"}),
		WaitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kernel",
			Name:      "waitpid_block_seconds",
			Help:      "Time waitpid spent blocked on a child's exit semaphore.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.TableNum, m.Syscalls, m.WaitLatency)
	return m
}

func (m *Metrics) SetTableNum(table string, n float64) {
	if m == nil {
		return
	}
	m.TableNum.WithLabelValues(table).Set(n)
}

func (m *Metrics) ObserveSyscall(name, outcome string) {
	if m == nil {
		return
	}
	m.Syscalls.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) ObserveWaitSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.WaitLatency.Observe(seconds)
}
