package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarchlab/pipesim/sim/hooking"
	"github.com/sarchlab/pipesim/sim/port"
)

// PortMetrics is a hook that counts the traffic of the ports it is attached
// to. The counters are labeled by port key, owner and operation.
type PortMetrics struct {
	traffic *prometheus.CounterVec
}

// NewPortMetrics creates the counters and registers them into reg.
func NewPortMetrics(reg prometheus.Registerer) *PortMetrics {
	m := &PortMetrics{
		traffic: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipesim",
			Name:      "port_operations_total",
			Help:      "Number of values written, read, stalled on or dropped by ports",
		}, []string{"key", "owner", "op"}),
	}

	reg.MustRegister(m.traffic)

	return m
}

// Attach makes the metrics observe the given ports.
func (m *PortMetrics) Attach(ports []port.Port) {
	for _, p := range ports {
		p.AcceptHook(m)
	}
}

// Counter returns the counter of one operation on one port.
func (m *PortMetrics) Counter(key, owner, op string) prometheus.Counter {
	return m.traffic.WithLabelValues(key, owner, op)
}

// Func counts one port operation.
func (m *PortMetrics) Func(ctx hooking.HookCtx) {
	p, ok := ctx.Domain.(port.Port)
	if !ok {
		return
	}

	op := opName(ctx.Pos)
	if op == "" {
		return
	}

	m.traffic.WithLabelValues(p.Key(), p.Owner(), op).Inc()
}

func opName(pos *hooking.HookPos) string {
	switch pos {
	case port.HookPosPortWrite:
		return "write"
	case port.HookPosPortRead:
		return "read"
	case port.HookPosPortStall:
		return "stall"
	case port.HookPosPortDrop:
		return "drop"
	default:
		return ""
	}
}
