package port

import (
	"github.com/sarchlab/pipesim/sim/hooking"
)

// A Printer is anything that prints formatted lines, such as *log.Logger or a
// module log.
type Printer interface {
	Printf(format string, v ...any)
}

// TrafficLogger is a hook that logs the values crossing a port.
type TrafficLogger struct {
	out Printer
}

// NewTrafficLogger returns a TrafficLogger that writes into out.
func NewTrafficLogger(out Printer) *TrafficLogger {
	return &TrafficLogger{out: out}
}

// Func writes one line per port operation.
func (h *TrafficLogger) Func(ctx hooking.HookCtx) {
	p, ok := ctx.Domain.(Port)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosPortStall:
		h.out.Printf("%d,%s,%s,%s\n", ctx.Cycle, ctx.Pos.Name, p.Owner(), p.Key())
	default:
		h.out.Printf("%d,%s,%s,%s,%v\n",
			ctx.Cycle, ctx.Pos.Name, p.Owner(), p.Key(), ctx.Item)
	}
}
