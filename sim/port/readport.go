package port

type inflight[T any] struct {
	value T
	ready Cycle
}

// ReadPort observes the values written to its bound write port after a fixed
// latency. Internally it is a delay line: a value written at cycle c is only
// visible to Read at cycle c+latency.
type ReadPort[T any] struct {
	portBase

	latency uint32
	source  WriteEndpoint

	queue []inflight[T]
	lost  uint64
}

// NewReadPort creates a read port with the given latency.
func NewReadPort[T any](owner, key string, latency uint32) *ReadPort[T] {
	return &ReadPort[T]{
		portBase: newPortBase(owner, key, TagOf[T]()),
		latency:  latency,
	}
}

// Direction returns Read.
func (p *ReadPort[T]) Direction() Direction {
	return Read
}

// Latency returns the number of cycles between a write and its visibility.
func (p *ReadPort[T]) Latency() uint32 {
	return p.latency
}

// Source returns the write port bound to this port, or nil before
// initialization.
func (p *ReadPort[T]) Source() WriteEndpoint {
	return p.source
}

// Read returns the next value that becomes visible at the given cycle. The
// boolean result is false if no value is ready, which is the normal way a
// stage observes a stall.
func (p *ReadPort[T]) Read(cycle Cycle) (T, bool) {
	p.dropStale(cycle)

	var zero T

	if len(p.queue) == 0 || p.queue[0].ready != cycle {
		if len(p.queue) > 0 {
			p.invoke(p, HookPosPortStall, cycle, nil)
		}

		return zero, false
	}

	v := p.queue[0].value
	p.queue[0] = inflight[T]{}
	p.queue = p.queue[1:]

	p.invoke(p, HookPosPortRead, cycle, v)

	return v, true
}

// IsReady tells if Read would return a value at the given cycle. It does not
// consume anything.
func (p *ReadPort[T]) IsReady(cycle Cycle) bool {
	for _, e := range p.queue {
		if e.ready < cycle {
			continue
		}

		return e.ready == cycle
	}

	return false
}

// Pending returns the number of values in flight, including values that are
// already visible.
func (p *ReadPort[T]) Pending() int {
	return len(p.queue)
}

// Lost returns the number of values that became visible but were never read.
func (p *ReadPort[T]) Lost() uint64 {
	return p.lost
}

func (p *ReadPort[T]) push(v T, cycle Cycle) {
	p.queue = append(p.queue, inflight[T]{
		value: v,
		ready: cycle + Cycle(p.latency),
	})
}

func (p *ReadPort[T]) dropStale(cycle Cycle) {
	for len(p.queue) > 0 && p.queue[0].ready < cycle {
		p.lost++
		p.invoke(p, HookPosPortDrop, cycle, p.queue[0].value)
		p.queue[0] = inflight[T]{}
		p.queue = p.queue[1:]
	}
}

func (p *ReadPort[T]) setSource(w WriteEndpoint) {
	p.source = w
}
