package port

import (
	"github.com/pkg/errors"
)

// WritePort accepts values of type T from its owner and forwards them to the
// bound read ports.
type WritePort[T any] struct {
	portBase

	bandwidth   uint32
	readers     []*ReadPort[T]
	initialized bool

	written    bool
	lastCycle  Cycle
	writeCount uint32
}

// NewWritePort creates a write port that accepts at most bandwidth values per
// cycle. The port must be registered before it can be bound.
func NewWritePort[T any](owner, key string, bandwidth uint32) *WritePort[T] {
	if bandwidth == 0 {
		panic("write port " + key + " must have a bandwidth of at least 1")
	}

	return &WritePort[T]{
		portBase:  newPortBase(owner, key, TagOf[T]()),
		bandwidth: bandwidth,
	}
}

// Direction returns Write.
func (p *WritePort[T]) Direction() Direction {
	return Write
}

// Bandwidth returns the number of values accepted per cycle.
func (p *WritePort[T]) Bandwidth() uint32 {
	return p.bandwidth
}

// Readers returns the read ports bound to this port.
func (p *WritePort[T]) Readers() []ReadEndpoint {
	list := make([]ReadEndpoint, 0, len(p.readers))
	for _, r := range p.readers {
		list = append(list, r)
	}

	return list
}

// Write offers a value at the given cycle. The value becomes readable on every
// bound read port latency cycles later.
func (p *WritePort[T]) Write(v T, cycle Cycle) error {
	if !p.initialized {
		return errors.Wrapf(ErrNotInitialized, "write port %q", p.key)
	}

	if p.written && cycle < p.lastCycle {
		return errors.Wrapf(ErrTimeReversal,
			"write port %q at cycle %d, last write at cycle %d",
			p.key, cycle, p.lastCycle)
	}

	if !p.written || cycle != p.lastCycle {
		p.lastCycle = cycle
		p.writeCount = 0
		p.written = true
	}

	if p.writeCount >= p.bandwidth {
		return errors.Wrapf(ErrBandwidthExceeded,
			"write port %q of %s at cycle %d, bandwidth %d",
			p.key, p.owner, cycle, p.bandwidth)
	}

	p.writeCount++

	for _, r := range p.readers {
		r.push(v, cycle)
	}

	p.invoke(p, HookPosPortWrite, cycle, v)

	return nil
}

// CanWrite tells if one more value can be written at the given cycle.
func (p *WritePort[T]) CanWrite(cycle Cycle) bool {
	if !p.initialized {
		return false
	}

	if !p.written || cycle > p.lastCycle {
		return true
	}

	return cycle == p.lastCycle && p.writeCount < p.bandwidth
}

func (p *WritePort[T]) accepts(r ReadEndpoint) bool {
	_, ok := r.(*ReadPort[T])
	return ok
}

func (p *WritePort[T]) attach(r ReadEndpoint) bool {
	rp, ok := r.(*ReadPort[T])
	if !ok {
		return false
	}

	p.readers = append(p.readers, rp)
	rp.setSource(p)

	return true
}

func (p *WritePort[T]) markInitialized() {
	p.initialized = true
}
