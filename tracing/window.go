package tracing

import "fmt"

// A Window is the inclusive range of cycles in which new instructions are
// traced. Both bounds are optional; a missing bound is unbounded.
type Window struct {
	first, last       uint64
	hasFirst, hasLast bool
}

// Unbounded returns a window that contains every cycle.
func Unbounded() Window {
	return Window{}
}

// From returns a window that starts at the given cycle.
func From(cycle uint64) Window {
	return Unbounded().From(cycle)
}

// Until returns a window that ends at the given cycle.
func Until(cycle uint64) Window {
	return Unbounded().Until(cycle)
}

// From sets the first traced cycle.
func (w Window) From(cycle uint64) Window {
	w.first = cycle
	w.hasFirst = true

	return w
}

// Until sets the last traced cycle.
func (w Window) Until(cycle uint64) Window {
	w.last = cycle
	w.hasLast = true

	return w
}

// First returns the first traced cycle, if bounded.
func (w Window) First() (uint64, bool) {
	return w.first, w.hasFirst
}

// Last returns the last traced cycle, if bounded.
func (w Window) Last() (uint64, bool) {
	return w.last, w.hasLast
}

// Contains tells if the cycle is inside the window.
func (w Window) Contains(cycle uint64) bool {
	if w.hasFirst && cycle < w.first {
		return false
	}

	if w.hasLast && cycle > w.last {
		return false
	}

	return true
}

func (w Window) String() string {
	first, last := "-inf", "+inf"

	if w.hasFirst {
		first = fmt.Sprint(w.first)
	}

	if w.hasLast {
		last = fmt.Sprint(w.last)
	}

	return "[" + first + ", " + last + "]"
}
