// Package port provides the typed, named endpoints that modules use to
// exchange values. A WritePort accepts a bounded number of values per cycle
// and a ReadPort observes them a fixed number of cycles later. Ports are
// declared independently and bound by identical string keys when the
// Registry is initialized.
package port

import (
	"reflect"
	"strconv"

	"github.com/sarchlab/pipesim/sim/hooking"
)

// Cycle is a simulated clock cycle.
type Cycle uint64

// Direction tells whether a port pushes or pulls values.
type Direction int

// The two directions of a port.
const (
	Write Direction = iota
	Read
)

func (d Direction) String() string {
	switch d {
	case Write:
		return "write"
	case Read:
		return "read"
	default:
		return "unknown"
	}
}

// A TypeTag identifies the type of the values carried by a port. Two ports can
// only be bound if their tags are equal.
type TypeTag string

// TagOf returns the TypeTag of T. Named types are qualified with their full
// package path, also when they appear inside pointers, slices, arrays, maps
// and channels.
func TagOf[T any]() TypeTag {
	return TypeTag(qualifiedName(reflect.TypeOf((*T)(nil)).Elem()))
}

func qualifiedName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}

	switch t.Kind() {
	case reflect.Pointer:
		return "*" + qualifiedName(t.Elem())
	case reflect.Slice:
		return "[]" + qualifiedName(t.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + qualifiedName(t.Elem())
	case reflect.Map:
		return "map[" + qualifiedName(t.Key()) + "]" + qualifiedName(t.Elem())
	case reflect.Chan:
		switch t.ChanDir() {
		case reflect.RecvDir:
			return "<-chan " + qualifiedName(t.Elem())
		case reflect.SendDir:
			return "chan<- " + qualifiedName(t.Elem())
		default:
			return "chan " + qualifiedName(t.Elem())
		}
	default:
		return t.String()
	}
}

// HookPosPortWrite marks when a value is accepted by a write port.
var HookPosPortWrite = &hooking.HookPos{Name: "Port Write"}

// HookPosPortRead marks when a value is returned by a read port.
var HookPosPortRead = &hooking.HookPos{Name: "Port Read"}

// HookPosPortStall marks a read that found no value for the current cycle
// while values are still in flight.
var HookPosPortStall = &hooking.HookPos{Name: "Port Stall"}

// HookPosPortDrop marks a value that became visible but was never read.
var HookPosPortDrop = &hooking.HookPos{Name: "Port Drop"}

// A Port is the type-erased view of a port, used for registration and
// topology export.
type Port interface {
	hooking.Hookable

	// Key is the string that binds a read port to a write port.
	Key() string

	// Direction tells if the port is a write or a read port.
	Direction() Direction

	// TypeTag identifies the carried data type.
	TypeTag() TypeTag

	// Owner is the name of the module that declared the port.
	Owner() string
}

// A WriteEndpoint is a write port that the Registry can bind.
type WriteEndpoint interface {
	Port

	// Bandwidth is the maximum number of values accepted per cycle.
	Bandwidth() uint32

	// Readers returns the read ports bound to this port.
	Readers() []ReadEndpoint

	accepts(r ReadEndpoint) bool
	attach(r ReadEndpoint) bool
	markInitialized()
}

// A ReadEndpoint is a read port that the Registry can bind.
type ReadEndpoint interface {
	Port

	// Latency is the number of cycles between a write and its visibility.
	Latency() uint32

	// Source returns the write port this port is bound to, or nil.
	Source() WriteEndpoint

	setSource(w WriteEndpoint)
}

type portBase struct {
	hooking.HookableBase

	key   string
	owner string
	tag   TypeTag
}

func newPortBase(owner, key string, tag TypeTag) portBase {
	if key == "" {
		panic("port key must not be empty")
	}

	return portBase{key: key, owner: owner, tag: tag}
}

// Key returns the binding key of the port.
func (p *portBase) Key() string {
	return p.key
}

// Owner returns the name of the module that declared the port.
func (p *portBase) Owner() string {
	return p.owner
}

// TypeTag returns the tag of the carried type.
func (p *portBase) TypeTag() TypeTag {
	return p.tag
}

func (p *portBase) invoke(domain hooking.Hookable, pos *hooking.HookPos, cycle Cycle, item any) {
	if p.NumHooks() == 0 {
		return
	}

	p.InvokeHook(hooking.HookCtx{
		Domain: domain,
		Pos:    pos,
		Cycle:  uint64(cycle),
		Item:   item,
	})
}
