// Package module provides the tree of simulated hardware blocks. The tree is
// stored as an arena owned by the Root; a Module is a lightweight handle into
// that arena. Nodes are only ever appended, so the tree is finite and acyclic:
// every node index is larger than the index of its parent.
package module

import (
	"io"
	"os"
	"sort"

	"github.com/sarchlab/pipesim/sim/naming"
	"github.com/sarchlab/pipesim/sim/port"
	"github.com/sarchlab/pipesim/tracing"
)

// NodeID addresses a node in the arena.
type NodeID int

// NoParent is the parent of the root node.
const NoParent NodeID = -1

// Kind tells the root apart from the interior nodes.
type Kind int

// The node kinds.
const (
	KindInterior Kind = iota
	KindRoot
)

type node struct {
	kind       Kind
	name       string
	parent     NodeID
	children   []NodeID
	writePorts []port.Port
	readPorts  []port.Port
	log        *Log

	// Only set on the root node.
	registry *port.Registry
	recorder *tracing.Recorder
}

type arena struct {
	nodes  []*node
	names  map[string]NodeID
	logOut io.Writer
}

func (a *arena) add(kind Kind, parent NodeID, name string) NodeID {
	naming.NameMustBeValid(name)

	if _, found := a.names[name]; found {
		panic("module " + name + " already exists")
	}

	id := NodeID(len(a.nodes))
	a.nodes = append(a.nodes, &node{
		kind:   kind,
		name:   name,
		parent: parent,
	})
	a.names[name] = id

	if parent != NoParent {
		p := a.nodes[parent]
		p.children = append(p.children, id)
	}

	a.nodes[id].log = newLog(a.logOut, Module{arena: a, id: id}.Path())

	return id
}

// Module is a handle to a node of the module tree. Simulated blocks embed it
// to get a name, a log and port factories.
type Module struct {
	arena *arena
	id    NodeID
}

// New creates a module under the given parent. The new module is added to the
// child list of the parent right away. New panics if the name is not valid or
// is already used somewhere in the tree.
func New(parent Module, name string) Module {
	id := parent.arena.add(KindInterior, parent.id, name)
	return Module{arena: parent.arena, id: id}
}

func (m Module) node() *node {
	return m.arena.nodes[m.id]
}

// ID returns the index of the module in the tree.
func (m Module) ID() NodeID {
	return m.id
}

// Name returns the name of the module.
func (m Module) Name() string {
	return m.node().name
}

// Kind returns whether the module is the root or an interior node.
func (m Module) Kind() Kind {
	return m.node().kind
}

// IsRoot tells if the module is the root of the tree.
func (m Module) IsRoot() bool {
	return m.node().kind == KindRoot
}

// Parent returns the parent module. The boolean is false for the root.
func (m Module) Parent() (Module, bool) {
	p := m.node().parent
	if p == NoParent {
		return Module{}, false
	}

	return Module{arena: m.arena, id: p}, true
}

// Children returns the direct children in construction order.
func (m Module) Children() []Module {
	children := m.node().children

	list := make([]Module, 0, len(children))
	for _, c := range children {
		list = append(list, Module{arena: m.arena, id: c})
	}

	return list
}

// Path returns the names from the root to the module, joined by dots.
func (m Module) Path() string {
	n := m.node()
	if n.parent == NoParent {
		return n.name
	}

	parent, _ := m.Parent()

	return naming.BuildName(parent.Path(), n.name)
}

// Log returns the log of the module.
func (m Module) Log() *Log {
	return m.node().log
}

func (m Module) root() *node {
	n := m.node()
	for n.kind != KindRoot {
		n = m.arena.nodes[n.parent]
	}

	return n
}

// Registry returns the port registry of the tree, which belongs to the root.
func (m Module) Registry() *port.Registry {
	return m.root().registry
}

// Recorder returns the trace recorder of the tree, which belongs to the root.
func (m Module) Recorder() *tracing.Recorder {
	return m.root().recorder
}

// WritePorts returns the write ports declared by the module.
func (m Module) WritePorts() []port.Port {
	return m.node().writePorts
}

// ReadPorts returns the read ports declared by the module.
func (m Module) ReadPorts() []port.Port {
	return m.node().readPorts
}

// Ports returns all the ports declared by the module, sorted by key.
func (m Module) Ports() []port.Port {
	n := m.node()

	list := make([]port.Port, 0, len(n.writePorts)+len(n.readPorts))
	list = append(list, n.writePorts...)
	list = append(list, n.readPorts...)

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Key() < list[j].Key()
	})

	return list
}

// LogPortTraffic makes the module log every value crossing its ports. The
// lines are only printed while the module log is enabled.
func (m Module) LogPortTraffic() {
	logger := port.NewTrafficLogger(m.Log())
	for _, p := range m.Ports() {
		p.AcceptHook(logger)
	}
}

// MakeWritePort declares a write port owned by m and registers it in the
// registry of the tree.
func MakeWritePort[T any](
	m Module,
	key string,
	bandwidth uint32,
) (*port.WritePort[T], error) {
	p := port.NewWritePort[T](m.Name(), key, bandwidth)

	if err := m.Registry().RegisterWrite(p); err != nil {
		return nil, err
	}

	n := m.node()
	n.writePorts = append(n.writePorts, p)

	return p, nil
}

// MakeReadPort declares a read port owned by m and registers it in the
// registry of the tree.
func MakeReadPort[T any](
	m Module,
	key string,
	latency uint32,
) (*port.ReadPort[T], error) {
	p := port.NewReadPort[T](m.Name(), key, latency)

	if err := m.Registry().RegisterRead(p); err != nil {
		return nil, err
	}

	n := m.node()
	n.readPorts = append(n.readPorts, p)

	return p, nil
}

type rootConfig struct {
	logOut   io.Writer
	recorder *tracing.Recorder
}

// A RootOption configures a Root.
type RootOption func(*rootConfig)

// WithLogOutput sets where module logs are written. The default is stdout.
func WithLogOutput(w io.Writer) RootOption {
	return func(c *rootConfig) {
		c.logOut = w
	}
}

// WithRecorder sets the trace recorder shared by the tree.
func WithRecorder(rec *tracing.Recorder) RootOption {
	return func(c *rootConfig) {
		c.recorder = rec
	}
}

// Root is the top of the module tree. It owns the port registry and the trace
// recorder, and provides the entry points used by the driver.
type Root struct {
	Module
}

// NewRoot creates the root of a new module tree.
func NewRoot(name string, opts ...RootOption) *Root {
	cfg := rootConfig{logOut: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.recorder == nil {
		cfg.recorder = tracing.NewRecorder()
	}

	a := &arena{
		names:  make(map[string]NodeID),
		logOut: cfg.logOut,
	}

	r := &Root{Module: Module{arena: a}}
	r.id = a.add(KindRoot, NoParent, name)

	n := r.node()
	n.registry = port.NewRegistry()
	n.recorder = cfg.recorder

	return r
}

// InitPorts binds all the ports declared in the tree. It must be called once,
// after the tree is built and before the first cycle.
func (r *Root) InitPorts() error {
	return r.Registry().Initialize()
}

// Lookup finds a module by name.
func (r *Root) Lookup(name string) (Module, bool) {
	id, found := r.arena.names[name]
	if !found {
		return Module{}, false
	}

	return Module{arena: r.arena, id: id}, true
}

// Modules returns every module of the tree in pre-order.
func (r *Root) Modules() []Module {
	list := make([]Module, 0, len(r.arena.nodes))

	var visit func(m Module)
	visit = func(m Module) {
		list = append(list, m)
		for _, c := range m.Children() {
			visit(c)
		}
	}
	visit(r.Module)

	return list
}

// LogPortTraffic turns on port traffic logging for every module of the tree.
func (r *Root) LogPortTraffic() {
	for _, m := range r.Modules() {
		m.LogPortTraffic()
	}
}
