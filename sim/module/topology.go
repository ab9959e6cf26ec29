package module

import (
	"encoding/json"
	"os"
)

// PortKeys lists the keys of the ports of a module. Values are always empty.
type PortKeys map[string]string

// ModuleEntry lists the ports declared by a module.
type ModuleEntry struct {
	WritePorts PortKeys `json:"write_ports"`
	ReadPorts  PortKeys `json:"read_ports"`
}

// ModuleMap mirrors the nesting of the modules by name.
type ModuleMap map[string]ModuleMap

// Topology is the structural export of a module tree.
type Topology struct {
	Modules   map[string]ModuleEntry `json:"modules"`
	PortMap   map[string]string      `json:"portmap"`
	ModuleMap ModuleMap              `json:"modulemap"`
}

// Topology exports the subtree rooted at m. The port map always describes the
// whole tree, as it comes from the registry of the root.
func (m Module) Topology() Topology {
	t := Topology{
		Modules:   make(map[string]ModuleEntry),
		ModuleMap: make(ModuleMap),
		PortMap:   m.Registry().Dump(),
	}

	m.dumpInto(&t, t.ModuleMap)

	return t
}

func (m Module) dumpInto(t *Topology, siblings ModuleMap) {
	n := m.node()

	entry := ModuleEntry{
		WritePorts: make(PortKeys),
		ReadPorts:  make(PortKeys),
	}

	for _, p := range n.writePorts {
		entry.WritePorts[p.Key()] = ""
	}

	for _, p := range n.readPorts {
		entry.ReadPorts[p.Key()] = ""
	}

	t.Modules[n.name] = entry

	children := make(ModuleMap)
	siblings[n.name] = children

	for _, c := range m.Children() {
		c.dumpInto(t, children)
	}
}

// DumpTopology writes the topology of the tree as JSON into filename. An
// empty filename disables the dump. The tree is not modified, so the dump can
// be taken any number of times.
func (r *Root) DumpTopology(filename string) error {
	if filename == "" {
		return nil
	}

	data, err := json.MarshalIndent(r.Topology(), "", "    ")
	if err != nil {
		return err
	}

	err = os.WriteFile(filename, append(data, '\n'), 0o644)
	if err != nil {
		return err
	}

	r.Log().Println()
	r.Log().Println("Module topology dumped into " + filename)

	return nil
}
