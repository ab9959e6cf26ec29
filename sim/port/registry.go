package port

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// A Registry records every declared port by key and binds read ports to the
// write port of the same key. Ports are registered while the module tree is
// built, and Initialize is called once before the first cycle.
type Registry struct {
	writers     map[string]WriteEndpoint
	readers     map[string][]ReadEndpoint
	initialized bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		writers: make(map[string]WriteEndpoint),
		readers: make(map[string][]ReadEndpoint),
	}
}

// RegisterWrite records a write port. A key can only have one write port.
func (r *Registry) RegisterWrite(p WriteEndpoint) error {
	if r.initialized {
		return errors.Wrapf(ErrRegistryClosed, "write port %q", p.Key())
	}

	if existing, found := r.writers[p.Key()]; found {
		return &ConfigurationError{
			Kind: DuplicateKey,
			Key:  p.Key(),
			Detail: fmt.Sprintf("write port declared by %s and %s",
				existing.Owner(), p.Owner()),
		}
	}

	r.writers[p.Key()] = p

	return nil
}

// RegisterRead records a read port. Several modules may read the same key,
// but a module can declare a given read key only once.
func (r *Registry) RegisterRead(p ReadEndpoint) error {
	if r.initialized {
		return errors.Wrapf(ErrRegistryClosed, "read port %q", p.Key())
	}

	for _, existing := range r.readers[p.Key()] {
		if existing == p || existing.Owner() == p.Owner() {
			return &ConfigurationError{
				Kind:   DuplicateKey,
				Key:    p.Key(),
				Detail: "read port declared twice by " + p.Owner(),
			}
		}
	}

	r.readers[p.Key()] = append(r.readers[p.Key()], p)

	return nil
}

// Initialize binds every read port to the write port of the same key. All
// problems are reported together and, if there is any, nothing is bound.
func (r *Registry) Initialize() error {
	if r.initialized {
		return ErrAlreadyInitialized
	}

	errs := r.check()
	if len(errs) > 0 {
		return errors.Wrap(errs, "port initialization failed")
	}

	for _, key := range sortedKeys(r.readers) {
		w := r.writers[key]
		for _, rp := range r.readers[key] {
			if !w.attach(rp) {
				panic("type tags match but port types do not, key " + key)
			}
		}
	}

	for _, w := range r.writers {
		w.markInitialized()
	}

	r.initialized = true

	return nil
}

func (r *Registry) check() ConfigurationErrors {
	var errs ConfigurationErrors

	for _, key := range sortedKeys(r.readers) {
		readers := r.readers[key]

		w, found := r.writers[key]
		if !found {
			errs = append(errs, &ConfigurationError{
				Kind:   UnboundPort,
				Key:    key,
				Detail: "no write port for readers " + ownerList(readers),
			})

			continue
		}

		for _, rp := range readers {
			if rp.TypeTag() != w.TypeTag() || !w.accepts(rp) {
				errs = append(errs, &ConfigurationError{
					Kind: TypeMismatch,
					Key:  key,
					Detail: fmt.Sprintf("%s writes %s, %s reads %s",
						w.Owner(), w.TypeTag(), rp.Owner(), rp.TypeTag()),
				})
			}
		}
	}

	return errs
}

// Initialized tells if Initialize has succeeded.
func (r *Registry) Initialized() bool {
	return r.initialized
}

// Dump returns the resolved bindings by key. It is empty until the registry
// is initialized.
func (r *Registry) Dump() map[string]string {
	result := make(map[string]string)
	if !r.initialized {
		return result
	}

	for key, w := range r.writers {
		readers := w.Readers()

		desc := make([]string, 0, len(readers))
		for _, rp := range readers {
			desc = append(desc, fmt.Sprintf("%s[lat=%d]", rp.Owner(), rp.Latency()))
		}

		target := "(none)"
		if len(desc) > 0 {
			target = strings.Join(desc, ", ")
		}

		result[key] = fmt.Sprintf("%s[bw=%d] -> %s", w.Owner(), w.Bandwidth(), target)
	}

	return result
}

// Ports returns all registered ports, sorted by key, write ports first.
func (r *Registry) Ports() []Port {
	list := make([]Port, 0, len(r.writers)+len(r.readers))

	keys := make(map[string]bool)
	for k := range r.writers {
		keys[k] = true
	}

	for k := range r.readers {
		keys[k] = true
	}

	for _, k := range sortedKeys(keys) {
		if w, found := r.writers[k]; found {
			list = append(list, w)
		}

		for _, rp := range r.readers[k] {
			list = append(list, rp)
		}
	}

	return list
}

func ownerList(readers []ReadEndpoint) string {
	owners := make([]string, 0, len(readers))
	for _, rp := range readers {
		owners = append(owners, rp.Owner())
	}

	return strings.Join(owners, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
