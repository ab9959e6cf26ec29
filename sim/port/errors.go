package port

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Usage faults reported by ports at simulation time.
var (
	// ErrBandwidthExceeded is returned when a write port receives more values
	// in one cycle than its declared bandwidth. It is a fault of the caller.
	ErrBandwidthExceeded = errors.New("port bandwidth exceeded")

	// ErrNotInitialized is returned when a port is used before the registry
	// has been initialized.
	ErrNotInitialized = errors.New("port is not initialized")

	// ErrTimeReversal is returned when a write targets a cycle earlier than a
	// previous write on the same port.
	ErrTimeReversal = errors.New("port written in the past")
)

// Registry lifecycle faults.
var (
	ErrAlreadyInitialized = errors.New("port registry already initialized")
	ErrRegistryClosed     = errors.New("port registry does not accept ports after initialization")
)

// Configuration error kinds, matched with errors.Is.
var (
	ErrDuplicateKey = errors.New("duplicate port key")
	ErrUnboundPort  = errors.New("unbound port")
	ErrTypeMismatch = errors.New("port type mismatch")
)

// ErrorKind classifies a ConfigurationError.
type ErrorKind int

// The kinds of configuration errors.
const (
	DuplicateKey ErrorKind = iota
	UnboundPort
	TypeMismatch
)

func (k ErrorKind) sentinel() error {
	switch k {
	case DuplicateKey:
		return ErrDuplicateKey
	case UnboundPort:
		return ErrUnboundPort
	case TypeMismatch:
		return ErrTypeMismatch
	default:
		panic(fmt.Sprintf("unknown error kind %d", int(k)))
	}
}

func (k ErrorKind) String() string {
	switch k {
	case DuplicateKey:
		return "DuplicateKey"
	case UnboundPort:
		return "UnboundPort"
	case TypeMismatch:
		return "TypeMismatch"
	default:
		return "Unknown"
	}
}

// A ConfigurationError is a problem in the declared port topology. It is
// detected during registration or initialization, before any cycle runs.
type ConfigurationError struct {
	Kind   ErrorKind
	Key    string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: key %q: %s", e.Kind.sentinel(), e.Key, e.Detail)
}

// Unwrap returns the sentinel error of the kind.
func (e *ConfigurationError) Unwrap() error {
	return e.Kind.sentinel()
}

// ConfigurationErrors collects every problem found by one initialization.
type ConfigurationErrors []*ConfigurationError

func (errs ConfigurationErrors) Error() string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}

	return strings.Join(msgs, "; ")
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (errs ConfigurationErrors) Unwrap() []error {
	list := make([]error, 0, len(errs))
	for _, e := range errs {
		list = append(list, e)
	}

	return list
}
