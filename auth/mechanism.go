package auth

import (
	"sort"
	"strings"

	amqperrors "github.com/maxpert/amqp-peer/errors"
	"github.com/maxpert/amqp-peer/interfaces"
	"github.com/maxpert/amqp-peer/protocol"
)

// Mechanism represents a SASL authentication mechanism
type Mechanism interface {
	// Name returns the mechanism name (e.g., "PLAIN", "ANONYMOUS")
	Name() string

	// Authenticate checks the initial response carried by sasl-init
	Authenticate(response []byte, authenticator interfaces.Authenticator) (*interfaces.User, error)
}

// Registry manages available authentication mechanisms
type Registry struct {
	mechanisms map[string]Mechanism
}

// NewRegistry creates a new mechanism registry
func NewRegistry() *Registry {
	return &Registry{
		mechanisms: make(map[string]Mechanism),
	}
}

// NewRegistryFor builds a registry holding the named mechanisms, in the
// form they appear in configuration.
func NewRegistryFor(names []string) (*Registry, error) {
	registry := NewRegistry()
	for _, name := range names {
		switch strings.ToUpper(name) {
		case "PLAIN":
			registry.Register(&PlainMechanism{})
		case "ANONYMOUS":
			registry.Register(&AnonymousMechanism{})
		default:
			return nil, amqperrors.NewUnsupportedMechanism(name)
		}
	}
	return registry, nil
}

// Register adds a mechanism to the registry
func (r *Registry) Register(mechanism Mechanism) {
	r.mechanisms[mechanism.Name()] = mechanism
}

// Get retrieves a mechanism by name
func (r *Registry) Get(name string) (Mechanism, error) {
	mechanism, exists := r.mechanisms[name]
	if !exists {
		return nil, amqperrors.NewUnsupportedMechanism(name)
	}
	return mechanism, nil
}

// List returns all registered mechanism names in sorted order
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.mechanisms))
	for name := range r.mechanisms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Symbols returns the registered names as the symbol array a
// sasl-mechanisms frame carries, sorted.
func (r *Registry) Symbols() []protocol.Symbol {
	names := r.List()
	symbols := make([]protocol.Symbol, len(names))
	for i, name := range names {
		symbols[i] = protocol.Symbol(name)
	}
	return symbols
}

// String returns a space-separated list of mechanism names
func (r *Registry) String() string {
	return strings.Join(r.List(), " ")
}

// DefaultRegistry returns a registry with PLAIN and ANONYMOUS mechanisms
func DefaultRegistry() *Registry {
	registry, _ := NewRegistryFor([]string{"PLAIN", "ANONYMOUS"})
	return registry
}
