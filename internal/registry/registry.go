// Package registry provides the concurrent name→artifact catalog.
//
// The registry is the only shared mutable structure in the core. It is
// read-optimized: lookups take a read lock, register and deregister take
// the write lock briefly to swap the mapping. No invocation ever holds a
// registry lock for its duration — callers get the descriptor out and
// invoke through its handle afterwards.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/funcmesh/internal/artifact"
)

var (
	// ErrNameConflict is returned when registering a name that already
	// maps to an active artifact.
	ErrNameConflict = errors.New("function name already registered")
	// ErrNotFound is returned when looking up or deregistering an
	// unknown name.
	ErrNotFound = errors.New("function not found")
)

// State tags an entry's lifecycle.
type State int

const (
	// Active entries are visible to lookups.
	Active State = iota
	// Deregistered entries have been removed; the tag exists so a caller
	// still holding the entry can tell why its name no longer resolves.
	Deregistered
)

// entry binds a name to its descriptor. Immutable once Active except for
// the state tag.
type entry struct {
	desc  *artifact.Descriptor
	state State
}

// Registry is a concurrent catalog of registered artifacts.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register atomically inserts a fully-formed descriptor. If the name is
// already active it fails with ErrNameConflict and the caller remains
// responsible for releasing the handle it isolated.
func (r *Registry) Register(desc *artifact.Descriptor) error {
	if desc == nil || desc.Name == "" {
		return errors.New("descriptor must have a name")
	}
	if desc.Handle == nil {
		return fmt.Errorf("descriptor %q has no compiled handle", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[desc.Name]; ok && existing.state == Active {
		return fmt.Errorf("register %q: %w", desc.Name, ErrNameConflict)
	}
	r.entries[desc.Name] = &entry{desc: desc, state: Active}
	return nil
}

// Lookup returns the descriptor for a name. A lookup sees either the
// fully-formed entry or ErrNotFound, never a partial descriptor.
func (r *Registry) Lookup(name string) (*artifact.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || e.state != Active {
		return nil, fmt.Errorf("lookup %q: %w", name, ErrNotFound)
	}
	return e.desc, nil
}

// List returns a sorted snapshot of the registered names. It does not
// block concurrent registrations beyond the copy itself.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if e.state == Active {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Deregister removes a name and closes its isolation namespace. Teardown
// of a handle with in-flight invocations is deferred by the namespace's
// reference count, so those calls complete undisturbed. A register racing
// a deregister on the same name is serialized by the registry lock.
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok || e.state != Active {
		r.mu.Unlock()
		return fmt.Errorf("deregister %q: %w", name, ErrNotFound)
	}
	e.state = Deregistered
	delete(r.entries, name)
	r.mu.Unlock()

	// Close outside the lock: teardown is cheap but there is no reason to
	// serialize lookups behind it.
	if err := e.desc.Handle.Close(); err != nil {
		return fmt.Errorf("teardown of %q: %w", name, err)
	}
	return nil
}
