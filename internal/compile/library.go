package compile

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty/function"
)

// Module is the interface that builtin function packages implement to be
// registered into a Library.
type Module interface {
	Register(lib *Library)
}

// Library is the base function namespace artifacts are compiled against.
// Each compilation copies the table into the artifact's own namespace, so
// registrations after a compile never reach already-compiled artifacts.
type Library struct {
	mu    sync.RWMutex
	funcs map[string]function.Function
}

// NewLibrary creates an empty function library.
func NewLibrary() *Library {
	return &Library{funcs: make(map[string]function.Function)}
}

// Register adds a named function. Duplicate registration is a programmer
// error at startup and panics.
func (l *Library) Register(name string, fn function.Function) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.funcs[name]; exists {
		panic(fmt.Sprintf("library function with name '%s' already registered", name))
	}
	slog.Debug("Registering library function.", "name", name)
	l.funcs[name] = fn
}

// Has reports whether a function name is registered.
func (l *Library) Has(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.funcs[name]
	return ok
}

// Functions returns a copy of the function table.
func (l *Library) Functions() map[string]function.Function {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]function.Function, len(l.funcs))
	for name, fn := range l.funcs {
		out[name] = fn
	}
	return out
}

// Names returns the sorted registered function names.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.funcs))
	for name := range l.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
