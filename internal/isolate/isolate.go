// Package isolate implements the execution isolation boundary. Every
// compiled artifact is wrapped in its own Namespace, which owns a private
// copy of the function table used during evaluation. The table is fixed at
// Wrap time and never mutated afterwards, so evaluation reads it without
// locking, and tearing one namespace down never affects another.
package isolate

import (
	"errors"
	"sync"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// ErrReleased is returned when a namespace is used after Close, or closed twice.
var ErrReleased = errors.New("artifact released")

// Callable is the raw invocable produced by the compiler. It receives the
// per-call variable scope and the namespace's own function table.
type Callable func(vars map[string]cty.Value, funcs map[string]function.Function) (cty.Value, error)

// Namespace couples a compiled callable with its private function table and
// a reference count. Teardown requested by Close is deferred until the last
// outstanding acquisition is released, so an in-flight invocation is never
// corrupted by a concurrent deregistration.
type Namespace struct {
	mu     sync.Mutex
	fn     Callable
	funcs  map[string]function.Function
	refs   int
	closed bool
}

// Wrap builds a namespace around a raw callable. The function table is
// copied, so later mutations of the caller's map cannot leak in.
func Wrap(fn Callable, funcs map[string]function.Function) *Namespace {
	owned := make(map[string]function.Function, len(funcs))
	for name, f := range funcs {
		owned[name] = f
	}
	return &Namespace{fn: fn, funcs: owned}
}

// Acquire takes a reference for the duration of one invocation. It fails
// fast with ErrReleased once the namespace has been closed.
func (ns *Namespace) Acquire() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.closed {
		return ErrReleased
	}
	ns.refs++
	return nil
}

// Release drops a reference taken by Acquire. If Close has already been
// requested and this was the last reference, the namespace is torn down.
func (ns *Namespace) Release() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.refs > 0 {
		ns.refs--
	}
	if ns.closed && ns.refs == 0 {
		ns.teardown()
	}
}

// Close marks the namespace released. Subsequent Acquire calls fail fast.
// The function table is freed immediately when no invocation is in flight,
// otherwise when the last one releases its reference.
func (ns *Namespace) Close() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.closed {
		return ErrReleased
	}
	ns.closed = true
	if ns.refs == 0 {
		ns.teardown()
	}
	return nil
}

// teardown frees the namespace's resources. Callers must hold ns.mu.
func (ns *Namespace) teardown() {
	ns.fn = nil
	ns.funcs = nil
}

// Call evaluates the wrapped callable against the namespace's own function
// table. The caller must hold an acquisition; a call that races teardown
// still sees either the intact table or ErrReleased, never a partial one.
func (ns *Namespace) Call(vars map[string]cty.Value) (cty.Value, error) {
	ns.mu.Lock()
	fn, funcs := ns.fn, ns.funcs
	ns.mu.Unlock()
	if fn == nil {
		return cty.NilVal, ErrReleased
	}
	return fn(vars, funcs)
}
