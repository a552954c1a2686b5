// Package invoke is the invocation core: it pipes a lazy input sequence
// through a registered artifact's handle and produces a lazy output
// sequence, enforcing the shape contract. Each call acquires the handle's
// namespace for its duration, so a concurrent deregistration never
// corrupts an in-flight invocation.
package invoke

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/funcmesh/internal/artifact"
	"github.com/vk/funcmesh/internal/ctxlog"
	"github.com/vk/funcmesh/internal/stream"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Policy controls how an element-level failure affects the rest of the
// invocation.
type Policy int

const (
	// FailFast aborts the whole invocation on the first element error.
	FailFast Policy = iota
	// SkipAndContinue logs the failing element and keeps going.
	SkipAndContinue
)

// ParsePolicy maps a config spelling to a Policy. Empty means FailFast.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return FailFast, nil
	case "skip":
		return SkipAndContinue, nil
	default:
		return 0, fmt.Errorf("unknown error policy %q (want fail or skip)", s)
	}
}

// Error reports a failure raised by the artifact's own logic while
// processing one element.
type Error struct {
	Index int
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("invocation failed at element %d: %v", e.Index, e.Cause)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// Options tune a single invocation.
type Options struct {
	// Policy selects the element failure behavior. Zero value is FailFast.
	Policy Policy
	// Rounds is the number of source emission rounds. Zero means one.
	Rounds int
	// BaseIndex is the value of `n` for the first source round.
	BaseIndex int
}

// Invoker executes invocations against compiled handles.
type Invoker struct{}

// New creates an invoker.
func New() *Invoker {
	return &Invoker{}
}

// Invoke runs the artifact named by desc over the input sequence and
// returns its output sequence. For sinks the returned sequence emits
// nothing; it closes to signal completion. Shape violations and released
// handles fail before any element is processed. The caller owns `in` and
// must eventually drain or cancel the returned sequence.
func (iv *Invoker) Invoke(ctx context.Context, desc *artifact.Descriptor, in *stream.Seq, opts Options) (*stream.Seq, error) {
	ns := desc.Handle
	if err := ns.Acquire(); err != nil {
		return nil, fmt.Errorf("invoke %q: %w", desc.Name, err)
	}

	out := stream.New()
	switch desc.Shape {
	case artifact.ShapeTransform:
		go iv.runPipe(ctx, desc, in, out, opts, true)
	case artifact.ShapeSink:
		go iv.runPipe(ctx, desc, in, out, opts, false)
	case artifact.ShapeSource:
		go iv.runSource(ctx, desc, in, out, opts)
	default:
		ns.Release()
		return nil, fmt.Errorf("invoke %q: unknown shape %v", desc.Name, desc.Shape)
	}
	return out, nil
}

// runPipe drives transforms and sinks: it pulls input elements one at a
// time, evaluates the artifact with `x` bound, and (for transforms) emits
// the results in order.
func (iv *Invoker) runPipe(ctx context.Context, desc *artifact.Descriptor, in *stream.Seq, out *stream.Seq, opts Options, emit bool) {
	defer desc.Handle.Release()
	defer out.Close()
	logger := ctxlog.FromContext(ctx).With("artifact", desc.Name)

	index := 0
	for {
		v, ok, err := in.Next(ctx)
		if err != nil {
			out.Fail(err)
			return
		}
		if !ok {
			return
		}

		results, err := iv.evalElement(desc, map[string]cty.Value{"x": v}, desc.InputType)
		if err != nil {
			if opts.Policy == SkipAndContinue {
				logger.Warn("Skipping failed element.", "index", index, "error", err)
				index++
				continue
			}
			in.Cancel()
			out.Fail(&Error{Index: index, Cause: err})
			return
		}

		if emit {
			for _, r := range results {
				if err := out.Emit(ctx, r); err != nil {
					in.Cancel()
					return
				}
			}
		}
		index++
	}
}

// runSource drives sources: any provided input is deterministically
// cancelled and discarded, then the artifact is evaluated once per round
// with `n` bound to the emission index.
func (iv *Invoker) runSource(ctx context.Context, desc *artifact.Descriptor, in *stream.Seq, out *stream.Seq, opts Options) {
	defer desc.Handle.Release()
	defer out.Close()
	logger := ctxlog.FromContext(ctx).With("artifact", desc.Name)

	if in != nil {
		in.Cancel()
	}

	rounds := opts.Rounds
	if rounds <= 0 {
		rounds = 1
	}
	for round := 0; round < rounds; round++ {
		n := opts.BaseIndex + round
		vars := map[string]cty.Value{"n": cty.NumberIntVal(int64(n))}
		results, err := iv.evalElement(desc, vars, cty.NilType)
		if err != nil {
			if opts.Policy == SkipAndContinue {
				logger.Warn("Skipping failed emission round.", "round", n, "error", err)
				continue
			}
			out.Fail(&Error{Index: round, Cause: err})
			return
		}
		for _, r := range results {
			if err := out.Emit(ctx, r); err != nil {
				return
			}
		}
	}
}

// evalElement converts the element to the declared input type, evaluates
// the handle, and fans a tuple- or list-valued result out into individual
// emissions. Scalar results are a single emission, so cardinality is
// entirely up to the artifact's own logic.
func (iv *Invoker) evalElement(desc *artifact.Descriptor, vars map[string]cty.Value, inType cty.Type) ([]cty.Value, error) {
	if inType != cty.NilType && inType != cty.DynamicPseudoType {
		conv, err := convert.Convert(vars["x"], inType)
		if err != nil {
			return nil, fmt.Errorf("input element does not fit declared type: %w", err)
		}
		vars["x"] = conv
	}

	result, err := desc.Handle.Call(vars)
	if err != nil {
		return nil, err
	}

	var elements []cty.Value
	if !result.IsNull() && result.IsKnown() && (result.Type().IsTupleType() || result.Type().IsListType()) {
		for it := result.ElementIterator(); it.Next(); {
			_, v := it.Element()
			elements = append(elements, v)
		}
	} else {
		elements = []cty.Value{result}
	}

	if desc.OutputType != cty.NilType && desc.OutputType != cty.DynamicPseudoType {
		for i, e := range elements {
			conv, err := convert.Convert(e, desc.OutputType)
			if err != nil {
				return nil, fmt.Errorf("output element does not fit declared type: %w", err)
			}
			elements[i] = conv
		}
	}
	return elements, nil
}
