// Package compile turns textual function bodies into invocable artifacts.
// A body is a single HCL expression over cty values: transforms and sinks
// see the current input element as `x`, sources see the emission index as
// `n`. Compilation runs three stages — parse, resolve, generate — and
// produces a handle already wrapped in its own isolation namespace.
package compile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/funcmesh/internal/artifact"
	"github.com/vk/funcmesh/internal/ctxlog"
	"github.com/vk/funcmesh/internal/isolate"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// TypeHints carries the optional element type names from a registration
// request. Empty means dynamically typed.
type TypeHints struct {
	Input  string
	Output string
}

// Compiled is the result of a successful compilation. The handle is fully
// isolated and ready for invocation with no further linking step.
type Compiled struct {
	Handle     *isolate.Namespace
	InputType  cty.Type
	OutputType cty.Type
}

// Compiler builds invocable artifacts against a base function library.
type Compiler struct {
	lib *Library
}

// New creates a compiler over the given library.
func New(lib *Library) *Compiler {
	return &Compiler{lib: lib}
}

// Compile parses, resolves, and generates an invocable from source text.
// Compiling the same source twice yields independent handles, each with its
// own namespace copy. Failures are reported as *Error; the registry is
// never touched.
func (c *Compiler) Compile(ctx context.Context, src string, shape artifact.Shape, hints TypeHints) (*Compiled, error) {
	logger := ctxlog.FromContext(ctx)

	// Parse stage.
	expr, diags := hclsyntax.ParseExpression([]byte(src), "artifact", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, &Error{Stage: StageParse, Message: diags.Error(), Offset: diagOffset(diags)}
	}

	// Resolve stage: variable arity per shape, then function existence.
	if err := c.resolveVariables(expr, shape); err != nil {
		return nil, err
	}
	if err := c.resolveFunctions(expr); err != nil {
		return nil, err
	}

	// Generate stage: map type hints and close over the expression.
	inType, outType, err := elementTypes(shape, hints)
	if err != nil {
		return nil, err
	}

	raw := func(vars map[string]cty.Value, funcs map[string]function.Function) (cty.Value, error) {
		evalCtx := &hcl.EvalContext{Variables: vars, Functions: funcs}
		v, evalDiags := expr.Value(evalCtx)
		if evalDiags.HasErrors() {
			return cty.NilVal, errors.New(evalDiags.Error())
		}
		return v, nil
	}

	logger.Debug("Compiled artifact source.", "shape", shape.String(), "source_bytes", len(src))
	return &Compiled{
		Handle:     isolate.Wrap(raw, c.lib.Functions()),
		InputType:  inType,
		OutputType: outType,
	}, nil
}

// resolveVariables checks that every referenced variable is legal for the
// declared shape: `x` for transforms and sinks, `n` for sources.
func (c *Compiler) resolveVariables(expr hcl.Expression, shape artifact.Shape) error {
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		offset := traversal.SourceRange().Start.Byte
		switch {
		case root == "x" && shape == artifact.ShapeSource:
			return &Error{
				Stage:   StageResolve,
				Message: "a source takes no input: 'x' is not in scope",
				Offset:  offset,
			}
		case root == "n" && shape != artifact.ShapeSource:
			return &Error{
				Stage:   StageResolve,
				Message: fmt.Sprintf("'n' is only in scope for sources, not for a %s", shape),
				Offset:  offset,
			}
		case root != "x" && root != "n":
			return &Error{
				Stage:   StageResolve,
				Message: fmt.Sprintf("unresolved symbol %q", root),
				Offset:  offset,
			}
		}
	}
	return nil
}

// resolveFunctions checks every called function against the base library so
// a bad name fails at registration time, not on the first element.
func (c *Compiler) resolveFunctions(expr hcl.Expression) error {
	syntaxExpr, ok := expr.(hclsyntax.Expression)
	if !ok {
		return nil
	}
	var resolveErr *Error
	walkFunctionCalls(syntaxExpr, func(call *hclsyntax.FunctionCallExpr) {
		if resolveErr == nil && !c.lib.Has(call.Name) {
			resolveErr = &Error{
				Stage:   StageResolve,
				Message: fmt.Sprintf("unknown function %q", call.Name),
				Offset:  call.NameRange.Start.Byte,
			}
		}
	})
	if resolveErr != nil {
		return resolveErr
	}
	return nil
}

// elementTypes maps hint names onto cty types per the shape contract.
func elementTypes(shape artifact.Shape, hints TypeHints) (cty.Type, cty.Type, error) {
	inType := cty.NilType
	outType := cty.NilType

	if shape.HasInput() {
		t, err := elementType(hints.Input)
		if err != nil {
			return cty.NilType, cty.NilType, &Error{Stage: StageGenerate, Message: fmt.Sprintf("input type: %v", err)}
		}
		inType = t
	} else if hints.Input != "" {
		return cty.NilType, cty.NilType, &Error{Stage: StageGenerate, Message: "a source has no input type"}
	}

	if shape.HasOutput() {
		t, err := elementType(hints.Output)
		if err != nil {
			return cty.NilType, cty.NilType, &Error{Stage: StageGenerate, Message: fmt.Sprintf("output type: %v", err)}
		}
		outType = t
	} else if hints.Output != "" {
		return cty.NilType, cty.NilType, &Error{Stage: StageGenerate, Message: "a sink has no output type"}
	}

	return inType, outType, nil
}

// elementType maps a hint name to a cty type.
func elementType(name string) (cty.Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "any":
		return cty.DynamicPseudoType, nil
	case "string":
		return cty.String, nil
	case "number":
		return cty.Number, nil
	case "bool":
		return cty.Bool, nil
	default:
		return cty.NilType, fmt.Errorf("unknown element type %q (want string, number, bool, or any)", name)
	}
}

// diagOffset extracts the byte offset of the first positioned diagnostic.
func diagOffset(diags hcl.Diagnostics) int {
	for _, d := range diags {
		if d.Subject != nil {
			return d.Subject.Start.Byte
		}
	}
	return 0
}
