// Package artifact defines the shared data model for compiled functions:
// their shape, element types, and the descriptor stored in the registry.
package artifact

import (
	"fmt"
	"strings"
	"time"

	"github.com/vk/funcmesh/internal/isolate"
	"github.com/zclconf/go-cty/cty"
)

// Shape classifies what an artifact consumes and produces.
type Shape int

const (
	// ShapeTransform consumes input elements and produces output elements.
	ShapeTransform Shape = iota
	// ShapeSink consumes input elements and produces no output.
	ShapeSink
	// ShapeSource takes no input and produces output elements.
	ShapeSource
)

// String returns the manifest spelling of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeTransform:
		return "transform"
	case ShapeSink:
		return "sink"
	case ShapeSource:
		return "source"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseShape maps a manifest spelling to a Shape.
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transform":
		return ShapeTransform, nil
	case "sink":
		return ShapeSink, nil
	case "source":
		return ShapeSource, nil
	default:
		return 0, fmt.Errorf("unknown shape %q (want transform, sink, or source)", s)
	}
}

// HasInput reports whether the shape consumes an input sequence.
func (s Shape) HasInput() bool { return s != ShapeSource }

// HasOutput reports whether the shape produces an output sequence.
func (s Shape) HasOutput() bool { return s != ShapeSink }

// Descriptor is the immutable record of one registered artifact. It is
// created by a successful compile and never mutated after registration;
// replacing an artifact is deregister-then-register.
type Descriptor struct {
	Name       string
	Shape      Shape
	InputType  cty.Type // cty.NilType for sources
	OutputType cty.Type // cty.NilType for sinks
	Source     string
	Handle     *isolate.Namespace
	CreatedAt  time.Time
}
