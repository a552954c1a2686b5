package compile

import "fmt"

// Stage identifies the compilation phase that rejected the source text.
type Stage int

const (
	// StageParse covers malformed expression syntax.
	StageParse Stage = iota
	// StageResolve covers arity mismatches and unresolved symbols.
	StageResolve
	// StageGenerate covers failures while building the invocable, such as
	// unknown element type hints.
	StageGenerate
)

// String returns the wire spelling of the stage.
func (s Stage) String() string {
	switch s {
	case StageParse:
		return "parse"
	case StageResolve:
		return "resolve"
	case StageGenerate:
		return "generate"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Error describes a compile failure. Offset is the byte offset into the
// source text where the problem was detected, or 0 when the whole
// expression is at fault.
type Error struct {
	Stage   Stage
	Message string
	Offset  int
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("compile failed at %s stage (offset %d): %s", e.Stage, e.Offset, e.Message)
}
