// Package timefuncs contributes time builtins available to artifact source
// text. Besides the stdlib date functions it defines now() and
// unixmillis(), the impure clocks that make timed sources useful.
package timefuncs

import (
	"time"

	"github.com/vk/funcmesh/internal/compile"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Module implements the compile.Module interface for this package.
type Module struct{}

// nowFunc returns the current UTC time in RFC 3339 form.
var nowFunc = function.New(&function.Spec{
	Params: []function.Parameter{},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.StringVal(time.Now().UTC().Format(time.RFC3339)), nil
	},
})

// unixMillisFunc returns the current Unix time in milliseconds.
var unixMillisFunc = function.New(&function.Spec{
	Params: []function.Parameter{},
	Type:   function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.NumberIntVal(time.Now().UnixMilli()), nil
	},
})

// Register registers the time functions with the library.
func (m *Module) Register(lib *compile.Library) {
	lib.Register("formatdate", stdlib.FormatDateFunc)
	lib.Register("timeadd", stdlib.TimeAddFunc)
	lib.Register("now", nowFunc)
	lib.Register("unixmillis", unixMillisFunc)
}
