// Package numfuncs contributes the numeric builtins available to artifact
// source text.
package numfuncs

import (
	"github.com/vk/funcmesh/internal/compile"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Module implements the compile.Module interface for this package.
type Module struct{}

// Register registers the numeric functions with the library.
func (m *Module) Register(lib *compile.Library) {
	lib.Register("abs", stdlib.AbsoluteFunc)
	lib.Register("ceil", stdlib.CeilFunc)
	lib.Register("floor", stdlib.FloorFunc)
	lib.Register("min", stdlib.MinFunc)
	lib.Register("max", stdlib.MaxFunc)
	lib.Register("pow", stdlib.PowFunc)
	lib.Register("log", stdlib.LogFunc)
	lib.Register("signum", stdlib.SignumFunc)
	lib.Register("parseint", stdlib.ParseIntFunc)
	lib.Register("int", stdlib.IntFunc)
	lib.Register("range", stdlib.RangeFunc)
}
