// Package collfuncs contributes the collection and structured-data
// builtins available to artifact source text.
package collfuncs

import (
	"github.com/vk/funcmesh/internal/compile"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Module implements the compile.Module interface for this package.
type Module struct{}

// Register registers the collection functions with the library.
func (m *Module) Register(lib *compile.Library) {
	lib.Register("length", stdlib.LengthFunc)
	lib.Register("element", stdlib.ElementFunc)
	lib.Register("concat", stdlib.ConcatFunc)
	lib.Register("flatten", stdlib.FlattenFunc)
	lib.Register("contains", stdlib.ContainsFunc)
	lib.Register("distinct", stdlib.DistinctFunc)
	lib.Register("compact", stdlib.CompactFunc)
	lib.Register("slice", stdlib.SliceFunc)
	lib.Register("keys", stdlib.KeysFunc)
	lib.Register("values", stdlib.ValuesFunc)
	lib.Register("merge", stdlib.MergeFunc)
	lib.Register("lookup", stdlib.LookupFunc)
	lib.Register("zipmap", stdlib.ZipmapFunc)
	lib.Register("coalesce", stdlib.CoalesceFunc)
	lib.Register("jsonencode", stdlib.JSONEncodeFunc)
	lib.Register("jsondecode", stdlib.JSONDecodeFunc)
	lib.Register("csvdecode", stdlib.CSVDecodeFunc)
}
