// Package strfuncs contributes the string builtins available to artifact
// source text.
package strfuncs

import (
	"github.com/vk/funcmesh/internal/compile"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Module implements the compile.Module interface for this package.
type Module struct{}

// Register registers the string functions with the library.
func (m *Module) Register(lib *compile.Library) {
	lib.Register("upper", stdlib.UpperFunc)
	lib.Register("lower", stdlib.LowerFunc)
	lib.Register("reverse", stdlib.ReverseFunc)
	lib.Register("strlen", stdlib.StrlenFunc)
	lib.Register("substr", stdlib.SubstrFunc)
	lib.Register("join", stdlib.JoinFunc)
	lib.Register("split", stdlib.SplitFunc)
	lib.Register("replace", stdlib.ReplaceFunc)
	lib.Register("trim", stdlib.TrimFunc)
	lib.Register("trimspace", stdlib.TrimSpaceFunc)
	lib.Register("trimprefix", stdlib.TrimPrefixFunc)
	lib.Register("trimsuffix", stdlib.TrimSuffixFunc)
	lib.Register("chomp", stdlib.ChompFunc)
	lib.Register("indent", stdlib.IndentFunc)
	lib.Register("title", stdlib.TitleFunc)
	lib.Register("format", stdlib.FormatFunc)
	lib.Register("formatlist", stdlib.FormatListFunc)
	lib.Register("regex", stdlib.RegexFunc)
	lib.Register("regexall", stdlib.RegexAllFunc)
}
