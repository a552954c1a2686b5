package app

import (
	"github.com/vk/funcmesh/internal/compile"
	"github.com/vk/funcmesh/modules/collfuncs"
	"github.com/vk/funcmesh/modules/numfuncs"
	"github.com/vk/funcmesh/modules/strfuncs"
	"github.com/vk/funcmesh/modules/timefuncs"
)

// coreModules is the definitive list of builtin function modules compiled
// into the funcmesh binary.
var coreModules = []compile.Module{
	&strfuncs.Module{},
	&numfuncs.Module{},
	&collfuncs.Module{},
	&timefuncs.Module{},
}
