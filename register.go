package gojaremote

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// Require returns a [require.ModuleLoader] for the helper module that a
// [Binder] acquires. The loader must be registered under
// [HelperModuleName], on every runtime a [Conn] is opened to:
//
//	registry := require.NewRegistry()
//	registry.RegisterNativeModule(gojaremote.HelperModuleName, gojaremote.Require())
//	registry.Enable(runtime)
//
// See also [Enable].
func Require() require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)
		if err := setupHelper(runtime, exports); err != nil {
			panic(runtime.NewGoError(err))
		}
	}
}

// Enable registers the helper module on registry, when non-nil, or on a new
// registry, then enables it on runtime. It returns the registry used.
func Enable(runtime *goja.Runtime, registry *require.Registry) *require.Registry {
	if registry == nil {
		registry = require.NewRegistry()
	}
	registry.RegisterNativeModule(HelperModuleName, Require())
	registry.Enable(runtime)
	return registry
}
