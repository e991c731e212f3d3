// Package extension defines the extension contract and the loader that
// drives the registration phase at startup.
//
// An extension is an independently built package that contributes mixins,
// schedule entries, and settings to the shared [vegetables.Configurator]
// before the task base is composed. Extensions announce themselves under a
// unique name via [Register], typically from an init function:
//
//	func init() {
//	    extension.Register("orm", func() extension.Extension {
//	        return &ormExtension{}
//	    })
//	}
//
// A deployment then selects extensions by name in its configuration file
// and blank-imports the packages so their init functions run:
//
//	import _ "example.com/nom-extensions/orm"
//
// [Loader.Load] resolves the configured names in order and invokes each
// extension's Setup against the configurator. Order matters: later
// extensions observe and may override what earlier ones registered.
// Loading is all-or-nothing; the first failure aborts startup naming the
// offending extension.
package extension
