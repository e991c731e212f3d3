package extension

import (
	"fmt"
	"sync"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/task"
)

// Extension is the registration entry point every extension exposes.
// Setup runs exactly once per process, during the loading phase, with the
// still-mutable configurator.
type Extension interface {
	// Setup registers the extension's mixins, schedule entries, and
	// settings. An error aborts startup.
	Setup(c *vegetables.Configurator) error
}

// TaskRegistrar is an optional second phase. Extensions that declare their
// own tasks implement it; RegisterTasks runs after the base is composed,
// with the live task registry.
type TaskRegistrar interface {
	// RegisterTasks declares the extension's tasks on the registry.
	RegisterTasks(r *task.Registry) error
}

// Factory constructs a fresh extension instance per Load.
type Factory func() Extension

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register announces an extension under a unique name. It is typically
// called from an init function in the extension's package. Register panics
// if the name is already taken, following the database/sql driver
// convention: a duplicate name is a build-time wiring mistake, not a
// runtime condition.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("vegetables: extension.Register with nil factory")
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("vegetables: extension %q registered twice", name))
	}
	registry[name] = factory
}

// Lookup resolves a registered extension factory by name.
func Lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Names returns all registered extension names.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
