package extension

import (
	"fmt"
	"log/slog"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/task"
)

// Loader runs the registration phase: it resolves configured extension
// names against the package registry and invokes each extension's Setup in
// list order.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader. A nil logger defaults to slog.Default.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load resolves and runs the named extensions in order against the
// configurator. It is all-or-nothing: an unknown name or a Setup error
// aborts immediately with ErrExtensionLoad wrapping the offender's name,
// so the process never starts with a half-initialized task base.
//
// Load returns the constructed extensions in load order so the caller can
// run optional later phases (task registration) against the same
// instances.
func (l *Loader) Load(names []string, c *vegetables.Configurator) ([]Extension, error) {
	loaded := make([]Extension, 0, len(names))
	for _, name := range names {
		factory, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not registered (missing blank import?)", vegetables.ErrExtensionLoad, name)
		}
		ext := factory()
		if ext == nil {
			return nil, fmt.Errorf("%w: %q factory returned nil", vegetables.ErrExtensionLoad, name)
		}
		if err := ext.Setup(c); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", vegetables.ErrExtensionLoad, name, err)
		}
		l.logger.Debug("extension loaded", "extension", name)
		loaded = append(loaded, ext)
	}
	return loaded, nil
}

// RegisterTasks runs the optional second phase over the loaded extensions:
// each one implementing TaskRegistrar declares its tasks, in load order.
func (l *Loader) RegisterTasks(loaded []Extension, r *task.Registry) error {
	for _, ext := range loaded {
		tr, ok := ext.(TaskRegistrar)
		if !ok {
			continue
		}
		if err := tr.RegisterTasks(r); err != nil {
			return fmt.Errorf("%w: task registration: %v", vegetables.ErrExtensionLoad, err)
		}
	}
	return nil
}
