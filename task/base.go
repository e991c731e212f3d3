package task

import (
	"context"
	"fmt"

	vegetables "github.com/stevearc/eat-your-vegetables"
)

// Base is the composed task base: the builtin methods merged with every
// registered mixin's methods, plus the setup hooks and the frozen settings
// snapshot. It is built once by Compose and read-only afterwards.
type Base struct {
	methods  map[string]vegetables.Method
	hooks    []vegetables.SetupHook
	settings map[string]any
	mixins   []string
}

// Compose freezes the configurator and builds the Base from it. It must be
// called exactly once, after all extensions have registered; a second call
// fails with ErrConfigurationFrozen.
//
// Merge order: builtins first, then each mixin's TaskMethods in
// registration order. Later entries overwrite earlier ones, so on a name
// collision the last-registered mixin wins and mixins always win over
// builtins.
func Compose(c *vegetables.Configurator) (*Base, error) {
	if c.Frozen() {
		return nil, fmt.Errorf("compose task base: %w", vegetables.ErrConfigurationFrozen)
	}
	c.Freeze()

	b := &Base{
		methods:  make(map[string]vegetables.Method),
		settings: c.Settings(),
	}
	for name, m := range builtins(b) {
		b.methods[name] = m
	}
	for _, mix := range c.Mixins() {
		b.mixins = append(b.mixins, mix.Name())
		if mp, ok := mix.(vegetables.MethodProvider); ok {
			for name, m := range mp.TaskMethods() {
				b.methods[name] = m
			}
		}
		if sh, ok := mix.(vegetables.SetupHook); ok {
			b.hooks = append(b.hooks, sh)
		}
	}
	return b, nil
}

// Method returns the method registered under name.
func (b *Base) Method(name string) (vegetables.Method, bool) {
	m, ok := b.methods[name]
	return m, ok
}

// Call invokes the method registered under name. Unknown names fail with
// ErrUnknownMethod.
func (b *Base) Call(ctx context.Context, name string, args ...any) (any, error) {
	m, ok := b.methods[name]
	if !ok {
		return nil, fmt.Errorf("call %q: %w", name, vegetables.ErrUnknownMethod)
	}
	return m(ctx, args...)
}

// Setting returns the frozen setting under key. The second return is false
// when the key was never set.
func (b *Base) Setting(key string) (any, bool) {
	v, ok := b.settings[key]
	return v, ok
}

// SetupHooks returns the mixin setup hooks in mixin registration order.
func (b *Base) SetupHooks() []vegetables.SetupHook {
	return b.hooks
}

// MethodNames returns the names of all composed methods.
func (b *Base) MethodNames() []string {
	names := make([]string, 0, len(b.methods))
	for name := range b.methods {
		names = append(names, name)
	}
	return names
}

// MixinNames returns the composed mixins in registration order.
func (b *Base) MixinNames() []string {
	return b.mixins
}

// builtins are the methods every composed base starts from. A mixin may
// shadow any of them by registering the same name.
func builtins(b *Base) map[string]vegetables.Method {
	return map[string]vegetables.Method{
		// setting(key) returns the frozen setting value.
		"setting": func(_ context.Context, args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("setting: want 1 arg, got %d", len(args))
			}
			key, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("setting: key must be a string, got %T", args[0])
			}
			v, ok := b.settings[key]
			if !ok {
				return nil, fmt.Errorf("setting %q: %w", key, vegetables.ErrSettingNotFound)
			}
			return v, nil
		},
		// methods() lists the composed method names, for introspection.
		"methods": func(_ context.Context, _ ...any) (any, error) {
			return b.MethodNames(), nil
		},
	}
}
