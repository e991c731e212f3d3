package vegetables

import "fmt"

// ScheduleEntry describes one periodic task. Entries are stored on the
// Configurator under a unique name; re-registering a name overwrites the
// prior entry.
type ScheduleEntry struct {
	// Task is the name of the task to enqueue on each fire. It must
	// resolve to a declared task at schedule-merge time.
	Task string

	// Schedule is a cron expression ("*/5 * * * *") or a descriptor
	// ("@every 1m", "@hourly").
	Schedule string

	// Payload is JSON-marshaled and enqueued with the task. May be nil.
	Payload any

	// Queue overrides the task's default queue (optional).
	Queue string
}

// Configurator accumulates what extensions contribute during loading:
// mixins for the composed task base, periodic schedule entries, free-form
// settings, and after-setup callbacks.
//
// It is mutable from the start of extension loading until task.Compose
// freezes it, and read-only data afterwards. Loading is strictly
// sequential; the Configurator is not safe for concurrent mutation and
// never needs to be.
type Configurator struct {
	settings   map[string]any
	mixins     []Mixin
	entries    map[string]ScheduleEntry
	afterSetup []func() error
	frozen     bool
}

// NewConfigurator creates a Configurator seeded with the raw settings from
// the configuration source. A nil map is allowed.
func NewConfigurator(settings map[string]any) *Configurator {
	s := make(map[string]any, len(settings))
	for k, v := range settings {
		s[k] = v
	}
	return &Configurator{
		settings: s,
		entries:  make(map[string]ScheduleEntry),
	}
}

// RegisterMixin appends a mixin to the composition list. Registration order
// is significant: on a method-name collision the later-registered mixin
// wins.
func (c *Configurator) RegisterMixin(m Mixin) error {
	if c.frozen {
		return fmt.Errorf("register mixin %q: %w", m.Name(), ErrConfigurationFrozen)
	}
	c.mixins = append(c.mixins, m)
	return nil
}

// AddScheduledTask inserts or overwrites the schedule entry under name.
// The entry's task reference is not validated here — schedule.Merge fails
// loudly at merge time if it does not resolve.
func (c *Configurator) AddScheduledTask(name string, entry ScheduleEntry) error {
	if c.frozen {
		return fmt.Errorf("add scheduled task %q: %w", name, ErrConfigurationFrozen)
	}
	c.entries[name] = entry
	return nil
}

// SetSetting stores a free-form value under key. Settings are how
// extensions pass data to each other; the producer/consumer contract is
// established by convention. Later extensions may overwrite earlier values.
func (c *Configurator) SetSetting(key string, value any) error {
	if c.frozen {
		return fmt.Errorf("set setting %q: %w", key, ErrConfigurationFrozen)
	}
	c.settings[key] = value
	return nil
}

// Setting returns the value under key. The second return is false when the
// key was never set — never a silent default, so extension-ordering bugs
// surface immediately.
func (c *Configurator) Setting(key string) (any, bool) {
	v, ok := c.settings[key]
	return v, ok
}

// AfterSetup registers a callback to run once the engine is fully built
// (base composed, tasks declared, schedule merged). Callbacks run in
// registration order; an error aborts startup.
func (c *Configurator) AfterSetup(fn func() error) error {
	if c.frozen {
		return fmt.Errorf("after setup: %w", ErrConfigurationFrozen)
	}
	c.afterSetup = append(c.afterSetup, fn)
	return nil
}

// Freeze makes the Configurator read-only. Called exactly once by
// task.Compose; further registration fails with ErrConfigurationFrozen.
func (c *Configurator) Freeze() { c.frozen = true }

// Frozen reports whether Freeze has been called.
func (c *Configurator) Frozen() bool { return c.frozen }

// Settings returns a copy of all settings.
func (c *Configurator) Settings() map[string]any {
	out := make(map[string]any, len(c.settings))
	for k, v := range c.settings {
		out[k] = v
	}
	return out
}

// Mixins returns the registered mixins in registration order.
func (c *Configurator) Mixins() []Mixin {
	out := make([]Mixin, len(c.mixins))
	copy(out, c.mixins)
	return out
}

// ScheduleEntries returns a copy of the accumulated schedule entries.
func (c *Configurator) ScheduleEntries() map[string]ScheduleEntry {
	out := make(map[string]ScheduleEntry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// RunAfterSetup invokes the after-setup callbacks in registration order,
// stopping at the first error.
func (c *Configurator) RunAfterSetup() error {
	for _, fn := range c.afterSetup {
		if err := fn(); err != nil {
			return fmt.Errorf("after setup: %w", err)
		}
	}
	return nil
}
