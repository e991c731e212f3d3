package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	cronlib "github.com/robfig/cron/v3"

	vegetables "github.com/stevearc/eat-your-vegetables"
)

// cronParser supports standard 5-field cron and descriptors like
// "@every 30s" or "@hourly".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseExpr parses a cron expression or descriptor.
func ParseExpr(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Entry is one validated periodic task: the raw configurator entry with its
// expression parsed and its payload marshaled.
type Entry struct {
	Name     string
	Task     string
	Expr     string
	Schedule cronlib.Schedule
	Payload  []byte
	Queue    string
}

// Next returns the first fire time after t.
func (e *Entry) Next(t time.Time) time.Time {
	return e.Schedule.Next(t)
}

// Resolver answers whether a task name is declared. *task.Registry
// satisfies it.
type Resolver interface {
	Has(name string) bool
}

// Schedule is the merged, immutable periodic schedule.
type Schedule struct {
	entries []*Entry
}

// Merge validates and compiles the configurator's schedule entries. Every
// entry's task must resolve against r (fails with ErrUnresolvedTask naming
// the entry), its expression must parse, and its payload must marshal.
// Merge requires a frozen configurator: merging before composition would
// miss entries registered later.
func Merge(c *vegetables.Configurator, r Resolver) (*Schedule, error) {
	if !c.Frozen() {
		return nil, fmt.Errorf("merge schedule: %w", vegetables.ErrNotComposed)
	}

	raw := c.ScheduleEntries()
	entries := make([]*Entry, 0, len(raw))
	for name, e := range raw {
		if !r.Has(e.Task) {
			return nil, fmt.Errorf("%w: entry %q references %q", vegetables.ErrUnresolvedTask, name, e.Task)
		}
		sched, err := ParseExpr(e.Schedule)
		if err != nil {
			return nil, fmt.Errorf("entry %q: parse schedule %q: %w", name, e.Schedule, err)
		}
		var payload []byte
		if e.Payload != nil {
			payload, err = json.Marshal(e.Payload)
			if err != nil {
				return nil, fmt.Errorf("entry %q: marshal payload: %w", name, err)
			}
		}
		entries = append(entries, &Entry{
			Name:     name,
			Task:     e.Task,
			Expr:     e.Schedule,
			Schedule: sched,
			Payload:  payload,
			Queue:    e.Queue,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return &Schedule{entries: entries}, nil
}

// Entries returns the merged entries, sorted by name.
func (s *Schedule) Entries() []*Entry {
	return s.entries
}

// Len returns the number of entries.
func (s *Schedule) Len() int {
	return len(s.entries)
}

// Entry returns the entry under name.
func (s *Schedule) Entry(name string) (*Entry, bool) {
	for _, e := range s.entries {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}
