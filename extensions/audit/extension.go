package audit

import (
	"context"
	"log/slog"
	"time"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/extension"
	"github.com/stevearc/eat-your-vegetables/task"
)

// Compile-time interface checks.
var (
	_ extension.Extension  = (*Extension)(nil)
	_ vegetables.Mixin     = (*trailMixin)(nil)
	_ vegetables.SetupHook = (*trailMixin)(nil)
)

func init() {
	extension.Register("audit", func() extension.Extension { return New() })
}

// Outcome constants for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one audit trail entry, emitted at invocation teardown.
type Event struct {
	Task         string        `json:"task"`
	InvocationID string        `json:"invocation_id"`
	Queue        string        `json:"queue"`
	Outcome      string        `json:"outcome"`
	Elapsed      time.Duration `json:"elapsed"`
	Reason       string        `json:"reason,omitempty"`
}

// Recorder persists audit events. The default implementation writes
// structured log lines; inject a custom Recorder to bridge to an audit
// backend.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// RecorderFunc adapts a plain function to a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Extension emits one audit event per task invocation.
type Extension struct {
	recorder      Recorder
	logger        *slog.Logger
	slowThreshold time.Duration
}

// New creates the audit extension. Without options events are logged
// through slog.Default.
func New(opts ...Option) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.recorder == nil {
		e.recorder = &slogRecorder{logger: e.logger, slowThreshold: e.slowThreshold}
	}
	return e
}

// Setup registers the audit trail mixin.
func (e *Extension) Setup(c *vegetables.Configurator) error {
	return c.RegisterMixin(&trailMixin{ext: e})
}

// trailMixin hooks every invocation and emits the audit event from its
// completion callback.
type trailMixin struct {
	ext *Extension
}

func (m *trailMixin) Name() string { return "audit-trail" }

func (m *trailMixin) OnTaskStart(ctx context.Context, reg vegetables.CallbackRegistrar) error {
	started := time.Now()
	reg.OnCompletion(func(ctx context.Context, res vegetables.Result) error {
		event := &Event{
			Outcome: OutcomeSuccess,
			Elapsed: time.Since(started),
		}
		if res.Outcome != vegetables.OutcomeSuccess {
			event.Outcome = OutcomeFailure
		}
		if res.Err != nil {
			event.Reason = res.Err.Error()
		}
		if sc, ok := task.FromContext(ctx); ok {
			inv := sc.Invocation()
			event.Task = inv.Name
			event.InvocationID = inv.ID.String()
			event.Queue = inv.Queue
		}
		return m.ext.recorder.Record(ctx, event)
	})
	return nil
}

// slogRecorder is the default Recorder. Failures and slow invocations log
// at Warn, everything else at Info.
type slogRecorder struct {
	logger        *slog.Logger
	slowThreshold time.Duration
}

func (r *slogRecorder) Record(ctx context.Context, event *Event) error {
	attrs := []any{
		slog.String("task", event.Task),
		slog.String("invocation_id", event.InvocationID),
		slog.String("queue", event.Queue),
		slog.String("outcome", event.Outcome),
		slog.Duration("elapsed", event.Elapsed),
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	slow := r.slowThreshold > 0 && event.Elapsed >= r.slowThreshold
	if event.Outcome == OutcomeFailure || slow {
		r.logger.WarnContext(ctx, "task audit", attrs...)
	} else {
		r.logger.InfoContext(ctx, "task audit", attrs...)
	}
	return nil
}
