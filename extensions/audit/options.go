package audit

import (
	"log/slog"
	"time"
)

// Option configures the audit Extension.
type Option func(*Extension)

// WithRecorder routes audit events to a custom backend instead of the
// structured log.
func WithRecorder(r Recorder) Option {
	return func(e *Extension) { e.recorder = r }
}

// WithLogger sets the logger used by the default recorder.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

// WithSlowThreshold logs invocations at Warn when they run at least this
// long, even on success. Zero disables the check.
func WithSlowThreshold(d time.Duration) Option {
	return func(e *Extension) { e.slowThreshold = d }
}
