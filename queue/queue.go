package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limit defines throttling for one queue.
type Limit struct {
	// Queue is the queue name (matches the task's declared queue).
	Queue string `koanf:"queue" validate:"required"`

	// MaxConcurrency caps how many invocations from this queue may run
	// simultaneously in the local pool. Zero means no cap.
	MaxConcurrency int `koanf:"max_concurrency"`

	// RatePerSecond is the sustained dequeue rate. Zero disables rate
	// limiting.
	RatePerSecond float64 `koanf:"rate_per_second"`

	// Burst is the token-bucket burst size; defaults to 1 when a rate is
	// set.
	Burst int `koanf:"burst"`
}

type state struct {
	limit   Limit
	limiter *rate.Limiter
	active  int
}

func newState(l Limit) *state {
	s := &state{limit: l}
	if l.RatePerSecond > 0 {
		burst := l.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(l.RatePerSecond), burst)
	}
	return s
}

// Limiter tracks per-queue rate and concurrency budgets. It is safe for
// concurrent use. Queues without a configured limit always admit.
type Limiter struct {
	mu     sync.Mutex
	queues map[string]*state
}

// NewLimiter creates a Limiter with the given per-queue limits.
func NewLimiter(limits ...Limit) *Limiter {
	l := &Limiter{queues: make(map[string]*state, len(limits))}
	for _, lim := range limits {
		l.queues[lim.Queue] = newState(lim)
	}
	return l
}

// Acquire reports whether an invocation from the queue may run now, and
// if so claims a concurrency slot. The caller must Release the slot when
// the invocation finishes.
func (l *Limiter) Acquire(queue string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.queues[queue]
	if s == nil {
		return true
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return false
	}
	if s.limit.MaxConcurrency > 0 && s.active >= s.limit.MaxConcurrency {
		return false
	}
	s.active++
	return true
}

// Release returns a concurrency slot claimed by Acquire. Releasing an
// unlimited queue is a no-op.
func (l *Limiter) Release(queue string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.queues[queue]; s != nil && s.active > 0 {
		s.active--
	}
}

// Active returns the number of claimed slots for the queue.
func (l *Limiter) Active(queue string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.queues[queue]; s != nil {
		return s.active
	}
	return 0
}

// SetLimit inserts or replaces a queue's limit at runtime, preserving the
// current active count.
func (l *Limiter) SetLimit(lim Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := newState(lim)
	if prev := l.queues[lim.Queue]; prev != nil {
		s.active = prev.active
	}
	l.queues[lim.Queue] = s
}
