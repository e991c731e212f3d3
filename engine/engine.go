package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/backoff"
	"github.com/stevearc/eat-your-vegetables/extension"
	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/lock"
	flocklock "github.com/stevearc/eat-your-vegetables/lock/flock"
	pglock "github.com/stevearc/eat-your-vegetables/lock/postgres"
	redislock "github.com/stevearc/eat-your-vegetables/lock/redis"
	mw "github.com/stevearc/eat-your-vegetables/middleware"
	"github.com/stevearc/eat-your-vegetables/queue"
	"github.com/stevearc/eat-your-vegetables/schedule"
	"github.com/stevearc/eat-your-vegetables/store"
	memorystore "github.com/stevearc/eat-your-vegetables/store/memory"
	pgstore "github.com/stevearc/eat-your-vegetables/store/postgres"
	redisstore "github.com/stevearc/eat-your-vegetables/store/redis"
	"github.com/stevearc/eat-your-vegetables/task"
	"github.com/stevearc/eat-your-vegetables/worker"
)

// Engine holds the fully wired system. Use Build to create one.
type Engine struct {
	cfg    *vegetables.Config
	logger *slog.Logger

	configurator *vegetables.Configurator
	extensions   []extension.Extension
	base         *task.Base
	registry     *task.Registry
	schedule     *schedule.Schedule
	store        store.Store
	locks        lock.Factory
	guard        *worker.Guard
	pool         *worker.Pool
	beat         *schedule.Beat

	bo  backoff.Strategy
	mws []mw.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Owned connections, closed by Stop.
	redisClient *goredis.Client
	pgPool      *pgxpool.Pool
}

// Option configures an Engine before Build wires it.
type Option func(*Engine)

// WithMiddleware appends middleware after the default chain
// (recover, tracing, metrics, logging, timeout).
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry backoff strategy. The default is exponential
// with jitter.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithStore overrides the broker selected by the configuration. Useful
// for tests and for backends constructed by the caller.
func WithStore(s store.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithLockFactory overrides the lock factory selected by the
// configuration.
func WithLockFactory(f lock.Factory) Option {
	return func(eng *Engine) { eng.locks = f }
}

// WithTracerProvider sets a custom OTel TracerProvider. When unset the
// global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When unset the
// global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// Build runs the startup sequence and returns a ready Engine:
//
//  1. Load the extensions named in cfg.Extensions, in order.
//  2. Compose the task base (freezes the Configurator).
//  3. Register tasks contributed by extensions.
//  4. Merge the periodic schedule against the task registry.
//  5. Construct the store and lock factory backends.
//  6. Run the after-setup callbacks.
//
// Any error is fatal. Build does not start any background work; call
// StartWorker or StartBeat afterwards.
func Build(ctx context.Context, cfg *vegetables.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	eng := &Engine{
		cfg:          cfg,
		logger:       logger,
		configurator: vegetables.NewConfigurator(cfg.Settings),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.bo == nil {
		eng.bo = backoff.Default()
	}

	built := false
	defer func() {
		if !built {
			eng.closeConnections()
		}
	}()

	loader := extension.NewLoader(logger)
	loaded, err := loader.Load(cfg.Extensions, eng.configurator)
	if err != nil {
		return nil, err
	}
	eng.extensions = loaded

	base, err := task.Compose(eng.configurator)
	if err != nil {
		return nil, err
	}
	eng.base = base

	registry, err := task.NewRegistry(base)
	if err != nil {
		return nil, err
	}
	eng.registry = registry

	if err := loader.RegisterTasks(loaded, registry); err != nil {
		return nil, err
	}

	sched, err := schedule.Merge(eng.configurator, registry)
	if err != nil {
		return nil, err
	}
	eng.schedule = sched

	if eng.store == nil {
		if err := eng.buildStore(ctx); err != nil {
			return nil, err
		}
	}
	if err := eng.store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	if err := eng.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping store: %w", err)
	}

	if eng.locks == nil {
		if err := eng.buildLockFactory(ctx); err != nil {
			return nil, err
		}
	}

	eng.buildWorkers()

	if err := eng.configurator.RunAfterSetup(); err != nil {
		return nil, err
	}

	logger.Info("engine built",
		slog.Int("extensions", len(loaded)),
		slog.Int("tasks", len(registry.Names())),
		slog.Int("schedule_entries", sched.Len()),
		slog.String("broker", cfg.Broker),
		slog.String("lock_factory", cfg.LockFactory),
	)
	built = true
	return eng, nil
}

func (eng *Engine) buildStore(ctx context.Context) error {
	switch eng.cfg.Broker {
	case "", "memory":
		eng.store = memorystore.New()
	case "redis":
		opt, err := goredis.ParseURL(eng.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect redis broker: %w", err)
		}
		eng.redisClient = client
		eng.store = redisstore.New(client, redisstore.WithLogger(eng.logger))
	case "postgres":
		pool, err := eng.postgresPool(ctx)
		if err != nil {
			return fmt.Errorf("connect postgres broker: %w", err)
		}
		eng.store = pgstore.NewFromPool(pool, pgstore.WithLogger(eng.logger))
	default:
		return fmt.Errorf("%w: unknown broker %q", vegetables.ErrNoStore, eng.cfg.Broker)
	}
	return nil
}

// postgresPool returns the engine's shared pgx pool, creating it on first
// use. The broker and the lock factory use the same pool when both select
// postgres.
func (eng *Engine) postgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	if eng.pgPool != nil {
		return eng.pgPool, nil
	}
	pool, err := pgxpool.New(ctx, eng.cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	eng.pgPool = pool
	return pool, nil
}

func (eng *Engine) buildLockFactory(ctx context.Context) error {
	switch eng.cfg.LockFactory {
	case "", "none":
		eng.locks = lock.NewNoop()
	case "memory":
		eng.locks = lock.NewMemory()
	case "file":
		f, err := flocklock.New(eng.cfg.LockDir)
		if err != nil {
			return fmt.Errorf("file lock factory: %w", err)
		}
		eng.locks = f
	case "redis":
		// Reuse the broker connection when the broker is redis too.
		if eng.redisClient != nil {
			eng.locks = redislock.New(eng.redisClient)
			return nil
		}
		opt, err := goredis.ParseURL(eng.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect redis lock factory: %w", err)
		}
		eng.redisClient = client
		eng.locks = redislock.New(client)
	case "postgres":
		pool, err := eng.postgresPool(ctx)
		if err != nil {
			return fmt.Errorf("connect postgres lock factory: %w", err)
		}
		f := pglock.New(pool)
		if err := f.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres lock factory: %w", err)
		}
		eng.locks = f
	default:
		return fmt.Errorf("%w: %q", vegetables.ErrUnknownLockFactory, eng.cfg.LockFactory)
	}
	return nil
}

func (eng *Engine) buildWorkers() {
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/stevearc/eat-your-vegetables"))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/stevearc/eat-your-vegetables"))
	} else {
		metricsMw = mw.Metrics()
	}

	allMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.TimeoutWithFallback(eng.logger, eng.cfg.Worker.TaskTimeout),
	}
	allMws = append(allMws, eng.mws...)

	eng.guard = worker.NewGuard(eng.registry, eng.store, eng.locks, eng.bo, eng.logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(eng.cfg.Worker.Concurrency),
		worker.WithPoolQueues(eng.cfg.Worker.Queues),
		worker.WithPollInterval(eng.cfg.Worker.PollInterval),
	}
	if len(eng.cfg.Worker.QueueLimits) > 0 {
		poolOpts = append(poolOpts, worker.WithQueueLimits(queue.NewLimiter(eng.cfg.Worker.QueueLimits...)))
	}
	eng.pool = worker.NewPool(eng.store, eng.guard, eng.logger, poolOpts...)

	enqueue := func(ctx context.Context, taskName string, payload []byte, queue string) (id.TaskID, error) {
		inv, err := eng.EnqueueRaw(ctx, taskName, payload, withQueueOverride(queue)...)
		if err != nil {
			return id.Nil, err
		}
		return inv.ID, nil
	}
	eng.beat = schedule.NewBeat(eng.schedule, enqueue, eng.logger,
		schedule.WithTickInterval(eng.cfg.Beat.TickInterval),
		schedule.WithEntryLock(eng.locks, eng.cfg.Beat.EntryLockTTL),
	)
}

func withQueueOverride(queue string) []task.Option {
	if queue == "" {
		return nil
	}
	return []task.Option{task.WithQueue(queue)}
}

// Register registers a typed task definition with the engine.
func Register[T any](eng *Engine, def *task.Definition[T]) {
	task.Register(eng.registry, def)
}

// Enqueue marshals the payload and enqueues an invocation of the named
// task. The task's declared options (queue, retry budget, timeout) apply;
// opts override them for this invocation only.
func Enqueue[T any](ctx context.Context, eng *Engine, name string, payload T, opts ...task.Option) (*task.Invocation, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for task %q: %w", name, err)
	}
	return eng.EnqueueRaw(ctx, name, data, opts...)
}

// EnqueueRaw enqueues an invocation with a pre-serialized payload.
func (eng *Engine) EnqueueRaw(ctx context.Context, name string, payload []byte, opts ...task.Option) (*task.Invocation, error) {
	reg, ok := eng.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", vegetables.ErrUnknownTask, name)
	}

	o := reg.Opts
	for _, opt := range opts {
		opt(&o)
	}

	now := time.Now().UTC()
	inv := &task.Invocation{
		ID:         id.NewTaskID(),
		Name:       name,
		Queue:      o.Queue,
		Payload:    payload,
		State:      task.StatePending,
		MaxRetries: o.MaxRetries,
		Timeout:    o.Timeout,
		RunAt:      now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := eng.store.Enqueue(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Replay re-enqueues a terminal invocation as a fresh pending one. See
// task.Replay.
func (eng *Engine) Replay(ctx context.Context, taskID id.TaskID) (*task.Invocation, error) {
	return task.Replay(ctx, eng.store, taskID)
}

// StartWorker starts the polling worker pool.
func (eng *Engine) StartWorker(ctx context.Context) error {
	return eng.pool.Start(ctx)
}

// StartBeat starts the periodic scheduler. Run exactly one beat per
// deployment; the per-entry locks only bound the damage of running more.
func (eng *Engine) StartBeat(ctx context.Context) error {
	return eng.beat.Start(ctx)
}

// Stop shuts down whatever was started and closes owned connections. The
// worker shutdown is bounded by the configured shutdown timeout; tasks
// still running at the deadline are cancelled.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.beat.Stop(ctx); err != nil {
		eng.logger.Error("beat stop error", slog.String("error", err.Error()))
	}

	poolCtx := ctx
	if eng.cfg.Worker.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		poolCtx, cancel = context.WithTimeout(ctx, eng.cfg.Worker.ShutdownTimeout)
		defer cancel()
	}
	if err := eng.pool.Stop(poolCtx); err != nil {
		eng.logger.Error("worker pool stop error", slog.String("error", err.Error()))
	}

	if err := eng.store.Close(); err != nil {
		eng.logger.Error("store close error", slog.String("error", err.Error()))
	}
	eng.closeConnections()
	return nil
}

// closeConnections closes the engine-owned backend connections. Idempotent.
func (eng *Engine) closeConnections() {
	if eng.redisClient != nil {
		if err := eng.redisClient.Close(); err != nil {
			eng.logger.Error("redis close error", slog.String("error", err.Error()))
		}
		eng.redisClient = nil
	}
	if eng.pgPool != nil {
		eng.pgPool.Close()
		eng.pgPool = nil
	}
}

// Configurator returns the frozen Configurator.
func (eng *Engine) Configurator() *vegetables.Configurator { return eng.configurator }

// Base returns the composed task base.
func (eng *Engine) Base() *task.Base { return eng.base }

// Registry returns the task registry.
func (eng *Engine) Registry() *task.Registry { return eng.registry }

// Schedule returns the merged periodic schedule.
func (eng *Engine) Schedule() *schedule.Schedule { return eng.schedule }

// Store returns the invocation store.
func (eng *Engine) Store() store.Store { return eng.store }

// Locks returns the lock factory.
func (eng *Engine) Locks() lock.Factory { return eng.locks }

// Guard returns the execution guard.
func (eng *Engine) Guard() *worker.Guard { return eng.guard }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Beat returns the beat scheduler.
func (eng *Engine) Beat() *schedule.Beat { return eng.beat }
