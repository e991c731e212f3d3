package monitor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/schedule"
	"github.com/stevearc/eat-your-vegetables/store"
	"github.com/stevearc/eat-your-vegetables/task"
)

// Server is the read-only monitor HTTP server.
type Server struct {
	store    store.Store
	registry *task.Registry
	schedule *schedule.Schedule
	logger   *slog.Logger
	addr     string
	echo     *echo.Echo
}

// New creates a monitor Server. The registry and schedule may come
// straight from a built engine.
func New(cfg vegetables.MonitorConfig, st store.Store, registry *task.Registry, sched *schedule.Schedule, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	s := &Server{
		store:    st,
		registry: registry,
		schedule: sched,
		logger:   logger,
		addr:     cfg.Addr,
		echo:     e,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)

	api := s.echo.Group("/api")
	api.GET("/tasks", s.listTasks)
	api.GET("/schedule", s.listSchedule)
	api.GET("/queues", s.listQueues)
	api.GET("/invocations", s.listInvocations)
	api.GET("/invocations/:id", s.getInvocation)
	api.POST("/invocations/:id/replay", s.replayInvocation)
}

// Start runs the HTTP server until Stop is called. It blocks.
func (s *Server) Start(_ context.Context) error {
	s.logger.Info("monitor listening", slog.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying HTTP handler for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) health(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type taskInfo struct {
	Name       string        `json:"name"`
	Queue      string        `json:"queue"`
	MaxRetries int           `json:"max_retries"`
	Timeout    time.Duration `json:"timeout"`
	Locked     bool          `json:"locked"`
}

func (s *Server) listTasks(c echo.Context) error {
	names := s.registry.Names()
	out := make([]taskInfo, 0, len(names))
	for _, name := range names {
		reg, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, taskInfo{
			Name:       reg.Name,
			Queue:      reg.Opts.Queue,
			MaxRetries: reg.Opts.MaxRetries,
			Timeout:    reg.Opts.Timeout,
			Locked:     reg.Opts.Lock,
		})
	}
	return c.JSON(http.StatusOK, out)
}

type scheduleInfo struct {
	Name  string    `json:"name"`
	Task  string    `json:"task"`
	Expr  string    `json:"expr"`
	Queue string    `json:"queue,omitempty"`
	Next  time.Time `json:"next"`
}

func (s *Server) listSchedule(c echo.Context) error {
	now := time.Now().UTC()
	entries := s.schedule.Entries()
	out := make([]scheduleInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, scheduleInfo{
			Name:  e.Name,
			Task:  e.Task,
			Expr:  e.Expr,
			Queue: e.Queue,
			Next:  e.Next(now),
		})
	}
	return c.JSON(http.StatusOK, out)
}

type queueInfo struct {
	Name    string `json:"name"`
	Pending int64  `json:"pending"`
	Running int64  `json:"running"`
}

func (s *Server) listQueues(c echo.Context) error {
	ctx := c.Request().Context()
	names, err := s.store.Queues(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]queueInfo, 0, len(names))
	for _, name := range names {
		pending, err := s.store.Count(ctx, task.CountOpts{Queue: name, State: task.StatePending})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		running, err := s.store.Count(ctx, task.CountOpts{Queue: name, State: task.StateRunning})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		out = append(out, queueInfo{Name: name, Pending: pending, Running: running})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) listInvocations(c echo.Context) error {
	state := task.State(c.QueryParam("state"))
	if state == "" {
		state = task.StatePending
	}

	opts := task.ListOpts{Queue: c.QueryParam("queue")}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		opts.Limit = n
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		opts.Offset = n
	}

	invs, err := s.store.ListByState(c.Request().Context(), state, opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, invs)
}

func (s *Server) getInvocation(c echo.Context) error {
	taskID, err := id.ParseTaskID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid invocation id")
	}

	inv, err := s.store.Get(c.Request().Context(), taskID)
	if err != nil {
		if errors.Is(err, vegetables.ErrInvocationNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "invocation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, inv)
}

func (s *Server) replayInvocation(c echo.Context) error {
	taskID, err := id.ParseTaskID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid invocation id")
	}

	fresh, err := task.Replay(c.Request().Context(), s.store, taskID)
	if err != nil {
		if errors.Is(err, vegetables.ErrInvocationNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "invocation not found")
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	s.logger.Info("invocation replayed",
		slog.String("source", taskID.String()),
		slog.String("replay", fresh.ID.String()),
	)
	return c.JSON(http.StatusCreated, fresh)
}
