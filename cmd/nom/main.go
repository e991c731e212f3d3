// Command nom runs the eat-your-vegetables processes: the worker pool,
// the beat scheduler, and the monitor HTTP server. All three read the
// same YAML configuration file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/engine"
	"github.com/stevearc/eat-your-vegetables/monitor"

	// Built-in extensions, selectable by name in the configuration.
	_ "github.com/stevearc/eat-your-vegetables/extensions/audit"
)

func main() {
	app := &cli.App{
		Name:  "nom",
		Usage: "distributed task runner",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "nom.yaml",
				Usage:   "path to the configuration file",
			},
		},
		Commands: []*cli.Command{
			workerCmd,
			beatCmd,
			monitorCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration, builds the logger, and wires the engine.
func setup(c *cli.Context) (*engine.Engine, *vegetables.Config, *slog.Logger, error) {
	cfg, err := vegetables.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, nil, err
	}
	logger := vegetables.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	eng, err := engine.Build(c.Context, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return eng, cfg, logger, nil
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal(logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", slog.String("signal", sig.String()))
}

var workerCmd = &cli.Command{
	Name:  "worker",
	Usage: "run the task worker pool",
	Action: func(c *cli.Context) error {
		eng, _, logger, err := setup(c)
		if err != nil {
			return err
		}
		if err := eng.StartWorker(c.Context); err != nil {
			return err
		}
		waitForSignal(logger)
		return eng.Stop(context.Background())
	},
}

var beatCmd = &cli.Command{
	Name:  "beat",
	Usage: "run the periodic task scheduler (one instance per deployment)",
	Action: func(c *cli.Context) error {
		eng, _, logger, err := setup(c)
		if err != nil {
			return err
		}
		if err := eng.StartBeat(c.Context); err != nil {
			return err
		}
		waitForSignal(logger)
		return eng.Stop(context.Background())
	},
}

var monitorCmd = &cli.Command{
	Name:  "monitor",
	Usage: "run the read-only monitor HTTP server",
	Action: func(c *cli.Context) error {
		eng, cfg, logger, err := setup(c)
		if err != nil {
			return err
		}
		srv := monitor.New(cfg.Monitor, eng.Store(), eng.Registry(), eng.Schedule(), logger)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(c.Context) }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger.Info("shutting down", slog.String("signal", sig.String()))
		}

		if err := srv.Stop(context.Background()); err != nil {
			logger.Error("monitor stop error", slog.String("error", err.Error()))
		}
		return eng.Stop(context.Background())
	},
}
