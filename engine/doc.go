// Package engine assembles a running system out of the configuration
// file: it loads the named extensions, composes the task base, merges the
// periodic schedule, selects the lock factory and store backend, and
// wires the worker pool and beat scheduler on top.
//
// The engine package exists to break an import cycle: the root vegetables
// package defines the Configurator and mixin contracts (imported by task,
// extension, schedule) and therefore cannot import those packages back.
// Engine sits above all subsystem packages and below the application
// layer.
//
// # Building an Engine
//
//	cfg, err := vegetables.LoadConfig("nom.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng, err := engine.Build(ctx, cfg, logger,
//	    engine.WithMiddleware(myMiddleware),
//	)
//
// Build runs the full startup sequence: extension load, base composition
// (which freezes the Configurator), task registration, schedule merge,
// backend construction, and finally the after-setup callbacks. Any error
// along the way is fatal; a partially composed system never serves.
//
// # Registering and Enqueuing Work
//
//	engine.Register(eng, task.NewDefinition("send-email", sendEmail,
//	    task.WithQueue("mail"),
//	    task.WithLock(),
//	))
//
//	inv, err := engine.Enqueue(ctx, eng, "send-email", EmailPayload{To: "a@b.c"})
//
// # Processes
//
// StartWorker runs the polling worker pool; StartBeat runs the periodic
// scheduler. A deployment typically runs many workers and exactly one
// beat. Stop shuts down whatever was started, bounded by the configured
// shutdown timeout.
package engine
