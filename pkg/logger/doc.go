// Package logger builds *slog.Logger instances for the drain service and defines the
// attribute helpers used by the queue packages.
//
// New creates a JSON or text logger configured by Option functions and wraps its handler
// with LogHandlerDecorator, which adds attributes pulled from the context of every
// record. The drain cycle id stored with WithCycleID is always extracted, so every line
// logged during one Processor.Drain call carries the same "cycle_id".
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment("production", "deferq"),
//	    logger.WithLevel(slog.LevelWarn),
//	)
//	logger.SetAsDefault(log)
//
//	ctx := logger.WithCycleID(context.Background(), "c-1")
//	log.WarnContext(ctx, "entry lease expired", logger.EntryID(id), logger.Timeouts(2))
//
// Error and Errors return an empty attribute for nil errors, so they can be passed
// without a nil check.
package logger
