package main

import (
	"context"
	"errors"
	"log/slog"

	"i4.energy/across/gsmwatch/modem"
)

// Runner composes the session and the dispatcher into one blocking run:
// connect, pre-up, dispatch. Teardown happens exactly once on every exit
// path, so the serial port is never leaked.
type Runner struct {
	Logger  *slog.Logger
	Session *modem.Session
	// Handler receives the inbound events. Defaults to modem.NopHandler.
	Handler modem.Handler
}

// Run blocks until the context is cancelled, the modem powers down, or the
// transport fails. Startup failures (connect, pre-up) are returned as-is and
// skip all later stages; a cancelled context and a modem power down are
// clean shutdowns and return nil.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Session.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := r.Session.Teardown(); err != nil && !errors.Is(err, modem.ErrAlreadyClosed) {
			r.Logger.Error("Teardown failed", "error", err)
		}
	}()

	if err := r.Session.PreUp(ctx); err != nil {
		return err
	}

	dispatcher := modem.NewDispatcher(r.Session, r.Handler, r.Logger.With("component", "dispatcher"))

	// Isolated per-event errors (handler bugs, failed hangups) are reported
	// here; they never stop the dispatch loop.
	go func() {
		for err := range dispatcher.Errs() {
			r.Logger.Warn("Event error", "error", err)
		}
	}()

	err := dispatcher.Run(ctx)
	switch {
	case err == nil,
		errors.Is(err, modem.ErrPowerDown),
		errors.Is(err, context.Canceled):
		r.Logger.Info("Shutdown complete")
		return nil
	default:
		return err
	}
}
