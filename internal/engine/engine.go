package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"labmon/internal/failure"
	"labmon/internal/pipeline"
	"labmon/internal/telemetry"
	"labmon/internal/transport"
)

type Engine struct {
	transport *transport.Server
	metrics   *telemetry.Server
	runner    *pipeline.Runner

	timeout time.Duration
	log     *slog.Logger
}

// Run serves until ctx ends or acquisition stops on its own, then shuts
// down within the configured timeout. Timeouts are logged, not returned.
func (e *Engine) Run(ctx context.Context) error {
	if e.transport != nil {
		go func() {
			if err := e.transport.Serve(); err != nil {
				e.log.Error("control server exited", "err", err)
			}
		}()
		e.transport.SetServing(true)
		e.log.Info("control server listening", "addr", e.transport.Addr().String())
	}

	select {
	case <-ctx.Done():
		e.log.Info("shutdown requested")
	case <-e.runner.Done():
		e.log.Info("acquisition finished")
	}

	sctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	timeouts, err := splitTimeouts(e.shutdown(sctx))
	for _, t := range timeouts {
		e.log.Warn("shutdown incomplete", "kind", failure.ShutdownTimeout, "err", t)
	}
	if err == nil {
		e.log.Info("shutdown complete")
	}
	return err
}

func (e *Engine) shutdown(ctx context.Context) error {
	var errs []error
	if e.transport != nil {
		e.transport.SetServing(false)
	}
	if e.runner != nil {
		errs = append(errs, e.runner.Close(ctx))
	}
	if e.metrics != nil {
		if err := e.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, failure.New(failure.ShutdownTimeout, "metrics", err))
		}
	}
	if e.transport != nil {
		e.transport.Stop(ctx)
	}
	return errors.Join(errs...)
}

// splitTimeouts separates ShutdownTimeout failures from the rest of a
// (possibly joined) error.
func splitTimeouts(err error) ([]error, error) {
	if err == nil {
		return nil, nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var rest, timeouts []error
		for _, e := range j.Unwrap() {
			t, r := splitTimeouts(e)
			if r != nil {
				rest = append(rest, r)
			}
			timeouts = append(timeouts, t...)
		}
		return timeouts, errors.Join(rest...)
	}
	if failure.Is(err, failure.ShutdownTimeout) {
		return []error{err}, nil
	}
	return nil, err
}
