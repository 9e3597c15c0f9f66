package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"labmon/internal/failure"
	"labmon/internal/logging"
	"labmon/internal/rotation"
	"labmon/internal/spec"
	"labmon/internal/stream"
	"labmon/internal/telemetry"
	"labmon/sink"
	"labmon/sink/csvfile"
	"labmon/source"
)

// Runner owns one acquisition graph: a source, the rotating sink with its
// scheduler, and the worker (sampler or stream pipeline) between them.
type Runner struct {
	spec    spec.File
	log     *slog.Logger
	metrics *telemetry.Metrics

	src       source.Adapter
	sink      *csvfile.Sink
	mirrorSet []sink.Adapter
	sched     *rotation.Scheduler
	work      func(context.Context) error

	opened bool
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	mu    sync.Mutex
	stats *stream.Stats
	once  sync.Once
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, o := range opts {
		o(r)
	}
	r.log = logging.Or(r.log)
	return r
}

func (r *Runner) Spec() spec.File     { return r.spec }
func (r *Runner) Sink() *csvfile.Sink { return r.sink }

// Start opens the device, starts rotation and launches the worker.
func (r *Runner) Start(ctx context.Context) error {
	if r.work == nil || r.src == nil {
		return failure.Errorf(failure.Init, "runner.start", "no source configured")
	}
	if err := r.src.Open(ctx); err != nil {
		return failure.New(failure.Init, "open source "+r.spec.Source.Kind, err)
	}
	r.opened = true
	r.sched.Start()

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		if err := r.work(ctx); err != nil {
			r.log.Error("acquisition stopped", "op", "run", "kind", failure.KindOf(err), "err", err)
			r.err = err
		}
	}()
	r.log.Info("acquisition started",
		"source", r.spec.Source.Kind,
		"mode", r.spec.Source.Mode,
		"file", r.sink.Current())
	return nil
}

// Done is closed when the worker returns, on cancellation or on its own
// (a stream that reached max_requests).
func (r *Runner) Done() <-chan struct{} { return r.done }

// Stats reports the last stream run; ok is false in poll mode.
func (r *Runner) Stats() (st stream.Stats, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stats == nil {
		return stream.Stats{}, false
	}
	return *r.stats, true
}

func (r *Runner) streamWork(p *stream.Pipeline) func(context.Context) error {
	return func(ctx context.Context) error {
		st, err := p.Run(ctx)
		r.mu.Lock()
		r.stats = &st
		r.mu.Unlock()
		return err
	}
}

// Close stops the worker, waits for it until ctx expires, stops rotation
// and releases the device and sink. Timeouts come back as ShutdownTimeout
// failures joined with any other error.
func (r *Runner) Close(ctx context.Context) error {
	var errs []error
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		if r.done != nil {
			select {
			case <-r.done:
				errs = append(errs, r.err)
			case <-ctx.Done():
				errs = append(errs, failure.New(failure.ShutdownTimeout, "runner.wait", ctx.Err()))
			}
		}
		if r.sched != nil {
			errs = append(errs, r.sched.Stop(ctx))
		}
		errs = append(errs, r.release())
	})
	return errors.Join(errs...)
}

func (r *Runner) release() error {
	var errs []error
	if r.src != nil && r.opened {
		errs = append(errs, r.src.Close())
	}
	if r.sink != nil {
		errs = append(errs, r.sink.Close())
	} else {
		for _, m := range r.mirrorSet {
			errs = append(errs, m.Close())
		}
	}
	return errors.Join(errs...)
}
