// Package rotation drives periodic destination rotation off the sampling
// goroutine. Each Scheduler owns its own cron loop.
package rotation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"labmon/internal/failure"
	"labmon/internal/logging"
	"labmon/internal/telemetry"
)

type Rotator interface {
	Rotate() error
}

type Option func(*Scheduler)

func WithMetrics(m *telemetry.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

type Scheduler struct {
	r       Rotator
	policy  Policy
	log     *slog.Logger
	metrics *telemetry.Metrics

	c       *cron.Cron
	once    sync.Once
	stopped context.Context // done once the last rotation returned
}

func NewScheduler(r Rotator, p Policy, log *slog.Logger, opts ...Option) (*Scheduler, error) {
	spec, err := p.Spec()
	if err != nil {
		return nil, failure.New(failure.Init, "rotation.schedule", err)
	}
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{r: r, policy: p, log: logging.Or(log)}
	for _, o := range opts {
		o(s)
	}

	cl := cronLogger{s.log}
	s.c = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.c.AddFunc(spec, s.fire); err != nil {
		return nil, failure.New(failure.Init, "rotation.schedule", err)
	}
	return s, nil
}

func (s *Scheduler) fire() {
	if err := s.r.Rotate(); err != nil {
		s.metrics.IncRotationError()
		s.log.Error("scheduled rotation failed", "op", "rotate", "err", err)
	}
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.c.Start()
	s.log.Info("rotation scheduled", "at", s.policy.At, "every", s.policy.Every)
}

// Next reports when the next rotation fires; zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop halts the loop and waits for a running rotation. Once Stop returns
// nil no further rotation happens.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.once.Do(func() { s.stopped = s.c.Stop() })
	select {
	case <-s.stopped.Done():
		return nil
	case <-ctx.Done():
		return failure.New(failure.ShutdownTimeout, "rotation.stop", ctx.Err())
	}
}

// cronLogger routes cron's own diagnostics through slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("cron: "+msg, append(kv, "err", err)...)
}
