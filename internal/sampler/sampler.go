// Package sampler runs the fixed-rate polling loop: measure, persist,
// sleep. A failed cycle is logged and recorded as a sentinel row.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"labmon/internal/convert"
	"labmon/internal/failure"
	"labmon/internal/logging"
	"labmon/internal/record"
	"labmon/internal/telemetry"
	"labmon/source"
)

// Appender persists one row of values; the sink stamps the time.
type Appender interface {
	Append(values []float64) error
}

type Config struct {
	Interval    time.Duration
	Arity       int       // value columns per record
	ErrorValues []float64 // sentinel row; -1 per column when empty
	Convert     convert.Func
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

type Sampler struct {
	m   source.Measurer
	out Appender
	cfg Config
	log *slog.Logger
}

func New(m source.Measurer, out Appender, cfg Config) (*Sampler, error) {
	if m == nil || out == nil {
		return nil, errors.New("sampler: measurer and appender are required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("sampler: interval must be positive, got %s", cfg.Interval)
	}
	if cfg.Arity <= 0 {
		return nil, fmt.Errorf("sampler: arity must be positive, got %d", cfg.Arity)
	}
	if len(cfg.ErrorValues) == 0 {
		cfg.ErrorValues = record.Fill(cfg.Arity, -1)
	}
	if len(cfg.ErrorValues) != cfg.Arity {
		return nil, fmt.Errorf("sampler: %d error values for %d columns", len(cfg.ErrorValues), cfg.Arity)
	}
	if cfg.Convert == nil {
		cfg.Convert, _ = convert.Lookup(convert.Raw)
	}
	return &Sampler{m: m, out: out, cfg: cfg, log: logging.Or(cfg.Logger)}, nil
}

// Run loops until ctx is cancelled and then returns nil. Every cycle
// sleeps the full interval whatever its outcome.
func (s *Sampler) Run(ctx context.Context) error {
	s.log.Info("sampler started", "interval", s.cfg.Interval, "arity", s.cfg.Arity)
	defer s.log.Info("sampler stopped")

	for ctx.Err() == nil {
		err := s.cycle(ctx)
		if err == nil {
			s.cfg.Metrics.IncCycle("ok")
			if !sleep(ctx, s.cfg.Interval) {
				return nil
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		s.cfg.Metrics.IncCycle("error")
		s.log.Error("cycle failed", "op", "sample", "kind", failure.KindOf(err), "err", err)
		if !sleep(ctx, s.cfg.Interval) {
			return nil
		}
		if err := s.out.Append(s.cfg.ErrorValues); err != nil {
			s.log.Error("sentinel append failed", "op", "sample", "err", err)
		}
	}
	return nil
}

func (s *Sampler) cycle(ctx context.Context) error {
	raw, err := s.m.Measure(ctx)
	if err != nil {
		return failure.New(failure.Measurement, "measure", err)
	}
	values, err := s.cfg.Convert(raw)
	if err != nil {
		return failure.New(failure.Measurement, "convert", err)
	}
	if len(values) != s.cfg.Arity {
		return failure.Errorf(failure.Measurement, "measure", "got %d values, want %d", len(values), s.cfg.Arity)
	}
	return s.out.Append(values)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
