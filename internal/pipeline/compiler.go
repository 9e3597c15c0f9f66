package pipeline

import (
	"fmt"
	"log/slog"

	"labmon/internal/config"
	"labmon/internal/convert"
	"labmon/internal/failure"
	"labmon/internal/rotation"
	"labmon/internal/sampler"
	"labmon/internal/spec"
	"labmon/internal/stream"
	"labmon/internal/telemetry"
	"labmon/sink"
	"labmon/sink/csvfile"
	"labmon/source"
)

type Option func(*Runner)

func WithMetrics(m *telemetry.Metrics) Option { return func(r *Runner) { r.metrics = m } }
func WithLogger(l *slog.Logger) Option        { return func(r *Runner) { r.log = l } }

// Compile loads a monitor file and wires its acquisition graph. Nothing
// runs until Start. Every error is an init failure.
func Compile(path string, opts ...Option) (*Runner, error) {
	cfg, confPath, err := config.LoadMonitorSpec(path)
	if err != nil {
		return nil, failure.New(failure.Init, "load "+path, err)
	}
	r := NewRunner(opts...)
	if err := r.load(cfg, confPath); err != nil {
		r.release()
		return nil, failure.New(failure.Init, "compile "+path, err)
	}
	return r, nil
}

func (r *Runner) load(cfg spec.File, confPath string) error {
	r.spec = cfg

	kc, err := config.LoadSourceConfig(confPath)
	if err != nil {
		return err
	}
	src, err := source.NewAdapter(cfg.Source.Kind)
	if err != nil {
		return err
	}
	if err := src.Configure(kc); err != nil {
		return fmt.Errorf("source %s: %w", cfg.Source.Kind, err)
	}
	conv, err := convert.Build(cfg.Source.Convert, cfg.Source.Thermistor)
	if err != nil {
		return err
	}

	mirrors, err := r.mirrors(cfg)
	r.mirrorSet = mirrors
	if err != nil {
		return err
	}

	policy, err := rotation.ParsePolicy(cfg.Rotation.At, cfg.Rotation.Every, cfg.Rotation.Location)
	if err != nil {
		return err
	}
	out, err := csvfile.Open(cfg.Headers, cfg.Output.Prefix,
		csvfile.WithNameLayout(cfg.Output.NameLayout),
		csvfile.WithBackupLimit(cfg.Output.BackupLimit),
		csvfile.WithLocation(policy.Location),
		csvfile.WithMetrics(r.metrics),
		csvfile.WithLogger(r.log),
		csvfile.WithMirrors(mirrors...),
	)
	if err != nil {
		return err
	}
	r.sink = out

	r.sched, err = rotation.NewScheduler(out, policy, r.log, rotation.WithMetrics(r.metrics))
	if err != nil {
		return err
	}

	switch cfg.Source.Mode {
	case config.ModePoll:
		m, ok := src.(source.Measurer)
		if !ok {
			return fmt.Errorf("source %s cannot be polled", cfg.Source.Kind)
		}
		s, err := sampler.New(m, out, sampler.Config{
			Interval:    cfg.Sampling.Interval,
			Arity:       len(cfg.Headers),
			ErrorValues: cfg.Sampling.ErrorValues,
			Convert:     conv,
			Metrics:     r.metrics,
			Logger:      r.log,
		})
		if err != nil {
			return err
		}
		r.work = s.Run

	case config.ModeStream:
		st, ok := src.(source.Streamer)
		if !ok {
			return fmt.Errorf("source %s cannot stream", cfg.Source.Kind)
		}
		p, err := stream.New(st, conv, out, stream.Config{
			QueueCapacity:     cfg.Stream.QueueCapacity,
			OnQueueFull:       cfg.Stream.OnQueueFull,
			PacketsPerRequest: cfg.Stream.PacketsPerRequest,
			MaxRequests:       cfg.Stream.MaxRequests,
			SamplesPerPacket:  cfg.Stream.SamplesPerPacket,
			Channels:          cfg.Stream.Channels,
			Metrics:           r.metrics,
			Logger:            r.log,
		})
		if err != nil {
			return err
		}
		r.work = r.streamWork(p)
	}
	r.src = src
	return nil
}

func (r *Runner) mirrors(cfg spec.File) ([]sink.Adapter, error) {
	var out []sink.Adapter
	for _, name := range cfg.Mirrors {
		a, err := sink.NewAdapter(name)
		if err != nil {
			return out, err
		}
		switch name {
		case "stdout":
			err = a.Configure(cfg.MirrorConfigs.Stdout)
		case "kafka":
			err = a.Configure(cfg.MirrorConfigs.Kafka)
		default:
			err = fmt.Errorf("no config block for mirror %q", name)
		}
		if err != nil {
			_ = a.Close()
			return out, fmt.Errorf("mirror %s: %w", name, err)
		}
		out = append(out, a)
	}
	return out, nil
}
