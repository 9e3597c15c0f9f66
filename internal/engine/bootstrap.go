package engine

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"labmon/internal/config"
	"labmon/internal/failure"
	"labmon/internal/logging"
	"labmon/internal/pipeline"
	"labmon/internal/telemetry"
	"labmon/internal/transport"
)

// Config points the engine at a monitor file. Non-zero ports override the
// file's control and metrics sections.
type Config struct {
	MonitorYml  string
	GRPCPort    int
	MetricsAddr string
}

// Bootstrap compiles the monitor, binds the control and metrics endpoints
// and starts acquisition. Any failure here is an init failure and nothing
// is left running.
func Bootstrap(ctx context.Context, cfg Config) (*Engine, error) {
	// 1. monitor file: logging first so later steps log in its format
	file, _, err := config.LoadMonitorSpec(cfg.MonitorYml)
	if err != nil {
		return nil, failure.New(failure.Init, "load "+cfg.MonitorYml, err)
	}
	logging.InitFromEnv(file.Log)
	log := logging.L()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	// 2. acquisition graph
	runner, err := pipeline.Compile(cfg.MonitorYml,
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	e := &Engine{runner: runner, timeout: file.ShutdownTimeout, log: log}

	// 3. control plane
	port := cfg.GRPCPort
	if port == 0 {
		port = file.Control.GRPCPort
	}
	if port != 0 {
		if e.transport, err = transport.StartServer(port); err != nil {
			return nil, e.abort(failure.New(failure.Init, "transport", err))
		}
	}

	// 4. metrics
	addr := cfg.MetricsAddr
	if addr == "" {
		addr = file.Metrics.Addr
	}
	if addr != "" {
		if e.metrics, err = telemetry.Expose(addr, reg); err != nil {
			return nil, e.abort(failure.New(failure.Init, "metrics", err))
		}
		log.Info("metrics exposed", "addr", e.metrics.Addr())
	}

	// 5. go
	if err := runner.Start(ctx); err != nil {
		return nil, e.abort(err)
	}
	return e, nil
}

// abort releases whatever Bootstrap already acquired.
func (e *Engine) abort(cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	return errors.Join(cause, e.shutdown(ctx))
}
