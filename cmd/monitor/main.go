package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"labmon/internal/engine"
	"labmon/internal/failure"
	"labmon/internal/logging"
	"labmon/source"
	"labmon/source/kafka"
	"labmon/source/sim"
	"labmon/source/terranova"
)

func main() {
	path := flag.String("config", envOr("LABMON_CONFIG", "monitor.yml"), "monitor file")
	grpcPort := flag.Int("grpc-port", 0, "control server port (overrides control.grpc_port)")
	metricsAddr := flag.String("metrics-addr", "", "metrics listen address (overrides metrics.addr)")
	flag.Parse()

	logging.InitFromEnv(logging.Options{})

	source.Register("sim", func() source.Adapter { return &sim.Driver{} })
	source.Register("terranova", func() source.Adapter { return &terranova.Driver{} })
	source.Register("kafka", func() source.Adapter { return &kafka.SaramaDriver{} })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.Bootstrap(ctx, engine.Config{
		MonitorYml:  *path,
		GRPCPort:    *grpcPort,
		MetricsAddr: *metricsAddr,
	})
	if err != nil {
		logging.L().Error("bootstrap failed", "kind", failure.KindOf(err), "err", err)
		os.Exit(1)
	}

	if err := e.Run(ctx); err != nil {
		logging.L().Error("engine stopped with errors", "err", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
