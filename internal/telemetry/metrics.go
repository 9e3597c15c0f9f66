package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"labmon/internal/logging"
)

// Metrics is the acquisition metric set. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RowsWritten    prometheus.Counter
	RowsRejected   prometheus.Counter
	BackupRecords  prometheus.Gauge
	BackupDropped  prometheus.Counter
	Rotations      prometheus.Counter
	RotationErrors prometheus.Counter
	MirrorErrors   prometheus.Counter
	AppendLatency  prometheus.Histogram

	Cycles *prometheus.CounterVec

	StreamPackets  prometheus.Counter
	StreamMissed   prometheus.Counter
	StreamDropped  prometheus.Counter
	StreamQueueLen prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmon_rows_written_total",
			Help: "Rows appended to the current destination.",
		}),
		RowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmon_rows_rejected_total",
			Help: "Rows refused because their arity did not match the headers.",
		}),
		BackupRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labmon_backup_records",
			Help: "Records waiting in the backup buffer.",
		}),
		BackupDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmon_backup_dropped_total",
			Help: "Oldest backup records evicted because the buffer was full.",
		}),
		Rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmon_rotations_total",
			Help: "Destination rotations performed.",
		}),
		RotationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmon_rotation_errors_total",
			Help: "Scheduled rotations that failed.",
		}),
		MirrorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmon_mirror_errors_total",
			Help: "Records a mirror failed to accept.",
		}),
		AppendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "labmon_append_latency_seconds",
			Help:    "Time spent appending a row, backlog included.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labmon_sample_cycles_total",
			Help: "Sampling cycles by result.",
		}, []string{"result"}),
		StreamPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmon_stream_packets_total",
			Help: "Packets received from the streaming device.",
		}),
		StreamMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmon_stream_missed_samples_total",
			Help: "Samples the device reported as missed.",
		}),
		StreamDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmon_stream_dropped_total",
			Help: "Packets discarded because the queue was full.",
		}),
		StreamQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labmon_stream_queue_length",
			Help: "Packets waiting for the consumer.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.RowsWritten, m.RowsRejected, m.BackupRecords, m.BackupDropped,
			m.Rotations, m.RotationErrors, m.MirrorErrors, m.AppendLatency, m.Cycles,
			m.StreamPackets, m.StreamMissed, m.StreamDropped, m.StreamQueueLen,
		)
	}
	return m
}

func (m *Metrics) IncWritten(n int) {
	if m != nil {
		m.RowsWritten.Add(float64(n))
	}
}

func (m *Metrics) IncRejected() {
	if m != nil {
		m.RowsRejected.Inc()
	}
}

func (m *Metrics) SetBackup(n int) {
	if m != nil {
		m.BackupRecords.Set(float64(n))
	}
}

func (m *Metrics) IncBackupDropped(n int) {
	if m != nil {
		m.BackupDropped.Add(float64(n))
	}
}

func (m *Metrics) IncRotation() {
	if m != nil {
		m.Rotations.Inc()
	}
}

func (m *Metrics) IncRotationError() {
	if m != nil {
		m.RotationErrors.Inc()
	}
}

func (m *Metrics) IncMirrorError() {
	if m != nil {
		m.MirrorErrors.Inc()
	}
}

func (m *Metrics) ObserveAppend(d time.Duration) {
	if m != nil {
		m.AppendLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncCycle(result string) {
	if m != nil {
		m.Cycles.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncPackets(n int) {
	if m != nil {
		m.StreamPackets.Add(float64(n))
	}
}

func (m *Metrics) IncMissed(n int) {
	if m != nil {
		m.StreamMissed.Add(float64(n))
	}
}

func (m *Metrics) IncStreamDropped() {
	if m != nil {
		m.StreamDropped.Inc()
	}
}

func (m *Metrics) SetQueueLen(n int) {
	if m != nil {
		m.StreamQueueLen.Set(float64(n))
	}
}

// Server serves /metrics and /healthz.
type Server struct {
	srv *http.Server
	lis net.Listener
}

// Expose starts the metrics endpoint on addr in the background.
func Expose(addr string, g prometheus.Gatherer) (*Server, error) {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		lis: lis,
	}
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics server exited", "err", err)
		}
	}()
	return s, nil
}

func (s *Server) Addr() string { return s.lis.Addr().String() }

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
