package telemetry

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.IncWritten(3)
	if got := testutil.ToFloat64(m.RowsWritten); got != 3 {
		t.Fatalf("rows written = %f, want 3", got)
	}
	m.SetBackup(7)
	if got := testutil.ToFloat64(m.BackupRecords); got != 7 {
		t.Fatalf("backup gauge = %f, want 7", got)
	}
	m.IncCycle("error")
	m.IncCycle("error")
	if got := testutil.ToFloat64(m.Cycles.WithLabelValues("error")); got != 2 {
		t.Fatalf("error cycles = %f, want 2", got)
	}
	m.ObserveAppend(time.Millisecond)
	if n := testutil.CollectAndCount(m.AppendLatency); n != 1 {
		t.Fatalf("latency histogram series = %d, want 1", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncWritten(1)
	m.IncRejected()
	m.SetBackup(1)
	m.IncBackupDropped(1)
	m.IncRotation()
	m.IncRotationError()
	m.IncMirrorError()
	m.ObserveAppend(time.Second)
	m.IncCycle("ok")
	m.IncPackets(1)
	m.IncMissed(1)
	m.IncStreamDropped()
	m.SetQueueLen(1)
}

func TestExposeServesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.IncRotation()

	srv, err := Expose("127.0.0.1:0", reg)
	if err != nil {
		t.Fatalf("Expose: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	body := get(t, "http://"+srv.Addr()+"/metrics")
	if !strings.Contains(body, "labmon_rotations_total 1") {
		t.Fatalf("metrics output missing rotation counter:\n%s", body)
	}
	if got := get(t, "http://"+srv.Addr()+"/healthz"); got != "ok" {
		t.Fatalf("healthz = %q", got)
	}
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return string(b)
}
