package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"labmon/internal/failure"
	"labmon/source"
	"labmon/source/sim"
)

func init() {
	source.Register("sim", func() source.Adapter { return &sim.Driver{} })
}

func monitorFile(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := `schema_version: v1
log: {level: error}
headers: ["Voltage (V)"]
output: {prefix: data/volts}
source: {kind: sim}
sampling: {interval: 20ms}
shutdown_timeout: 2s
` + extra
	p := filepath.Join(dir, "monitor.yml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEngine_RunUntilCancelled(t *testing.T) {
	path := monitorFile(t, "metrics: {addr: \"127.0.0.1:0\"}\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := Bootstrap(ctx, Config{MonitorYml: path})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", e.metrics.Addr()))
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "labmon_rows_written_total") {
		t.Fatal("metrics missing labmon_rows_written_total")
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	time.Sleep(80 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	raw, err := os.ReadFile(e.runner.Sink().Current())
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(raw), "\n"); lines < 2 {
		t.Fatalf("file has %d lines", lines)
	}
}

func TestBootstrap_InitFailure(t *testing.T) {
	_, err := Bootstrap(context.Background(), Config{MonitorYml: filepath.Join(t.TempDir(), "missing.yml")})
	if !failure.Is(err, failure.Init) {
		t.Fatalf("err = %v, want init failure", err)
	}
}

func TestSplitTimeouts(t *testing.T) {
	boom := errors.New("boom")
	slow := failure.New(failure.ShutdownTimeout, "runner.wait", context.DeadlineExceeded)

	timeouts, rest := splitTimeouts(errors.Join(boom, errors.Join(slow, nil)))
	if !errors.Is(rest, boom) || len(timeouts) != 1 {
		t.Fatalf("rest=%v timeouts=%v", rest, timeouts)
	}
	if timeouts, rest := splitTimeouts(slow); rest != nil || len(timeouts) != 1 {
		t.Fatalf("rest=%v timeouts=%v", rest, timeouts)
	}
	if _, rest := splitTimeouts(nil); rest != nil {
		t.Fatal("nil should stay nil")
	}
}
