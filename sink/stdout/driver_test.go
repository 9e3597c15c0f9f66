package stdout

import (
	"bytes"
	"testing"
	"time"

	"labmon/internal/record"
	"labmon/sink"
)

func TestRegisteredAndConfigured(t *testing.T) {
	a, err := sink.NewAdapter("stdout")
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if err := a.Configure("nope"); err == nil {
		t.Fatal("expected config type error")
	}
	if err := a.Configure(Config{PrintCounter: true}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
}

func TestPushFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	d := &driver{out: &buf}
	_ = d.Configure(Config{PrintCounter: true, PrintHeaders: true})

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	headers := []string{"Timestamp", "Pressure (Torr)", "Voltage (V)"}
	if err := d.Push(headers, record.New(ts, []float64{1.5, 0.25})); err != nil {
		t.Fatalf("Push: %v", err)
	}
	want := "[sink 000001] 2025-01-02 03:04:05 Pressure (Torr)=1.5 Voltage (V)=0.25\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}
