package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadMonitorSpec_DefaultsAndPaths(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "monitor.yml", `schema_version: v1
headers: ["Pressure (Torr)", "Voltage (V)"]
output:
  prefix: data/ion_gauge_pressure_data
source:
  kind: sim
  config: sim.yml
sampling:
  interval: 5s
`)

	cfg, src, err := LoadMonitorSpec(p)
	if err != nil {
		t.Fatalf("LoadMonitorSpec: %v", err)
	}
	if cfg.Sampling.Interval != 5*time.Second {
		t.Fatalf("interval = %s", cfg.Sampling.Interval)
	}
	if cfg.Rotation.At != "00:00" || cfg.Rotation.Every != 0 {
		t.Fatalf("rotation default = %+v", cfg.Rotation)
	}
	if !reflect.DeepEqual(cfg.Sampling.ErrorValues, []float64{-1, -1}) {
		t.Fatalf("error values default = %v", cfg.Sampling.ErrorValues)
	}
	if cfg.Source.Mode != ModePoll || cfg.Source.Convert != "raw" {
		t.Fatalf("source defaults = %+v", cfg.Source)
	}
	if cfg.Output.NameLayout != "datetime" || cfg.Output.BackupLimit != 10_000 {
		t.Fatalf("output defaults = %+v", cfg.Output)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("shutdown timeout = %s", cfg.ShutdownTimeout)
	}
	if src != filepath.Join(dir, "sim.yml") {
		t.Fatalf("source config path = %q", src)
	}
	if cfg.Output.Prefix != filepath.Join(dir, "data", "ion_gauge_pressure_data") {
		t.Fatalf("prefix = %q", cfg.Output.Prefix)
	}
}

func TestLoadMonitorSpec_InvalidSchema(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "monitor.yml", `schema_version: v999
headers: [a]
output: { prefix: x }
source: { kind: sim }
`)
	if _, _, err := LoadMonitorSpec(p); err == nil {
		t.Fatal("expected error for invalid schema_version")
	}
}

func TestLoadMonitorSpec_Rejects(t *testing.T) {
	cases := map[string]string{
		"no headers":     "output: { prefix: x }\nsource: { kind: sim }\n",
		"no prefix":      "headers: [a]\nsource: { kind: sim }\n",
		"no kind":        "headers: [a]\noutput: { prefix: x }\n",
		"both rotations": "headers: [a]\noutput: { prefix: x }\nsource: { kind: sim }\nrotation: { at: \"00:00\", every: 1h }\n",
		"bad mode":       "headers: [a]\noutput: { prefix: x }\nsource: { kind: sim, mode: burst }\n",
		"bad sentinel":   "headers: [a, b]\noutput: { prefix: x }\nsource: { kind: sim }\nsampling: { error_values: [-1] }\n",
		"bad queue":      "headers: [a]\noutput: { prefix: x }\nsource: { kind: sim }\nstream: { on_queue_full: spill }\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := writeFile(t, t.TempDir(), "monitor.yml", body)
			if _, _, err := LoadMonitorSpec(p); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
