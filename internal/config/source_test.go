package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSourceConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "terranova.yml", `schema_version: v1
address: 10.0.0.5:4001
timeout: 500ms
`)
	t.Setenv("LABMON_SOURCE__ADDRESS", "127.0.0.1:4001")
	t.Setenv("LABMON_SOURCE__TLS__ENABLED", "true")

	k, err := LoadSourceConfig(p)
	if err != nil {
		t.Fatalf("LoadSourceConfig: %v", err)
	}
	if got := k.String("address"); got != "127.0.0.1:4001" {
		t.Fatalf("env override lost: address=%q", got)
	}
	if got := k.Duration("timeout"); got != 500*time.Millisecond {
		t.Fatalf("timeout = %s", got)
	}
	if !k.Bool("tls.enabled") {
		t.Fatal("nested env key not mapped")
	}
}

func TestLoadSourceConfig_MissingFileIsEmpty(t *testing.T) {
	k, err := LoadSourceConfig(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("missing file should be tolerated: %v", err)
	}
	if len(k.Keys()) != 0 {
		t.Fatalf("unexpected keys %v", k.Keys())
	}
}

func TestLoadSourceConfig_InvalidSchema(t *testing.T) {
	p := writeFile(t, t.TempDir(), "src.yml", "schema_version: v2\n")
	if _, err := LoadSourceConfig(p); err == nil {
		t.Fatal("expected schema error")
	}
}
