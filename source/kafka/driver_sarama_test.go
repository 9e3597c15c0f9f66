package kafka

import (
	"testing"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
)

func TestDecodePacket(t *testing.T) {
	ts := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	p, err := DecodePacket([]byte(`{"samples":[1.1,1.2,1.3],"errors":2,"missed":5}`), ts)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if len(p.Samples) != 3 || p.Samples[2] != 1.3 {
		t.Fatalf("samples = %v", p.Samples)
	}
	if p.NumPackets != 1 || p.Errors != 2 || p.Missed != 5 || !p.Received.Equal(ts) {
		t.Fatalf("packet = %+v", p)
	}
}

func TestDecodePacketRejects(t *testing.T) {
	for _, in := range []string{`not json`, `{"samples":[]}`} {
		if _, err := DecodePacket([]byte(in), time.Time{}); err == nil {
			t.Fatalf("DecodePacket(%q) should fail", in)
		}
	}
}

func TestConfigureDefaults(t *testing.T) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]any{
		"brokers": []string{"localhost:9092"},
		"topics":  []string{"daq.packets"},
	}, "."), nil); err != nil {
		t.Fatal(err)
	}
	d := &SaramaDriver{}
	if err := d.Configure(k); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if d.cfg.StartFrom != "newest" || d.cfg.GroupID != "labmon" || d.sc == nil {
		t.Fatalf("defaults not applied: %+v", d.cfg)
	}
}

func TestConfigureRequiresBrokers(t *testing.T) {
	if err := (&SaramaDriver{}).Configure(koanf.New(".")); err == nil {
		t.Fatal("expected error without brokers")
	}
}
