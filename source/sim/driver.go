// Package sim is a stand-in device for exercising a monitor without hardware.
// It produces noisy voltages around a set point and fails a configurable
// fraction of reads.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/knadh/koanf/v2"

	"labmon/source"
)

var ErrSimulatedRead = errors.New("sim: simulated read failure")

type Config struct {
	Channels          int     `koanf:"channels"`            // values per reading
	Volts             float64 `koanf:"volts"`               // set point
	Noise             float64 `koanf:"noise"`               // uniform +/- noise
	FailRatio         float64 `koanf:"fail_ratio"`          // 0..1
	Seed              uint64  `koanf:"seed"`                // 0 = time based
	ScanFrequency     float64 `koanf:"scan_frequency"`      // samples per second when streaming
	SamplesPerPacket  int     `koanf:"samples_per_packet"`  // device packet size
	PacketsPerRequest int     `koanf:"packets_per_request"` // packets folded into one batch
}

func applyDefaults(c *Config) {
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.Volts == 0 {
		c.Volts = 3
	}
	if c.ScanFrequency == 0 {
		c.ScanFrequency = 100
	}
	if c.SamplesPerPacket == 0 {
		c.SamplesPerPacket = 25
	}
	if c.PacketsPerRequest == 0 {
		c.PacketsPerRequest = 1
	}
}

type Driver struct {
	cfg Config

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rnd *rand.Rand
}

func (d *Driver) Configure(k *koanf.Koanf) error {
	var cfg Config
	if k != nil {
		if err := k.Unmarshal("", &cfg); err != nil {
			return err
		}
	}
	applyDefaults(&cfg)
	if cfg.FailRatio < 0 || cfg.FailRatio > 1 {
		return fmt.Errorf("sim: fail_ratio %v outside [0,1]", cfg.FailRatio)
	}
	if cfg.Channels < 0 || cfg.ScanFrequency < 0 {
		return fmt.Errorf("sim: channels and scan_frequency must be positive")
	}
	d.cfg = cfg
	return nil
}

func (d *Driver) Open(context.Context) error {
	seed := d.cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if d.cfg.Channels == 0 {
		applyDefaults(&d.cfg)
	}
	d.rnd = rand.New(rand.NewPCG(seed, seed>>1|1))
	return nil
}

func (d *Driver) Close() error { return nil }

func (d *Driver) Measure(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rnd.Float64() < d.cfg.FailRatio {
		return nil, ErrSimulatedRead
	}
	out := make([]float64, d.cfg.Channels)
	for i := range out {
		out[i] = d.sampleLocked()
	}
	return out, nil
}

func (d *Driver) sampleLocked() float64 {
	return d.cfg.Volts + (d.rnd.Float64()*2-1)*d.cfg.Noise
}

// Stream emits one batch every PacketsPerRequest*SamplesPerPacket/ScanFrequency.
func (d *Driver) Stream(ctx context.Context, emit source.EmitFunc) error {
	n := d.cfg.SamplesPerPacket * d.cfg.PacketsPerRequest
	period := time.Duration(float64(n) / d.cfg.ScanFrequency * float64(time.Second))
	t := time.NewTicker(period)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			p := source.Packet{NumPackets: d.cfg.PacketsPerRequest, Received: now}
			d.mu.Lock()
			if d.rnd.Float64() < d.cfg.FailRatio {
				p.Errors = 1
				p.Missed = d.cfg.SamplesPerPacket
			}
			p.Samples = make([]float64, 0, n)
			for i := p.Missed; i < n; i++ {
				p.Samples = append(p.Samples, d.sampleLocked())
			}
			d.mu.Unlock()
			if err := emit(p); err != nil {
				return err
			}
		}
	}
}
