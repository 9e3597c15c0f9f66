package source

import (
	"context"
	"time"

	"github.com/knadh/koanf/v2"
)

// Adapter is the lifecycle every device driver exposes.
type Adapter interface {
	Configure(*koanf.Koanf) error // driver section of the source config
	Open(context.Context) error   // connect to the device; failure is fatal for the monitor
	Close() error                 // idempotent
}

// Measurer is the polling capability: one reading per call, one value per
// declared header. Returning an error marks the cycle as failed.
type Measurer interface {
	Measure(context.Context) ([]float64, error)
}

// MeasureFunc adapts a closure to Measurer.
type MeasureFunc func(context.Context) ([]float64, error)

func (f MeasureFunc) Measure(ctx context.Context) ([]float64, error) { return f(ctx) }

// Packet is one batch from a streaming device.
type Packet struct {
	Samples    []float64 // raw readings, oldest first
	NumPackets int       // device packets folded into this batch
	Errors     int       // device-side error count
	Missed     int       // samples the device dropped
	Received   time.Time
}

type EmitFunc func(Packet) error

// Streamer is the high-rate capability: Stream pushes batches to emit until
// ctx ends, emit fails, or the device stops.
type Streamer interface {
	Stream(context.Context, EmitFunc) error
}
