package stream

import (
	"log/slog"
	"time"
)

// Stats summarises one stream run.
type Stats struct {
	Requests   int // batches received from the device
	Packets    int // device packets across all batches
	Errors     int
	Underflows int
	Missed     int // samples the device reported lost
	Dropped    int // batches discarded on a full queue
	Empty      int // batches carrying no samples
	Consumed   int // batches persisted
	Rejected   int // batches the sink or conversion refused

	SamplesPerPacket int
	Channels         int
	Start, Stop      time.Time
}

func (s Stats) SampleTotal() int { return s.Packets * s.SamplesPerPacket }

// AdjustedSamples discounts samples lost to device errors.
func (s Stats) AdjustedSamples() int { return s.SampleTotal() - s.Missed }

func (s Stats) Duration() time.Duration { return s.Stop.Sub(s.Start) }

// ScanRate is scans per second over the run; one scan reads every channel once.
func (s Stats) ScanRate() float64 {
	secs := s.Duration().Seconds()
	if secs <= 0 || s.Channels == 0 {
		return 0
	}
	return float64(s.SampleTotal()) / float64(s.Channels) / secs
}

func (s Stats) SampleRate() float64 {
	secs := s.Duration().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.AdjustedSamples()) / secs
}

func (s Stats) log(l *slog.Logger) {
	l.Info("stream summary",
		"requests", s.Requests,
		"packets", s.Packets,
		"samples", s.SampleTotal(),
		"missed", s.Missed,
		"adjusted", s.AdjustedSamples(),
		"dropped", s.Dropped,
		"consumed", s.Consumed,
		"duration", s.Duration(),
		"scan_rate_hz", s.ScanRate(),
		"sample_rate_hz", s.SampleRate(),
	)
}
