// Package stream decouples a high-rate device from disk: a producer
// validates packets onto a bounded queue, one consumer persists them.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"labmon/internal/convert"
	"labmon/internal/failure"
	"labmon/internal/logging"
	"labmon/internal/telemetry"
	"labmon/source"
)

const (
	Block = "block"
	Drop  = "drop"
)

var errMaxRequests = errors.New("stream: max requests reached")

type Appender interface {
	Append(values []float64) error
}

type Config struct {
	QueueCapacity     int
	OnQueueFull       string // Block or Drop
	PacketsPerRequest int    // expected NumPackets per batch; fewer is an underflow
	MaxRequests       int    // 0 streams until ctx ends
	SamplesPerPacket  int
	Channels          int
	Metrics           *telemetry.Metrics
	Logger            *slog.Logger
}

type Pipeline struct {
	src  source.Streamer
	conv convert.Func
	out  Appender
	cfg  Config
	log  *slog.Logger

	queue  chan source.Packet
	emitMu sync.Mutex // drivers may emit from several goroutines
	stats  Stats
}

func New(src source.Streamer, conv convert.Func, out Appender, cfg Config) (*Pipeline, error) {
	if src == nil || out == nil {
		return nil, errors.New("stream: source and appender are required")
	}
	if conv == nil {
		conv, _ = convert.Lookup(convert.Raw)
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	switch cfg.OnQueueFull {
	case "":
		cfg.OnQueueFull = Block
	case Block, Drop:
	default:
		return nil, fmt.Errorf("stream: on_queue_full %q must be %s or %s", cfg.OnQueueFull, Block, Drop)
	}
	if cfg.PacketsPerRequest <= 0 {
		cfg.PacketsPerRequest = 1
	}
	if cfg.SamplesPerPacket <= 0 {
		cfg.SamplesPerPacket = 25
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Pipeline{
		src:   src,
		conv:  conv,
		out:   out,
		cfg:   cfg,
		log:   logging.Or(cfg.Logger),
		queue: make(chan source.Packet, cfg.QueueCapacity),
	}, nil
}

// Run streams until ctx ends, MaxRequests is reached or the device stops,
// then waits for the consumer to drain the queue. A Pipeline runs once.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	p.stats = Stats{
		SamplesPerPacket: p.cfg.SamplesPerPacket,
		Channels:         p.cfg.Channels,
		Start:            time.Now(),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.consume()
	}()

	err := p.src.Stream(ctx, func(pk source.Packet) error { return p.emit(ctx, pk) })
	close(p.queue) // end of stream
	wg.Wait()
	p.stats.Stop = time.Now()

	switch {
	case errors.Is(err, errMaxRequests), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		err = nil
	case err != nil:
		err = failure.New(failure.Measurement, "stream", err)
		p.log.Error("stream ended", "op", "stream", "err", err)
	}
	p.stats.log(p.log)
	return p.stats, err
}

func (p *Pipeline) emit(ctx context.Context, pk source.Packet) error {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	if p.cfg.MaxRequests > 0 && p.stats.Requests >= p.cfg.MaxRequests {
		return errMaxRequests
	}
	if pk.Received.IsZero() {
		pk.Received = time.Now()
	}

	if pk.Errors != 0 {
		p.stats.Errors += pk.Errors
		p.log.Warn("device reported errors", "op", "stream", "errors", pk.Errors)
	}
	if pk.NumPackets != p.cfg.PacketsPerRequest {
		p.stats.Underflows++
		p.log.Warn("underflow", "op", "stream", "packets", pk.NumPackets, "want", p.cfg.PacketsPerRequest)
	}
	if pk.Missed != 0 {
		p.stats.Missed += pk.Missed
		p.cfg.Metrics.IncMissed(pk.Missed)
		p.log.Warn("samples missed", "op", "stream", "missed", pk.Missed)
	}
	p.stats.Requests++
	p.stats.Packets += pk.NumPackets
	p.cfg.Metrics.IncPackets(pk.NumPackets)

	if p.cfg.OnQueueFull == Drop {
		select {
		case p.queue <- pk:
		default:
			p.stats.Dropped++
			p.cfg.Metrics.IncStreamDropped()
			p.log.Warn("queue full, packet dropped", "op", "stream", "capacity", p.cfg.QueueCapacity)
		}
	} else {
		select {
		case p.queue <- pk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.cfg.Metrics.SetQueueLen(len(p.queue))
	return nil
}

// consume is the only writer: packets reach the sink in enqueue order.
func (p *Pipeline) consume() {
	for pk := range p.queue {
		p.cfg.Metrics.SetQueueLen(len(p.queue))
		if len(pk.Samples) == 0 {
			p.stats.Empty++
			p.log.Warn("no data in packet", "op", "stream", "received", pk.Received)
			continue
		}
		// the newest sample stands for the whole batch
		values, err := p.conv(pk.Samples[len(pk.Samples)-1:])
		if err != nil {
			p.stats.Rejected++
			p.log.Error("conversion failed", "op", "stream", "err", err)
			continue
		}
		if err := p.out.Append(values); err != nil {
			p.stats.Rejected++
			p.log.Error("append failed", "op", "stream", "kind", failure.KindOf(err), "err", err)
			continue
		}
		p.stats.Consumed++
	}
}
