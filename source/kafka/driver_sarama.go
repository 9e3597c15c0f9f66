package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/knadh/koanf/v2"

	"labmon/internal/logging"
	"labmon/source"
)

// SaramaDriver streams device packets published on Kafka by a networked DAQ.
// Each message value is one JSON packet.
type SaramaDriver struct {
	cfg   Config
	sc    *sarama.Config
	cl    sarama.Client
	group sarama.ConsumerGroup
}

// wirePacket is the JSON shape of a packet on the topic.
type wirePacket struct {
	Samples    []float64 `json:"samples"`
	NumPackets int       `json:"num_packets"`
	Errors     int       `json:"errors"`
	Missed     int       `json:"missed"`
}

func (d *SaramaDriver) Configure(k *koanf.Koanf) error {
	config, err := FromKoanf(k)
	if err != nil {
		return err
	}
	d.cfg = config

	ver, err := sarama.ParseKafkaVersion(config.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	if config.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}
	switch config.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	d.sc = sc
	return nil
}

func (d *SaramaDriver) Open(context.Context) error {
	var err error
	if d.cl, err = sarama.NewClient(d.cfg.Brokers, d.sc); err != nil {
		return err
	}
	d.group, err = sarama.NewConsumerGroupFromClient(d.cfg.GroupID, d.cl)
	return err
}

func (d *SaramaDriver) Stream(ctx context.Context, emit source.EmitFunc) error {
	handler := &groupHandler{emit: emit}

	go func() {
		for err := range d.group.Errors() {
			logging.L().Warn("sarama-driver: consumer error", "err", err)
		}
	}()

	for {
		if err := d.group.Consume(ctx, d.cfg.Topics, handler); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := handler.failure(); err != nil {
			return err
		}
	}
}

func (d *SaramaDriver) Close() error {
	if d.group != nil {
		_ = d.group.Close()
	}
	if d.cl != nil && !d.cl.Closed() {
		_ = d.cl.Close()
	}
	return nil
}

type groupHandler struct {
	emit source.EmitFunc

	mu  sync.Mutex // claims run concurrently
	err error
}

func (h *groupHandler) fail(err error) {
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
}

func (h *groupHandler) failure() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (*groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(
	sess sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			p, err := DecodePacket(msg.Value, msg.Timestamp)
			if err != nil {
				logging.L().Warn("sarama-driver: bad packet skipped",
					"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
				sess.MarkMessage(msg, "")
				continue
			}
			if err := h.emit(p); err != nil {
				h.fail(err)
				return err
			}
			sess.MarkMessage(msg, "")
		}
	}
}

// DecodePacket parses one JSON packet; ts stamps it when non-zero.
func DecodePacket(b []byte, ts time.Time) (source.Packet, error) {
	var w wirePacket
	if err := json.Unmarshal(b, &w); err != nil {
		return source.Packet{}, fmt.Errorf("decode packet: %w", err)
	}
	if len(w.Samples) == 0 {
		return source.Packet{}, fmt.Errorf("decode packet: no samples")
	}
	if w.NumPackets == 0 {
		w.NumPackets = 1
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return source.Packet{
		Samples:    w.Samples,
		NumPackets: w.NumPackets,
		Errors:     w.Errors,
		Missed:     w.Missed,
		Received:   ts,
	}, nil
}
