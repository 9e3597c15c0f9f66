package kafka

import (
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"labmon/internal/logging"
	"labmon/internal/record"
	"labmon/sink"
)

var ErrClosed = errors.New("kafka-sink: closed")

type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Key     string   `yaml:"key"`           // message key, e.g. the instrument name
	Acks    int16    `yaml:"required_acks"` // 0,1,-1
}

type driver struct {
	cfg Config
	p   sarama.AsyncProducer

	wg     sync.WaitGroup
	mu     sync.RWMutex // closed vs in-flight Push
	closed bool
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return fmt.Errorf("kafka-sink: brokers and topic are required")
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Errors = true
	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return err
	}
	d.attach(p)
	return nil
}

// attach takes ownership of p and drains its error channel.
func (d *driver) attach(p sarama.AsyncProducer) {
	d.p = p
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for perr := range p.Errors() {
			logging.L().Warn("kafka-sink: produce failed", "topic", d.cfg.Topic, "err", perr.Err)
		}
	}()
}

func (d *driver) Push(headers []string, r record.Record) error {
	b, err := Encode(headers, r)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic:     d.cfg.Topic,
		Value:     sarama.ByteEncoder(b),
		Timestamp: r.Time,
	}
	if d.cfg.Key != "" {
		msg.Key = sarama.StringEncoder(d.cfg.Key)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || d.p == nil {
		return ErrClosed
	}
	d.p.Input() <- msg
	return nil
}

func (d *driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.p == nil {
		return nil
	}
	err := d.p.Close()
	d.wg.Wait()
	return err
}

// Encode renders a record as a protobuf Struct keyed by header name.
func Encode(headers []string, r record.Record) ([]byte, error) {
	if len(headers) != len(r.Values)+1 {
		return nil, fmt.Errorf("kafka-sink: %d headers for %d values", len(headers), len(r.Values))
	}
	fields := make(map[string]*structpb.Value, len(headers))
	fields[headers[0]] = structpb.NewStringValue(r.Time.Format(record.TimeLayout))
	for i, v := range r.Values {
		fields[headers[i+1]] = structpb.NewNumberValue(v)
	}
	return proto.Marshal(&structpb.Struct{Fields: fields})
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
