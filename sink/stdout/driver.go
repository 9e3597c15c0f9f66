// labmon/sink/stdout/driver.go
package stdout

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"labmon/internal/record"
	"labmon/sink"
)

/* ────────── public YAML config ────────── */
type Config struct {
	PrintCounter bool `yaml:"print_counter"` // prepend seq#
	PrintHeaders bool `yaml:"print_headers"` // name=value pairs instead of bare values
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config
	out io.Writer

	mu  sync.Mutex // serialises lines
	seq uint64
}

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	d.cfg = c
	return nil
}

func (d *driver) Push(headers []string, r record.Record) error {
	row := r.Row()
	if d.cfg.PrintHeaders && len(headers) == len(row) {
		for i := 1; i < len(row); i++ {
			row[i] = headers[i] + "=" + row[i]
		}
	}
	line := strings.Join(row, " ")

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.PrintCounter {
		d.seq++
		_, err := fmt.Fprintf(d.writer(), "[sink %06d] %s\n", d.seq, line)
		return err
	}
	_, err := fmt.Fprintf(d.writer(), "[sink] %s\n", line)
	return err
}

func (d *driver) Close() error { return nil }

func (d *driver) writer() io.Writer {
	if d.out == nil {
		return os.Stdout
	}
	return d.out
}

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
