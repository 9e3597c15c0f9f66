// Package terranova reads a Terranova 751A ion pump controller through a
// serial-to-TCP bridge. The controller answers "*PR?" with "OK:<torr>,##".
package terranova

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/v2"

	"labmon/internal/logging"
)

const (
	pressureQuery = "*PR?\r\n"
	statusQuery   = "*ST?\r\n"
	replyMax      = 16
)

var ErrNoData = errors.New("terranova: no serial data received")

type Config struct {
	Address string        `koanf:"address"` // host:port of the serial bridge
	Timeout time.Duration `koanf:"timeout"` // per query read timeout
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type Driver struct {
	cfg  Config
	dial dialFunc

	mu   sync.Mutex // one query in flight on the line
	conn net.Conn
}

func (d *Driver) Configure(k *koanf.Koanf) error {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return err
	}
	if cfg.Address == "" {
		return fmt.Errorf("terranova: address is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	d.cfg = cfg
	return nil
}

// Open connects and logs the controller status.
func (d *Driver) Open(ctx context.Context) error {
	dial := d.dial
	if dial == nil {
		dial = (&net.Dialer{Timeout: 5 * time.Second}).DialContext
	}
	conn, err := dial(ctx, "tcp", d.cfg.Address)
	if err != nil {
		return fmt.Errorf("terranova: dial %s: %w", d.cfg.Address, err)
	}
	d.mu.Lock()
	d.conn = conn
	status, err := d.queryLocked(statusQuery)
	d.mu.Unlock()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("terranova: status query: %w", err)
	}
	logging.L().Info("terranova: controller status", "status", strings.TrimSpace(status))
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// Measure returns the pump pressure in Torr.
func (d *Driver) Measure(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	reply, err := d.queryLocked(pressureQuery)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p, err := ParsePressure(reply)
	if err != nil {
		return nil, err
	}
	return []float64{p}, nil
}

func (d *Driver) queryLocked(q string) (string, error) {
	if d.conn == nil {
		return "", fmt.Errorf("terranova: not connected")
	}
	_ = d.conn.SetDeadline(time.Now().Add(d.cfg.Timeout))
	if _, err := d.conn.Write([]byte(q)); err != nil {
		return "", err
	}

	buf := make([]byte, 0, replyMax)
	chunk := make([]byte, replyMax)
	for len(buf) < replyMax && !bytes.ContainsAny(buf, "\r\n") {
		n, err := d.conn.Read(chunk[:replyMax-len(buf)])
		buf = append(buf, chunk[:n]...)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) && len(buf) > 0 {
				break
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return "", ErrNoData
			}
			return "", err
		}
	}
	return string(buf), nil
}

// ParsePressure extracts <torr> from "OK:<torr>,##".
func ParsePressure(reply string) (float64, error) {
	_, rest, ok := strings.Cut(reply, ":")
	if !ok {
		return 0, fmt.Errorf("terranova: malformed reply %q", reply)
	}
	val, _, _ := strings.Cut(rest, ",")
	p, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return 0, fmt.Errorf("terranova: malformed pressure in %q: %w", reply, err)
	}
	return p, nil
}
