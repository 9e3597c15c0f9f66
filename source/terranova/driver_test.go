package terranova

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// fakePump answers queries on the far end of a net.Pipe.
func fakePump(t *testing.T, replies map[string]string) dialFunc {
	t.Helper()
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			r := bufio.NewReader(server)
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				reply, ok := replies[line]
				if !ok {
					continue
				}
				if _, err := server.Write([]byte(reply)); err != nil {
					return
				}
			}
		}()
		return client, nil
	}
}

func TestParsePressure(t *testing.T) {
	p, err := ParsePressure("OK:2.3E-08,00\r")
	if err != nil || p != 2.3e-8 {
		t.Fatalf("ParsePressure = %v, %v", p, err)
	}
	for _, bad := range []string{"", "ERR", "OK:abc,1"} {
		if _, err := ParsePressure(bad); err == nil {
			t.Fatalf("ParsePressure(%q) should fail", bad)
		}
	}
}

func TestOpenAndMeasure(t *testing.T) {
	d := &Driver{
		cfg: Config{Address: "bridge:4001", Timeout: time.Second},
		dial: fakePump(t, map[string]string{
			statusQuery:   "OK:RUN,00\r",
			pressureQuery: "OK:1.5E-09,00\r",
		}),
	}
	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	v, err := d.Measure(context.Background())
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if len(v) != 1 || v[0] != 1.5e-9 {
		t.Fatalf("Measure = %v", v)
	}
}

func TestMeasureTimesOutWithoutReply(t *testing.T) {
	d := &Driver{
		cfg:  Config{Address: "bridge:4001", Timeout: 50 * time.Millisecond},
		dial: fakePump(t, map[string]string{statusQuery: "OK:RUN,00\r"}),
	}
	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if _, err := d.Measure(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestOpenFailsWhenDialFails(t *testing.T) {
	d := &Driver{
		cfg: Config{Address: "bridge:4001", Timeout: time.Second},
		dial: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}
	if err := d.Open(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close after failed open: %v", err)
	}
}
