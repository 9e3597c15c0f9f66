package sink

import (
	"fmt"
	"sort"

	"labmon/internal/record"
)

// Adapter mirrors persisted records to a secondary destination.
// The rotating CSV file stays the system of record; mirrors are best effort.
type Adapter interface {
	Configure(any) error                          // driver-specific YAML ⇒ struct
	Push(headers []string, r record.Record) error // one persisted record
	Close() error                                 // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}

// Registered lists the known mirror names.
func Registered() []string {
	out := make([]string, 0, len(reg))
	for name := range reg {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
