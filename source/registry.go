package source

import (
	"fmt"
	"sort"
)

// Factory builds an Adapter (e.g. sim, terranova, kafka).
type Factory func() Adapter

var registry = map[string]Factory{}

// Register is called from main (or a test) for each driver.
func Register(name string, f Factory) {
	registry[name] = f
}

// NewAdapter returns a driver by name.
func NewAdapter(name string) (Adapter, error) {
	if f, ok := registry[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("source: unsupported driver %q (known: %v)", name, Registered())
}

func Registered() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
