// Package convert maps raw device readings to the values a monitor persists.
package convert

import (
	"fmt"
	"math"
	"sort"
)

// Func turns one reading into the value columns of a record.
type Func func(in []float64) ([]float64, error)

const (
	Raw        = "raw"
	GP307      = "gp307"
	Thermistor = "thermistor" // needs a ThermistorConfig, see Build
)

var known = map[string]Func{
	Raw:   raw,
	GP307: gp307,
}

// Lookup returns the named conversion. The empty name means Raw.
func Lookup(name string) (Func, error) {
	if name == "" {
		name = Raw
	}
	if name == Thermistor {
		return nil, fmt.Errorf("conversion %q needs a datasheet configuration", name)
	}
	f, ok := known[name]
	if !ok {
		return nil, fmt.Errorf("unknown conversion %q (known: %v)", name, Names())
	}
	return f, nil
}

// Build is Lookup plus the conversions that carry configuration.
func Build(name string, th ThermistorConfig) (Func, error) {
	if name == Thermistor {
		return NewThermistor(th)
	}
	return Lookup(name)
}

func Names() []string {
	out := []string{Thermistor}
	for n := range known {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func raw(in []float64) ([]float64, error) {
	return append([]float64(nil), in...), nil
}

// gp307 reads the analog output of a Granville-Phillips 307 controller
// (1 V per decade, 0 V = 1e-10 Torr) and yields [pressure, voltage].
func gp307(in []float64) ([]float64, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("gp307: want 1 voltage, got %d values", len(in))
	}
	v := in[0]
	return []float64{VoltToTorr(v), v}, nil
}

func VoltToTorr(v float64) float64 { return math.Pow(10, v-10) }
