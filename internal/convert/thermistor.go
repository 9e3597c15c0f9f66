package convert

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ThermistorConfig describes a voltage divider read across a thermistor:
// R = r0*v/(vin-v), with the temperature looked up in a datasheet of
// Resistance,Temperature rows. One r0 per channel, in the datasheet's
// resistance unit.
type ThermistorConfig struct {
	Datasheet string    `yaml:"datasheet"`
	Vin       float64   `yaml:"vin"`
	R0        []float64 `yaml:"r0"`
}

// curve is a resistance -> temperature table sorted by resistance.
type curve struct {
	r, t []float64
}

// NewThermistor loads the datasheet and returns a conversion from one
// voltage per channel to one temperature per channel.
func NewThermistor(cfg ThermistorConfig) (Func, error) {
	if cfg.Vin <= 0 {
		return nil, fmt.Errorf("thermistor: vin must be positive, got %v", cfg.Vin)
	}
	if len(cfg.R0) == 0 {
		return nil, fmt.Errorf("thermistor: at least one r0 is required")
	}
	c, err := loadCurve(cfg.Datasheet)
	if err != nil {
		return nil, err
	}
	vin := cfg.Vin
	r0 := append([]float64(nil), cfg.R0...)

	return func(in []float64) ([]float64, error) {
		if len(in) != len(r0) {
			return nil, fmt.Errorf("thermistor: want %d voltages, got %d", len(r0), len(in))
		}
		out := make([]float64, len(in))
		for i, v := range in {
			if v < 0 || v >= vin {
				return nil, fmt.Errorf("thermistor: channel %d voltage %v outside [0,%v)", i, v, vin)
			}
			t, err := c.at(r0[i] * v / (vin - v))
			if err != nil {
				return nil, fmt.Errorf("thermistor: channel %d: %w", i, err)
			}
			out[i] = t
		}
		return out, nil
	}, nil
}

func loadCurve(path string) (curve, error) {
	if path == "" {
		return curve{}, fmt.Errorf("thermistor: datasheet path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return curve{}, fmt.Errorf("thermistor: datasheet: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return curve{}, fmt.Errorf("thermistor: datasheet %s: %w", path, err)
	}
	if len(rows) < 3 {
		return curve{}, fmt.Errorf("thermistor: datasheet %s needs a header and two rows", path)
	}
	ri, ti := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case "Resistance":
			ri = i
		case "Temperature":
			ti = i
		}
	}
	if ri < 0 || ti < 0 {
		return curve{}, fmt.Errorf("thermistor: datasheet %s lacks Resistance/Temperature columns", path)
	}

	type point struct{ r, t float64 }
	pts := make([]point, 0, len(rows)-1)
	for n, row := range rows[1:] {
		r, err1 := strconv.ParseFloat(strings.TrimSpace(row[ri]), 64)
		t, err2 := strconv.ParseFloat(strings.TrimSpace(row[ti]), 64)
		if err1 != nil || err2 != nil {
			return curve{}, fmt.Errorf("thermistor: datasheet %s row %d: not numeric", path, n+2)
		}
		pts = append(pts, point{r, t})
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].r < pts[j].r })

	var c curve
	for _, p := range pts {
		c.r = append(c.r, p.r)
		c.t = append(c.t, p.t)
	}
	return c, nil
}

// at interpolates linearly; resistances outside the table are errors.
func (c curve) at(r float64) (float64, error) {
	n := len(c.r)
	if r < c.r[0] || r > c.r[n-1] {
		return 0, fmt.Errorf("resistance %v outside datasheet range [%v,%v]", r, c.r[0], c.r[n-1])
	}
	i := sort.SearchFloat64s(c.r, r)
	if c.r[i] == r {
		return c.t[i], nil
	}
	r1, r2 := c.r[i-1], c.r[i]
	t1, t2 := c.t[i-1], c.t[i]
	return t1 + (t2-t1)*(r-r1)/(r2-r1), nil
}
