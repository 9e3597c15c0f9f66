package convert

import (
	"math"
	"testing"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"", Raw, GP307} {
		if _, err := Lookup(name); err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
	}
	if _, err := Lookup("kelvin"); err == nil {
		t.Fatal("expected unknown conversion error")
	}
}

func TestRawCopies(t *testing.T) {
	in := []float64{1.5, 2}
	out, _ := raw(in)
	in[0] = 9
	if out[0] != 1.5 || len(out) != 2 {
		t.Fatalf("raw = %v", out)
	}
}

func TestGP307(t *testing.T) {
	cases := []struct{ v, torr float64 }{
		{0, 1e-10},
		{3, 1e-7},
		{10, 1},
	}
	for _, c := range cases {
		out, err := gp307([]float64{c.v})
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(out[0]-c.torr)/c.torr > 1e-12 || out[1] != c.v {
			t.Fatalf("gp307(%v) = %v, want [%v %v]", c.v, out, c.torr, c.v)
		}
	}
	if _, err := gp307([]float64{1, 2}); err == nil {
		t.Fatal("expected arity error")
	}
}
