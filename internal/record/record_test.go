package record

import (
	"reflect"
	"testing"
	"time"
)

func TestRowFormatsShortestDecimal(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 999, time.UTC)
	r := New(ts, []float64{1.2345, 0.67, -1, 1e-10})

	want := []string{"2025-03-04 05:06:07", "1.2345", "0.67", "-1", "0.0000000001"}
	if got := r.Row(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Row() = %v, want %v", got, want)
	}
}

func TestParseRowRoundTrip(t *testing.T) {
	ts := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	in := New(ts, []float64{3.5e-7, 2.25})

	out, err := ParseRow(in.Row(), time.UTC)
	if err != nil {
		t.Fatalf("ParseRow: %v", err)
	}
	if !out.Time.Equal(ts) || !reflect.DeepEqual(out.Values, in.Values) {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestParseRowRejectsGarbage(t *testing.T) {
	if _, err := ParseRow([]string{"yesterday", "1"}, nil); err == nil {
		t.Fatal("expected timestamp error")
	}
	if _, err := ParseRow([]string{"2025-01-01 00:00:00", "abc"}, nil); err == nil {
		t.Fatal("expected value error")
	}
}

func TestNewCopiesValues(t *testing.T) {
	vals := []float64{1, 2}
	r := New(time.Now(), vals)
	vals[0] = 99
	if r.Values[0] != 1 {
		t.Fatal("record aliases caller slice")
	}
}

func TestHeadersAndFill(t *testing.T) {
	if got := Headers([]string{"Pressure (Torr)"}); !reflect.DeepEqual(got, []string{"Timestamp", "Pressure (Torr)"}) {
		t.Fatalf("Headers = %v", got)
	}
	if got := Fill(3, -1); !reflect.DeepEqual(got, []float64{-1, -1, -1}) {
		t.Fatalf("Fill = %v", got)
	}
}
