package record

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// TimestampHeader is injected as the first column of every destination.
	TimestampHeader = "Timestamp"
	// TimeLayout renders the timestamp column at second resolution.
	TimeLayout = "2006-01-02 15:04:05"
)

// Record is one observation: a wall-clock stamp plus the value columns.
type Record struct {
	Time   time.Time
	Values []float64
}

func New(ts time.Time, values []float64) Record {
	return Record{Time: ts, Values: append([]float64(nil), values...)}
}

// Row renders the record as CSV fields, timestamp first.
func (r Record) Row() []string {
	row := make([]string, 0, len(r.Values)+1)
	row = append(row, r.Time.Format(TimeLayout))
	for _, v := range r.Values {
		row = append(row, FormatValue(v))
	}
	return row
}

// FormatValue prints the shortest decimal that round-trips.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseRow is the inverse of Row, used by readers and tests.
func ParseRow(row []string, loc *time.Location) (Record, error) {
	if len(row) == 0 {
		return Record{}, fmt.Errorf("record: empty row")
	}
	if loc == nil {
		loc = time.Local
	}
	ts, err := time.ParseInLocation(TimeLayout, row[0], loc)
	if err != nil {
		return Record{}, fmt.Errorf("record: timestamp %q: %w", row[0], err)
	}
	vals := make([]float64, 0, len(row)-1)
	for i, f := range row[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Record{}, fmt.Errorf("record: column %d: %w", i+1, err)
		}
		vals = append(vals, v)
	}
	return Record{Time: ts, Values: vals}, nil
}

// Headers prepends the timestamp column to the declared field names.
func Headers(fields []string) []string {
	out := make([]string, 0, len(fields)+1)
	out = append(out, TimestampHeader)
	return append(out, fields...)
}

// Fill returns n copies of v, the default sentinel row.
func Fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
