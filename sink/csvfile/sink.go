// Package csvfile is the rotating CSV destination every acquisition path writes to.
//
// Exactly one destination file is current at a time. Rotate switches to a
// freshly named file (writing its header row when the file is new or empty);
// Append stamps and writes one row. Rows that cannot be written are kept in a
// bounded backup buffer and retried on the next successful append or rotation.
package csvfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"labmon/internal/failure"
	"labmon/internal/logging"
	"labmon/internal/record"
	"labmon/internal/telemetry"
	"labmon/sink"
)

// Name layouts for the destination stamp.
const (
	LayoutDateTime = "datetime" // prefix_2006-01-02_15-04-05.csv
	LayoutDate     = "date"     // prefix_2006-01-02.csv
)

const DefaultBackupLimit = 10_000

var stampLayouts = map[string]string{
	LayoutDateTime: "2006-01-02_15-04-05",
	LayoutDate:     "2006-01-02",
}

// OpenFunc opens a destination for appending.
type OpenFunc func(name string) (io.WriteCloser, error)

func appendFile(name string) (io.WriteCloser, error) {
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

type Option func(*Sink)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// WithNameLayout selects LayoutDateTime (default) or LayoutDate.
// WithLocation stamps destinations and rows in loc instead of the clock's zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Sink) { s.loc = loc }
}

func WithNameLayout(layout string) Option {
	return func(s *Sink) { s.layout = layout }
}

// WithBackupLimit bounds the backup buffer; <= 0 keeps the default.
func WithBackupLimit(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.backupLimit = n
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Sink) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) { s.log = l }
}

// WithMirrors forwards every persisted record to the given adapters.
func WithMirrors(m ...sink.Adapter) Option {
	return func(s *Sink) { s.mirrors = append(s.mirrors, m...) }
}

// WithOpener replaces the file opener; tests use it to simulate locked files.
func WithOpener(open OpenFunc) Option {
	return func(s *Sink) { s.open = open }
}

type Sink struct {
	prefix      string
	headers     []string
	layout      string
	backupLimit int
	now         func() time.Time
	loc         *time.Location
	open        OpenFunc
	mirrors     []sink.Adapter
	metrics     *telemetry.Metrics
	log         *slog.Logger

	mu      sync.Mutex // guards current, backup, closed
	current string
	backup  []record.Record
	closed  bool // mirrors released; late rows still reach the file
}

// Open prepares a sink for headers (Timestamp is prepended) and creates the
// first destination.
func Open(headers []string, prefix string, opts ...Option) (*Sink, error) {
	if len(headers) == 0 {
		return nil, failure.Errorf(failure.Init, "csv open", "no headers declared")
	}
	if prefix == "" {
		return nil, failure.Errorf(failure.Init, "csv open", "empty file prefix")
	}
	s := &Sink{
		prefix:      prefix,
		headers:     record.Headers(headers),
		layout:      LayoutDateTime,
		backupLimit: DefaultBackupLimit,
		now:         time.Now,
		open:        appendFile,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if _, ok := stampLayouts[s.layout]; !ok {
		return nil, failure.Errorf(failure.Init, "csv open", "unknown name layout %q", s.layout)
	}
	s.log = logging.Or(s.log).With("component", "csv-sink")
	if s.loc != nil {
		clock, loc := s.now, s.loc
		s.now = func() time.Time { return clock().In(loc) }
	}

	if dir := filepath.Dir(prefix); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, failure.New(failure.Init, "csv mkdir", err)
		}
	}
	if err := s.Rotate(); err != nil {
		return nil, failure.New(failure.Init, "csv open", err)
	}
	return s, nil
}

// Headers returns a copy of the header row, Timestamp included.
func (s *Sink) Headers() []string {
	return append([]string(nil), s.headers...)
}

// Current is the path of the active destination.
func (s *Sink) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Backup returns a copy of the records waiting to be persisted.
func (s *Sink) Backup() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]record.Record(nil), s.backup...)
}

func (s *Sink) nameFor(t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", s.prefix, t.Format(stampLayouts[s.layout]))
}

// Rotate switches to the destination named for the current instant.
// Calling it again within the same stamp only re-points at the same file.
func (s *Sink) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.nameFor(s.now())
	if err := s.ensureHeaderLocked(name); err != nil {
		s.log.Error("rotate failed", "op", "rotate", "file", name, "err", err)
		return failure.New(failure.Persistence, "rotate", err)
	}
	if name != s.current {
		s.log.Info("destination rotated", "file", name, "previous", s.current)
		s.metrics.IncRotation()
	}
	s.current = name

	if len(s.backup) > 0 {
		s.drainLocked()
	}
	return nil
}

func (s *Sink) ensureHeaderLocked(name string) error {
	st, err := os.Stat(name)
	switch {
	case err == nil && st.Size() > 0:
		return nil
	case err != nil && !os.IsNotExist(err):
		return err
	}
	return s.writeRows(name, [][]string{s.headers})
}

// Append stamps values with the current time and writes one row.
// An arity mismatch writes nothing and returns a measurement error.
// Write failures are never returned: the record moves to the backup buffer.
func (s *Sink) Append(values []float64) error {
	rec := record.New(s.now(), values)
	if len(values)+1 != len(s.headers) {
		s.metrics.IncRejected()
		err := failure.Errorf(failure.Measurement, "append",
			"got %d values for %d value columns", len(values), len(s.headers)-1)
		s.log.Warn("row rejected", "op", "append", "err", err)
		return err
	}

	start := time.Now()
	s.mu.Lock()
	pending := append(s.backup, rec)
	rows := make([][]string, 0, len(pending))
	for _, r := range pending {
		rows = append(rows, r.Row())
	}
	err := s.writeRows(s.current, rows)
	if err != nil {
		s.log.Error("append failed, record kept in backup",
			"op", "append", "file", s.current, "kind", failure.Persistence, "err", err)
		s.setBackupLocked(pending)
	} else {
		s.metrics.IncWritten(len(rows))
		if n := len(s.backup); n > 0 {
			s.log.Info("backup drained", "records", n, "file", s.current)
		}
		s.setBackupLocked(nil)
	}
	closed := s.closed
	s.mu.Unlock()
	s.metrics.ObserveAppend(time.Since(start))

	if err == nil && !closed {
		s.mirror(rec)
	}
	return nil
}

func (s *Sink) drainLocked() {
	rows := make([][]string, 0, len(s.backup))
	for _, r := range s.backup {
		rows = append(rows, r.Row())
	}
	if err := s.writeRows(s.current, rows); err != nil {
		s.log.Warn("backup drain failed", "records", len(rows), "file", s.current, "err", err)
		return
	}
	s.metrics.IncWritten(len(rows))
	s.log.Info("backup drained", "records", len(rows), "file", s.current)
	s.setBackupLocked(nil)
}

func (s *Sink) setBackupLocked(recs []record.Record) {
	if over := len(recs) - s.backupLimit; over > 0 {
		s.log.Warn("backup buffer full, dropping oldest records", "dropped", over, "limit", s.backupLimit)
		s.metrics.IncBackupDropped(over)
		recs = append([]record.Record(nil), recs[over:]...)
	}
	s.backup = recs
	s.metrics.SetBackup(len(recs))
}

func (s *Sink) writeRows(name string, rows [][]string) error {
	f, err := s.open(name)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *Sink) mirror(rec record.Record) {
	for _, m := range s.mirrors {
		if err := m.Push(s.headers, rec); err != nil {
			s.metrics.IncMirrorError()
			s.log.Warn("mirror push failed", "err", err)
		}
	}
}

// Close makes a last attempt to persist the backup buffer and closes mirrors.
// Records still undeliverable are reported in the returned error.
func (s *Sink) Close() error {
	s.mu.Lock()
	if len(s.backup) > 0 {
		s.drainLocked()
	}
	left := len(s.backup)
	s.closed = true
	s.mu.Unlock()

	var err error
	for _, m := range s.mirrors {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if left > 0 {
		return failure.Errorf(failure.Persistence, "close", "%d records left in backup buffer", left)
	}
	return err
}
