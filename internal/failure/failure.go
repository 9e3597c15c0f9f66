// Package failure classifies acquisition errors so callers can tell a bad
// sampling cycle from a monitor that should not be running at all.
package failure

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Unknown Kind = iota
	// Measurement covers device read failures and arity mismatches. Recovered per cycle.
	Measurement
	// Persistence covers unwritable or locked destinations. Recovered via the backup buffer.
	Persistence
	// Init is fatal: the monitor cannot start with a working source and sink.
	Init
	// ShutdownTimeout means a background task did not stop before its deadline.
	ShutdownTimeout
)

func (k Kind) String() string {
	switch k {
	case Measurement:
		return "measurement"
	case Persistence:
		return "persistence"
	case Init:
		return "init"
	case ShutdownTimeout:
		return "shutdown_timeout"
	default:
		return "unknown"
	}
}

// Error carries the kind and the failing operation alongside the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is New with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
