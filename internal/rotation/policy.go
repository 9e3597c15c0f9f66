package rotation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Policy says when the active destination is replaced: daily at a
// wall-clock time (At, "HH:MM") or on a fixed interval (Every).
type Policy struct {
	At       string
	Every    time.Duration
	Location *time.Location
}

// Daily is the default policy: midnight, local time.
func Daily() Policy { return Policy{At: "00:00", Location: time.Local} }

// ParsePolicy builds a Policy from its configuration strings.
func ParsePolicy(at string, every time.Duration, location string) (Policy, error) {
	p := Policy{At: at, Every: every, Location: time.Local}
	if location != "" {
		loc, err := time.LoadLocation(location)
		if err != nil {
			return Policy{}, fmt.Errorf("rotation: location %q: %w", location, err)
		}
		p.Location = loc
	}
	if p.At == "" && p.Every == 0 {
		p.At = "00:00"
	}
	if _, err := p.Spec(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Spec renders the policy as a cron expression.
func (p Policy) Spec() (string, error) {
	switch {
	case p.At != "" && p.Every != 0:
		return "", fmt.Errorf("rotation: at and every are mutually exclusive")
	case p.Every < 0:
		return "", fmt.Errorf("rotation: negative interval %s", p.Every)
	case p.Every > 0:
		if p.Every < time.Second {
			return "", fmt.Errorf("rotation: interval %s below 1s", p.Every)
		}
		return "@every " + p.Every.String(), nil
	}
	h, m, err := parseClock(p.At)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

func parseClock(s string) (int, int, error) {
	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("rotation: at %q is not HH:MM", s)
	}
	h, err1 := strconv.Atoi(hs)
	m, err2 := strconv.Atoi(ms)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("rotation: at %q is not HH:MM", s)
	}
	return h, m, nil
}
