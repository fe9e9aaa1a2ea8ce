// Package window decides whether a class session is open for check-in.
//
// A session opens at its creation instant and stays open for a fixed number of
// minutes. The window is half-open: a check-in at exactly the end instant is
// already too late. State only moves forward with the clock:
// pending -> active -> expired.
package window

import (
	"errors"
	"fmt"
	"time"
)

// State is the classification of a session relative to a point in time.
type State int

const (
	Pending State = iota
	Active
	Expired
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// MarshalText lets State render as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*s = Pending
	case "active":
		*s = Active
	case "expired":
		*s = Expired
	default:
		return fmt.Errorf("window: unknown state %q", b)
	}
	return nil
}

var (
	ErrNoStart     = errors.New("window: session has no start time")
	ErrBadDuration = errors.New("window: duration must be positive")
)

// Window is the [Start, End) interval a session accepts check-ins in.
type Window struct {
	Start time.Time
	End   time.Time
}

// Of builds the window for a session created at start lasting minutes.
func Of(start time.Time, minutes int) (Window, error) {
	if start.IsZero() {
		return Window{}, ErrNoStart
	}
	if minutes <= 0 {
		return Window{}, fmt.Errorf("%w: got %d minutes", ErrBadDuration, minutes)
	}
	return Window{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}, nil
}

// Classify reports where now falls relative to [start, end).
func Classify(now, start, end time.Time) State {
	switch {
	case now.Before(start):
		return Pending
	case now.Before(end):
		return Active
	default:
		return Expired
	}
}

// State classifies now against the window.
func (w Window) State(now time.Time) State {
	return Classify(now, w.Start, w.End)
}

// Open reports whether a check-in at now is allowed.
func (w Window) Open(now time.Time) bool {
	return w.State(now) == Active
}

// Remaining returns how long until end, never negative.
func Remaining(now, end time.Time) time.Duration {
	if d := end.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Format renders d as MM:SS. Partial seconds are dropped and negative
// durations render as 00:00. Minutes are not wrapped into hours.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Countdown is Format(Remaining(now, w.End)).
func (w Window) Countdown(now time.Time) string {
	return Format(Remaining(now, w.End))
}
