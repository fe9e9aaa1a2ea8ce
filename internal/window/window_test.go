package window

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestClassifyBoundaries(t *testing.T) {
	for _, minutes := range []int{1, 15, 60, 180} {
		w, err := Of(t0, minutes)
		require.NoError(t, err)

		assert.Equal(t, Active, Classify(w.Start, w.Start, w.End), "at start")
		assert.Equal(t, Pending, Classify(w.Start.Add(-time.Nanosecond), w.Start, w.End), "before start")
		assert.Equal(t, Active, Classify(w.End.Add(-time.Nanosecond), w.Start, w.End), "just before end")
		assert.Equal(t, Expired, Classify(w.End, w.Start, w.End), "at end")
		assert.Equal(t, Expired, Classify(w.End.Add(time.Nanosecond), w.Start, w.End), "after end")
	}
}

func TestClassifyIsPure(t *testing.T) {
	w, _ := Of(t0, 15)
	now := t0.Add(7 * time.Minute)
	first := Classify(now, w.Start, w.End)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(now, w.Start, w.End))
	}
}

func TestStateNeverMovesBackward(t *testing.T) {
	w, _ := Of(t0, 15)
	prev := Pending
	for now := t0.Add(-time.Minute); now.Before(t0.Add(20 * time.Minute)); now = now.Add(7 * time.Second) {
		s := w.State(now)
		assert.GreaterOrEqual(t, int(s), int(prev), "at %s", now)
		prev = s
	}
	assert.Equal(t, Expired, prev)
}

func TestRemainingIsMonotonicAndFloored(t *testing.T) {
	w, _ := Of(t0, 3)
	last := time.Duration(1<<62 - 1)
	for now := t0.Add(-30 * time.Second); now.Before(t0.Add(5 * time.Minute)); now = now.Add(250 * time.Millisecond) {
		r := Remaining(now, w.End)
		assert.LessOrEqual(t, r, last)
		assert.GreaterOrEqual(t, r, time.Duration(0))
		last = r
	}
	assert.Equal(t, time.Duration(0), last)
	assert.Equal(t, "00:00", w.Countdown(t0.Add(time.Hour)))
}

func TestFormat(t *testing.T) {
	cases := map[time.Duration]string{
		125 * time.Second:                      "02:05",
		0:                                      "00:00",
		-5 * time.Second:                       "00:00",
		999 * time.Millisecond:                 "00:00",
		59*time.Second + 999*time.Millisecond:  "00:59",
		15 * time.Minute:                       "15:00",
		90 * time.Minute:                       "90:00",
	}
	for d, want := range cases {
		assert.Equal(t, want, Format(d), "Format(%s)", d)
	}
}

func TestFifteenMinuteSession(t *testing.T) {
	w, err := Of(t0, 15)
	require.NoError(t, err)

	at10 := t0.Add(10 * time.Minute)
	assert.Equal(t, Active, w.State(at10))
	assert.Equal(t, "05:00", w.Countdown(at10))
	assert.True(t, w.Open(at10))

	at15 := t0.Add(15 * time.Minute)
	assert.Equal(t, Expired, w.State(at15))
	assert.Equal(t, "00:00", w.Countdown(at15))
	assert.False(t, w.Open(at15))
}

func TestOfRejectsBrokenInput(t *testing.T) {
	_, err := Of(time.Time{}, 15)
	assert.True(t, errors.Is(err, ErrNoStart))

	_, err = Of(t0, 0)
	assert.True(t, errors.Is(err, ErrBadDuration))

	_, err = Of(t0, -3)
	assert.True(t, errors.Is(err, ErrBadDuration))
}

func TestStateText(t *testing.T) {
	b, err := Expired.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "expired", string(b))
	assert.Equal(t, "unknown", State(9).String())
}

func TestStateUnmarshalText(t *testing.T) {
	for _, s := range []State{Pending, Active, Expired} {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var got State
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}
	var s State
	assert.Error(t, s.UnmarshalText([]byte("closed")))
}
