package window

import (
	"sort"
	"time"
)

// Timed is anything with a creation instant and a duration in minutes.
type Timed interface {
	StartedAt() time.Time
	DurationMinutes() int
}

// Entry is one classified item.
type Entry[T Timed] struct {
	Item      T         `json:"session"`
	State     State     `json:"state"`
	EndsAt    time.Time `json:"ends_at"`
	Remaining string    `json:"remaining"`
}

// Board is the result of classifying a set of items at one instant.
type Board[T Timed] struct {
	At      time.Time  `json:"at"`
	Active  []Entry[T] `json:"active"`
	Expired []Entry[T] `json:"expired"`
	Pending []Entry[T] `json:"pending"`
	// Skipped counts items whose window could not be built. They are left out of
	// every bucket so a broken start never reads as an open session.
	Skipped int `json:"skipped"`
}

// Partition classifies items at now. Each bucket is ordered newest start first.
func Partition[T Timed](now time.Time, items []T) Board[T] {
	b := Board[T]{
		At:      now,
		Active:  []Entry[T]{},
		Expired: []Entry[T]{},
		Pending: []Entry[T]{},
	}
	for _, it := range items {
		w, err := Of(it.StartedAt(), it.DurationMinutes())
		if err != nil {
			b.Skipped++
			continue
		}
		e := Entry[T]{Item: it, State: w.State(now), EndsAt: w.End, Remaining: w.Countdown(now)}
		switch e.State {
		case Active:
			b.Active = append(b.Active, e)
		case Expired:
			b.Expired = append(b.Expired, e)
		default:
			b.Pending = append(b.Pending, e)
		}
	}
	for _, bucket := range [][]Entry[T]{b.Active, b.Expired, b.Pending} {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Item.StartedAt().After(bucket[j].Item.StartedAt())
		})
	}
	return b
}

// Retick re-evaluates an existing board at a later instant without going back
// to the source. Entries may move between buckets as time passes.
func Retick[T Timed](now time.Time, b Board[T]) Board[T] {
	items := make([]T, 0, len(b.Active)+len(b.Expired)+len(b.Pending))
	for _, bucket := range [][]Entry[T]{b.Active, b.Expired, b.Pending} {
		for _, e := range bucket {
			items = append(items, e.Item)
		}
	}
	out := Partition(now, items)
	out.Skipped = b.Skipped
	return out
}
