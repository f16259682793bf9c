package pricing

import (
	"time"

	"github.com/wonny/evquant/internal/quarter"
)

// Settled reports whether the standard window of q has fully elapsed at now,
// after which its settlement price can no longer change.
func Settled(q quarter.Quarter, now time.Time) bool {
	_, before := WindowFor(q, 0)
	return !now.Before(before)
}

// LatestSettled returns the most recent quarter settled at now
func LatestSettled(now time.Time) quarter.Quarter {
	q := quarter.Quarter{Year: now.Year(), Number: 4}
	for !Settled(q, now) {
		q = q.Prev()
	}
	return q
}
