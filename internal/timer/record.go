package timer

import "time"

// Record is the authoritative state of one timer room.
//
// Exactly one of Remaining and EndTime is authoritative at a time, gated by
// Running: while stopped, Remaining holds the paused countdown value and
// EndTime is zero; while running, EndTime is the instant the countdown hits
// zero and Remaining is stale until the next Stop.
type Record struct {
	ID             string
	Duration       int // configured countdown length in seconds; 0 means unset
	Remaining      int // paused remaining seconds, authoritative while stopped
	EndTime        time.Time
	Running        bool
	LastActivity   time.Time
	ConnectedUsers int
}

// CurrentRemaining returns the countdown value at now in whole seconds.
// Millisecond differences are floored and the result never goes negative.
func (r *Record) CurrentRemaining(now time.Time) int {
	if !r.Running {
		return r.Remaining
	}
	ms := r.EndTime.Sub(now).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(ms / 1000)
}
