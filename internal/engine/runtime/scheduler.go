package runtime

import "time"

// defaultBaseInterval/defaultMaxInterval are the fallback backoff bounds
// a TaskBase uses when constructed without an explicit scheduler.
const (
	defaultBaseInterval = 1 * time.Second
	defaultMaxInterval  = 5 * time.Minute
)

// IntervalGenerator computes how long to wait before the next schedule
// pass of a Task that isn't ready to finish yet (spec.md section 4.4).
// attempt is the 1-based count of schedule passes so far. ok is false
// when the generator declines to re-arm at all: the task stays BLOCKED
// until something else (a signal, an explicit wake) moves it, rather
// than being polled again on a timer.
type IntervalGenerator func(attempt int) (delay time.Duration, ok bool)

// NewStaticIntervalGenerator always waits the same fixed delay.
func NewStaticIntervalGenerator(delay time.Duration) IntervalGenerator {
	return func(attempt int) (time.Duration, bool) {
		return delay, true
	}
}

// NewQuadraticIntervalGenerator backs off quadratically in attempt,
// floored at base and capped at max (spec.md section 4.4's default
// retry/poll backoff for a Task with no explicit scheduler set).
func NewQuadraticIntervalGenerator(base, max time.Duration) IntervalGenerator {
	return func(attempt int) (time.Duration, bool) {
		if attempt < 1 {
			attempt = 1
		}
		d := base * time.Duration(attempt*attempt)
		if max > 0 && d > max {
			d = max
		}
		return d, true
	}
}

// NewNullIntervalGenerator never re-arms: once a Task using it decides
// it isn't ready to finish, it stays BLOCKED until an external signal
// schedules it again. This is the decision recorded for tasks whose
// only re-entry point is acknowledge (a child completing), not a timer.
func NewNullIntervalGenerator() IntervalGenerator {
	return func(attempt int) (time.Duration, bool) {
		return 0, false
	}
}
