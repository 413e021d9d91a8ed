package harvest

import "time"

// Autothrottle defaults: start above the base delay, never slower than
// maxDelay, aim for targetConcurrency requests in flight per observed
// round trip.
const (
	throttleStartDelay        = 500 * time.Millisecond
	throttleMaxDelay          = 5 * time.Second
	throttleTargetConcurrency = 4
)

// autothrottle turns observed page latency into a dispatch interval.
// It widens the interval when pages come back slow or failing and
// narrows it toward the base delay when the upstream is healthy. Only
// the coordinator's result loop calls observe, so no locking.
type autothrottle struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
	ewma    time.Duration
}

func newAutothrottle(base time.Duration) *autothrottle {
	start := throttleStartDelay
	if start < base {
		start = base
	}
	return &autothrottle{
		base:    base,
		max:     throttleMaxDelay,
		current: start,
	}
}

// observe folds one page outcome into the smoothed latency and returns
// the next dispatch interval. Failed pages can only hold or widen the
// interval, never narrow it.
func (a *autothrottle) observe(latency time.Duration, failed bool) time.Duration {
	if a.ewma == 0 {
		a.ewma = latency
	} else {
		a.ewma = (3*a.ewma + latency) / 4
	}

	next := a.ewma / throttleTargetConcurrency
	if next < a.base {
		next = a.base
	}
	if next > a.max {
		next = a.max
	}
	if failed && next < a.current {
		next = a.current
	}

	a.current = next
	return next
}
