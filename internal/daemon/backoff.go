package daemon

import "time"

// backoff tracks consecutive cycle errors and produces the delay to sleep
// once the error threshold is breached. The delay starts at base, doubles on
// each breach, and is capped at max. Any successful cycle resets both the
// counter and the delay.
type backoff struct {
	base      time.Duration
	max       time.Duration
	threshold int

	failures int
	delay    time.Duration
}

func newBackoff(base, max time.Duration, threshold int) *backoff {
	if base <= 0 {
		base = 30 * time.Second
	}
	if max < base {
		max = base
	}
	if threshold <= 0 {
		threshold = 1
	}
	return &backoff{base: base, max: max, threshold: threshold, delay: base}
}

// observeFailure records one failed cycle. When the consecutive-failure count
// reaches the threshold it returns the delay to sleep and arms the next,
// doubled delay; otherwise it returns zero.
func (b *backoff) observeFailure() time.Duration {
	b.failures++
	if b.failures < b.threshold {
		return 0
	}
	b.failures = 0
	wait := b.delay
	next := b.delay * 2
	if next > b.max {
		next = b.max
	}
	b.delay = next
	return wait
}

// observeSuccess resets the failure streak and the delay.
func (b *backoff) observeSuccess() {
	b.failures = 0
	b.delay = b.base
}
