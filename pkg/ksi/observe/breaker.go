package observe

import "time"

// BreakerState is a circuit breaker's position.
type BreakerState int

const (
	// StateClosed delivers normally.
	StateClosed BreakerState = iota

	// StateOpen rejects all deliveries until the cool-down elapses.
	StateOpen

	// StateHalfOpen permits a single probe delivery.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// transition records a breaker state change for metrics and logs.
type transition struct {
	from, to BreakerState
}

// breaker halts delivery to a persistently failing observer.
//
//	CLOSED --(threshold consecutive failures)--> OPEN
//	OPEN --(cool-down elapsed)--> HALF_OPEN (one probe)
//	HALF_OPEN --(probe success)--> CLOSED
//	HALF_OPEN --(probe failure)--> OPEN (cool-down restarts)
//
// Not safe for concurrent use; the owning subscription serializes
// access.
type breaker struct {
	threshold int
	cooldown  time.Duration

	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown, state: StateClosed}
}

// allow reports whether a delivery may proceed, advancing OPEN to
// HALF_OPEN when the cool-down has elapsed. In HALF_OPEN exactly one
// probe is permitted until its outcome is recorded.
func (b *breaker) allow(now time.Time) (bool, *transition) {
	switch b.state {
	case StateClosed:
		return true, nil
	case StateOpen:
		if now.Sub(b.openedAt) < b.cooldown {
			return false, nil
		}
		tr := &transition{from: b.state, to: StateHalfOpen}
		b.state = StateHalfOpen
		b.probing = true
		return true, tr
	case StateHalfOpen:
		if b.probing {
			return false, nil
		}
		b.probing = true
		return true, nil
	}
	return false, nil
}

// recordSuccess closes the breaker after a successful delivery.
func (b *breaker) recordSuccess() *transition {
	b.failures = 0
	b.probing = false
	if b.state == StateClosed {
		return nil
	}
	tr := &transition{from: b.state, to: StateClosed}
	b.state = StateClosed
	return tr
}

// recordFailure counts a failed or timed-out delivery, opening the
// breaker at the threshold or on a failed probe.
func (b *breaker) recordFailure(now time.Time) *transition {
	b.probing = false
	switch b.state {
	case StateHalfOpen:
		tr := &transition{from: b.state, to: StateOpen}
		b.state = StateOpen
		b.openedAt = now
		return tr
	case StateClosed:
		b.failures++
		if b.failures < b.threshold {
			return nil
		}
		tr := &transition{from: b.state, to: StateOpen}
		b.state = StateOpen
		b.openedAt = now
		return tr
	}
	return nil
}
