// Package circuitbreaker stops calling a backend that keeps failing with
// transient errors. After FailureThreshold consecutive transient failures the
// breaker opens and rejects calls until OpenTimeout elapses; a limited number
// of half-open probes then decide whether it closes again.
package circuitbreaker

import (
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// jitter is at most openTimeout/jitterDivisor.
const jitterDivisor = 10

// State is the breaker position.
type State int32

const (
	// StateClosed lets calls through.
	StateClosed State = iota
	// StateOpen rejects calls.
	StateOpen
	// StateHalfOpen lets a bounded number of probes through.
	StateHalfOpen
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// admission is the result of asking the breaker for a slot. release must be
// called once the call resolves.
type admission struct {
	allowed bool
	probe   bool
	release func()
}

var noop = func() {}

// breaker is the lock-free state machine behind Provider.
type breaker struct {
	state          atomic.Int32
	failures       atomic.Int32
	successes      atomic.Int32
	openedAt       atomic.Int64
	halfOpenProbes atomic.Int32

	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	maxProbes        int
	jitter           bool

	adaptive *adaptiveThreshold
	counters *counters
	now      func() time.Time
	logger   *slog.Logger
}

func (b *breaker) currentJitter() time.Duration {
	if !b.jitter {
		return 0
	}
	j := b.openTimeout / jitterDivisor
	if j <= 0 {
		return 0
	}
	return rand.N(j) //nolint:gosec // weak random is fine for jitter
}

func (b *breaker) current() State { return State(b.state.Load()) }

// allow decides whether a call may proceed.
func (b *breaker) allow() admission {
	state := b.current()
	if state == StateClosed {
		b.counters.allowed.Add(1)
		return admission{allowed: true, release: noop}
	}

	if state == StateOpen {
		opened := time.Unix(0, b.openedAt.Load())
		if b.now().Sub(opened) <= b.openTimeout+b.currentJitter() {
			b.counters.rejected.Add(1)
			return admission{release: noop}
		}
		b.transition(StateOpen, StateHalfOpen)
	}
	return b.probe()
}

// probe claims one of the half-open slots.
func (b *breaker) probe() admission {
	for {
		cur := b.halfOpenProbes.Load()
		if int(cur) >= b.maxProbes {
			b.counters.rejected.Add(1)
			return admission{release: noop}
		}
		if !b.halfOpenProbes.CompareAndSwap(cur, cur+1) {
			continue
		}
		b.counters.probes.Add(1)
		b.counters.allowed.Add(1)
		return admission{allowed: true, probe: true, release: b.releaseProbe}
	}
}

// releaseProbe frees a probe slot, saturating at zero when a transition
// already reset the counter.
func (b *breaker) releaseProbe() {
	for {
		cur := b.halfOpenProbes.Load()
		if cur == 0 || b.halfOpenProbes.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// success records a call that did not fail transiently.
func (b *breaker) success() {
	if b.adaptive != nil {
		b.adaptive.record(true)
	}
	switch b.current() {
	case StateClosed:
		b.failures.Store(0)
	case StateHalfOpen:
		b.counters.probeSuccesses.Add(1)
		if int(b.successes.Add(1)) >= b.successThreshold {
			b.transition(StateHalfOpen, StateClosed)
		}
	case StateOpen:
	}
}

// failure records a transient failure.
func (b *breaker) failure() {
	if b.adaptive != nil {
		b.adaptive.record(false)
	}
	switch b.current() {
	case StateClosed:
		threshold := b.failureThreshold
		if b.adaptive != nil {
			threshold = b.adaptive.threshold()
		}
		if int(b.failures.Add(1)) >= threshold {
			b.transition(StateClosed, StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateHalfOpen, StateOpen)
	case StateOpen:
	}
}

// transition moves from -> to if the breaker is still in from. Losing the
// race to another goroutine is not an error.
func (b *breaker) transition(from, to State) {
	if to == StateOpen {
		b.openedAt.Store(b.now().UnixNano())
	}
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return
	}
	b.failures.Store(0)
	b.successes.Store(0)
	b.halfOpenProbes.Store(0)
	b.counters.transitions.Add(1)
	b.logger.Info("circuit breaker state transition", "from", from.String(), "to", to.String())
}
