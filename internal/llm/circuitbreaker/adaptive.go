package circuitbreaker

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	minRequestsForAdjustment = 10
	highErrorRate            = 0.5
	mediumErrorRate          = 0.3
	mediumMultiplier         = 0.75
	adaptiveWindow           = time.Minute
)

// adaptiveThreshold lowers the failure threshold while the error rate over
// the current window is high: half the base above 50%, three quarters above
// 30%. The window resets every minute.
type adaptiveThreshold struct {
	mu          sync.Mutex
	base        int
	current     atomic.Int32
	requests    atomic.Int64
	failures    atomic.Int64
	windowStart atomic.Int64
	now         func() time.Time
}

func newAdaptiveThreshold(base int, now func() time.Time) *adaptiveThreshold {
	a := &adaptiveThreshold{base: base, now: now}
	a.current.Store(clampThreshold(float64(base)))
	a.windowStart.Store(now().UnixNano())
	return a
}

func (a *adaptiveThreshold) record(success bool) {
	now := a.now().UnixNano()
	if now-a.windowStart.Load() > int64(adaptiveWindow) {
		a.mu.Lock()
		if now-a.windowStart.Load() > int64(adaptiveWindow) {
			a.requests.Store(0)
			a.failures.Store(0)
			a.windowStart.Store(now)
		}
		a.mu.Unlock()
	}

	a.requests.Add(1)
	if !success {
		a.failures.Add(1)
	}
	a.adjust()
}

func (a *adaptiveThreshold) adjust() {
	total := a.requests.Load()
	if total < minRequestsForAdjustment {
		return
	}
	rate := float64(a.failures.Load()) / float64(total)

	target := float64(a.base)
	switch {
	case rate > highErrorRate:
		target = float64(a.base / 2)
	case rate > mediumErrorRate:
		target = float64(a.base) * mediumMultiplier
	}
	a.current.Store(clampThreshold(target))
}

func (a *adaptiveThreshold) threshold() int { return int(a.current.Load()) }

func clampThreshold(v float64) int32 {
	switch {
	case v < 1:
		return 1
	case v > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(v)
	}
}
