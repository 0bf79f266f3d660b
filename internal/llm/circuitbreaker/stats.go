package circuitbreaker

import "sync/atomic"

type counters struct {
	allowed        atomic.Int64
	rejected       atomic.Int64
	probes         atomic.Int64
	probeSuccesses atomic.Int64
	transitions    atomic.Int64
}

// Stats is a snapshot of breaker activity.
type Stats struct {
	State          string `json:"state"`
	Allowed        int64  `json:"allowed"`
	Rejected       int64  `json:"rejected"`
	Probes         int64  `json:"probes"`
	ProbeSuccesses int64  `json:"probe_successes"`
	Transitions    int64  `json:"transitions"`
	Threshold      int    `json:"threshold"`
}

// Stats returns current counters and the effective failure threshold.
func (p *Provider) Stats() Stats {
	threshold := p.b.failureThreshold
	if p.b.adaptive != nil {
		threshold = p.b.adaptive.threshold()
	}
	c := p.b.counters
	return Stats{
		State:          p.b.current().String(),
		Allowed:        c.allowed.Load(),
		Rejected:       c.rejected.Load(),
		Probes:         c.probes.Load(),
		ProbeSuccesses: c.probeSuccesses.Load(),
		Transitions:    c.transitions.Load(),
		Threshold:      threshold,
	}
}
