package cache

// Stats holds counters for the cache decorator.
type Stats struct {
	// Hits and Misses count Generate lookups.
	Hits   int64
	Misses int64
	// StreamHits and StreamMisses count Stream lookups.
	StreamHits   int64
	StreamMisses int64
	// DiscardedStreams counts recordings dropped because the stream failed
	// or was closed early.
	DiscardedStreams int64
	// StoreErrors counts store failures that were bypassed.
	StoreErrors int64
	// HitRate is hits over lookups across both operations.
	HitRate float64
}

// Stats returns current counters. All reads are atomic.
func (p *Provider) Stats() Stats {
	s := Stats{
		Hits:             p.hits.Load(),
		Misses:           p.misses.Load(),
		StreamHits:       p.streamHits.Load(),
		StreamMisses:     p.streamMisses.Load(),
		DiscardedStreams: p.discardedStreams.Load(),
		StoreErrors:      p.storeErrors.Load(),
	}
	hits := s.Hits + s.StreamHits
	if total := hits + s.Misses + s.StreamMisses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
