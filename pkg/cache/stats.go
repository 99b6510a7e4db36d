package cache

import (
	"sync"
	"sync/atomic"

	"github.com/tiercache/tiercache/pkg/types"
)

// statsAggregator keeps per-tier and whole-operation counters. The
// counters themselves are atomics; a mutex guards only the tier map
// lookup. Tier counters count probes; the total counters record exactly
// one hit or miss per Get call, so total.Hits+total.Misses equals the
// number of Get calls issued.
type statsAggregator struct {
	mu    sync.Mutex
	tiers map[string]*tierCounters

	totalHits   atomic.Uint64
	totalMisses atomic.Uint64
}

type tierCounters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	size      atomic.Int64
}

func newStatsAggregator(tierNames ...string) *statsAggregator {
	s := &statsAggregator{tiers: make(map[string]*tierCounters, len(tierNames))}
	for _, name := range tierNames {
		s.tiers[name] = &tierCounters{}
	}
	return s
}

func (s *statsAggregator) tier(name string) *tierCounters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.tiers[name]
	if !ok {
		c = &tierCounters{}
		s.tiers[name] = c
	}
	return c
}

func (s *statsAggregator) recordTierHit(tier string)  { s.tier(tier).hits.Add(1) }
func (s *statsAggregator) recordTierMiss(tier string) { s.tier(tier).misses.Add(1) }
func (s *statsAggregator) recordEviction(tier string) { s.tier(tier).evictions.Add(1) }
func (s *statsAggregator) setTierSize(tier string, n int64) {
	s.tier(tier).size.Store(n)
}

func (s *statsAggregator) recordHit()  { s.totalHits.Add(1) }
func (s *statsAggregator) recordMiss() { s.totalMisses.Add(1) }

// snapshot returns a point-in-time copy safe for concurrent readers.
func (s *statsAggregator) snapshot() types.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := types.CacheStats{Tiers: make(map[string]types.TierStats, len(s.tiers))}
	for name, c := range s.tiers {
		stats.Tiers[name] = types.TierStats{
			Hits:      c.hits.Load(),
			Misses:    c.misses.Load(),
			Evictions: c.evictions.Load(),
			Size:      c.size.Load(),
		}
	}

	hits := s.totalHits.Load()
	misses := s.totalMisses.Load()
	stats.Total = types.TotalStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		stats.Total.HitRate = float64(hits) / float64(total)
	}
	return stats
}

func (s *statsAggregator) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.tiers {
		c.hits.Store(0)
		c.misses.Store(0)
		c.evictions.Store(0)
		c.size.Store(0)
	}
	s.totalHits.Store(0)
	s.totalMisses.Store(0)
}
