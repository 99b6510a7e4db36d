package cache

import "sync"

// hotTracker records how often keys are hit and reports the ones past a
// threshold, so the warmup path can re-prime faster tiers after a cold
// start. The tracked set is capped; once full, new keys are not tracked
// until a reset.
type hotTracker struct {
	mu         sync.Mutex
	counts     map[string]uint64
	threshold  uint64
	maxTracked int
}

func newHotTracker(threshold uint64, maxTracked int) *hotTracker {
	if threshold == 0 {
		threshold = 3
	}
	if maxTracked <= 0 {
		maxTracked = 1024
	}
	return &hotTracker{
		counts:     make(map[string]uint64),
		threshold:  threshold,
		maxTracked: maxTracked,
	}
}

func (h *hotTracker) record(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.counts[key]; !ok && len(h.counts) >= h.maxTracked {
		return
	}
	h.counts[key]++
}

// hotKeys returns keys hit at least threshold times.
func (h *hotTracker) hotKeys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var keys []string
	for key, count := range h.counts {
		if count >= h.threshold {
			keys = append(keys, key)
		}
	}
	return keys
}

func (h *hotTracker) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts = make(map[string]uint64)
}
