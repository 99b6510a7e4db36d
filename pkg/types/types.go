package types

import "time"

// EntryMetadata describes a cached entry's bookkeeping state. SizeBytes is
// the post-compression length of the stored payload, not the caller value.
type EntryMetadata struct {
	Created      time.Time     `json:"created" msgpack:"created"`
	LastAccessed time.Time     `json:"last_accessed" msgpack:"last_accessed"`
	HitCount     uint64        `json:"hit_count" msgpack:"hit_count"`
	SizeBytes    int           `json:"size_bytes" msgpack:"size_bytes"`
	Compressed   bool          `json:"compressed" msgpack:"compressed"`
	TTL          time.Duration `json:"ttl" msgpack:"ttl"`
	Tags         []string      `json:"tags,omitempty" msgpack:"tags"`
}

// Entry is a single cached value. Value holds the codec-encoded (and, above
// the compression threshold, gzipped) payload bytes.
type Entry struct {
	Key      string        `json:"key" msgpack:"key"`
	Value    []byte        `json:"value" msgpack:"value"`
	Metadata EntryMetadata `json:"metadata" msgpack:"metadata"`
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
// A zero TTL never expires.
func (e *Entry) Expired(now time.Time) bool {
	if e.Metadata.TTL <= 0 {
		return false
	}
	return now.Sub(e.Metadata.Created) > e.Metadata.TTL
}

// TierStats holds per-tier counters. Hits and Misses count probes against
// this tier, not whole cache operations.
type TierStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int64  `json:"size"`
}

// TotalStats aggregates whole-operation outcomes: one hit or one miss per
// Get call, regardless of how many tiers were probed.
type TotalStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// CacheStats is a point-in-time snapshot of cache performance. It is always
// a copy; readers never share state with the live counters.
type CacheStats struct {
	Tiers map[string]TierStats `json:"tiers"`
	Total TotalStats           `json:"total"`
}

// EventKind identifies a cache event.
type EventKind string

const (
	EventHit      EventKind = "hit"
	EventMiss     EventKind = "miss"
	EventEviction EventKind = "eviction"
	EventSet      EventKind = "set"
	EventDelete   EventKind = "delete"
	EventError    EventKind = "error"
	EventStats    EventKind = "stats"
)

// Event is a fire-and-forget notification delivered to subscribers. Fields
// are populated per kind; delivery ordering across kinds is not guaranteed
// and consumers must be idempotent.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Tier      string        `json:"tier,omitempty"`
	Key       string        `json:"key,omitempty"`
	Latency   time.Duration `json:"latency,omitempty"`
	SizeBytes int           `json:"size_bytes,omitempty"`
	Err       error         `json:"-"`
	Stats     *CacheStats   `json:"stats,omitempty"`
}
