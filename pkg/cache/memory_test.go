package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

func newEntry(key string, ttl time.Duration) *types.Entry {
	now := time.Now()
	return &types.Entry{
		Key:   key,
		Value: []byte(key),
		Metadata: types.EntryMetadata{
			Created:      now,
			LastAccessed: now,
			SizeBytes:    len(key),
			TTL:          ttl,
		},
	}
}

// TestMemoryTier_GetSet tests basic insert and lookup
func TestMemoryTier_GetSet(t *testing.T) {
	t.Parallel()

	m := newMemoryTier(10, time.Minute, true)

	m.set(newEntry("a", time.Minute))
	entry := m.get("a", time.Now())
	if entry == nil {
		t.Fatal("expected hit for key a")
	}
	if entry.Metadata.HitCount != 1 {
		t.Errorf("expected hit count 1, got %d", entry.Metadata.HitCount)
	}

	if m.get("missing", time.Now()) != nil {
		t.Error("expected miss for absent key")
	}
}

// TestMemoryTier_CapacityBound verifies inserting maxSize+1 distinct keys
// leaves exactly maxSize resident and evicts the least recently used one
func TestMemoryTier_CapacityBound(t *testing.T) {
	t.Parallel()

	const capacity = 5
	m := newMemoryTier(capacity, time.Minute, true)

	var evicted []string
	m.onRemove = func(entry *types.Entry, reason removeReason) {
		if reason == reasonEvicted {
			evicted = append(evicted, entry.Key)
		}
	}

	for i := 0; i < capacity+1; i++ {
		m.set(newEntry(fmt.Sprintf("k%d", i), time.Minute))
	}

	if m.len() != capacity {
		t.Errorf("expected %d resident entries, got %d", capacity, m.len())
	}
	if m.evictionCount() != 1 {
		t.Errorf("expected exactly 1 eviction, got %d", m.evictionCount())
	}
	if len(evicted) != 1 || evicted[0] != "k0" {
		t.Errorf("expected k0 (least recently used) evicted, got %v", evicted)
	}
}

// TestMemoryTier_LRUOrder verifies a recently read key survives eviction
func TestMemoryTier_LRUOrder(t *testing.T) {
	t.Parallel()

	m := newMemoryTier(2, time.Minute, true)
	m.set(newEntry("a", time.Minute))
	m.set(newEntry("b", time.Minute))

	// Touch a so b becomes the eviction candidate.
	if m.get("a", time.Now()) == nil {
		t.Fatal("expected hit for a")
	}

	m.set(newEntry("c", time.Minute))

	if m.peek("a") == nil {
		t.Error("recently read key a was evicted")
	}
	if m.peek("b") != nil {
		t.Error("least recently used key b survived")
	}
}

// TestMemoryTier_TTLExpiry verifies expired entries read as absent and
// are purged lazily
func TestMemoryTier_TTLExpiry(t *testing.T) {
	t.Parallel()

	m := newMemoryTier(10, time.Minute, true)

	var reasons []removeReason
	m.onRemove = func(entry *types.Entry, reason removeReason) {
		reasons = append(reasons, reason)
	}

	m.set(newEntry("a", 10*time.Millisecond))

	if m.get("a", time.Now()) == nil {
		t.Fatal("expected immediate hit before expiry")
	}

	if m.get("a", time.Now().Add(20*time.Millisecond)) != nil {
		t.Error("expected miss after TTL elapsed")
	}
	if m.len() != 0 {
		t.Error("expired entry not purged on access")
	}
	if len(reasons) != 1 || reasons[0] != reasonExpired {
		t.Errorf("expected one expired disposal, got %v", reasons)
	}
}

// TestMemoryTier_ZeroTTLNeverExpires tests the no-expiry sentinel
func TestMemoryTier_ZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	m := newMemoryTier(10, time.Minute, true)
	m.set(newEntry("a", 0))

	if m.get("a", time.Now().Add(24*time.Hour)) == nil {
		t.Error("zero-TTL entry expired")
	}
}

// TestMemoryTier_Replace verifies overwriting fires the dispose hook with
// the replace reason and does not grow the tier
func TestMemoryTier_Replace(t *testing.T) {
	t.Parallel()

	m := newMemoryTier(10, time.Minute, true)

	var replaced int
	m.onRemove = func(entry *types.Entry, reason removeReason) {
		if reason == reasonReplaced {
			replaced++
		}
	}

	m.set(newEntry("a", time.Minute))
	m.set(newEntry("a", time.Minute))

	if m.len() != 1 {
		t.Errorf("expected 1 entry after overwrite, got %d", m.len())
	}
	if replaced != 1 {
		t.Errorf("expected 1 replace disposal, got %d", replaced)
	}
	if m.evictionCount() != 0 {
		t.Errorf("overwrite must not count as eviction, got %d", m.evictionCount())
	}
}

// TestMemoryTier_Delete tests explicit removal
func TestMemoryTier_Delete(t *testing.T) {
	t.Parallel()

	m := newMemoryTier(10, time.Minute, true)
	m.set(newEntry("a", time.Minute))

	if !m.delete("a") {
		t.Error("delete of present key reported absent")
	}
	if m.delete("a") {
		t.Error("delete of absent key reported present")
	}
	if m.len() != 0 {
		t.Errorf("expected empty tier, got %d entries", m.len())
	}
}
