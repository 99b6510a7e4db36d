package cache

import (
	"container/list"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

// removeReason tells the dispose hook why an entry left the memory tier.
type removeReason int

const (
	reasonExpired removeReason = iota
	reasonEvicted
	reasonDeleted
	reasonReplaced
)

// memoryTier is the in-process bounded cache. Capacity counts entries.
// It is not internally locked: the coordinator mutates it and the tag
// index under the same mutex so the dispose hook observes both
// consistently.
type memoryTier struct {
	capacity       int
	ttl            time.Duration
	updateAgeOnGet bool

	items     map[string]*memoryItem
	evictList *list.List

	evictions uint64

	// onRemove fires for every entry leaving the tier, before it is gone
	// from the map. Runs under the coordinator lock; must not re-enter.
	onRemove func(entry *types.Entry, reason removeReason)
}

type memoryItem struct {
	entry   *types.Entry
	element *list.Element
}

func newMemoryTier(capacity int, ttl time.Duration, updateAgeOnGet bool) *memoryTier {
	return &memoryTier{
		capacity:       capacity,
		ttl:            ttl,
		updateAgeOnGet: updateAgeOnGet,
		items:          make(map[string]*memoryItem),
		evictList:      list.New(),
	}
}

// get returns the live entry for key, lazily purging it when expired.
// A returned entry has already had its access bookkeeping updated.
func (m *memoryTier) get(key string, now time.Time) *types.Entry {
	item, ok := m.items[key]
	if !ok {
		return nil
	}

	if item.entry.Expired(now) {
		m.remove(key, reasonExpired)
		return nil
	}

	item.entry.Metadata.LastAccessed = now
	item.entry.Metadata.HitCount++
	if m.updateAgeOnGet {
		m.evictList.MoveToFront(item.element)
	}

	return item.entry
}

// peek returns the entry without access bookkeeping or expiry purge.
func (m *memoryTier) peek(key string) *types.Entry {
	if item, ok := m.items[key]; ok {
		return item.entry
	}
	return nil
}

// set inserts or overwrites. When the tier is over capacity afterwards
// the least recently used entry is evicted, one per overflow.
func (m *memoryTier) set(entry *types.Entry) {
	if old, ok := m.items[entry.Key]; ok {
		if m.onRemove != nil {
			m.onRemove(old.entry, reasonReplaced)
		}
		old.entry = entry
		m.evictList.MoveToFront(old.element)
		return
	}

	element := m.evictList.PushFront(entry.Key)
	m.items[entry.Key] = &memoryItem{entry: entry, element: element}

	for len(m.items) > m.capacity {
		m.evictOldest()
	}
}

// delete removes key. Reports whether it was present.
func (m *memoryTier) delete(key string) bool {
	_, ok := m.items[key]
	if ok {
		m.remove(key, reasonDeleted)
	}
	return ok
}

// clear empties the tier without firing the dispose hook; callers reset
// the tag index themselves.
func (m *memoryTier) clear() {
	m.items = make(map[string]*memoryItem)
	m.evictList.Init()
}

func (m *memoryTier) len() int {
	return len(m.items)
}

func (m *memoryTier) evictionCount() uint64 {
	return m.evictions
}

func (m *memoryTier) evictOldest() {
	element := m.evictList.Back()
	if element == nil {
		return
	}
	key := element.Value.(string)
	m.evictions++
	m.remove(key, reasonEvicted)
}

func (m *memoryTier) remove(key string, reason removeReason) {
	item, ok := m.items[key]
	if !ok {
		return
	}

	if m.onRemove != nil {
		m.onRemove(item.entry, reason)
	}

	m.evictList.Remove(item.element)
	delete(m.items, key)
}
