// Package testutil provides a scriptable in-memory tier backend for
// coordinator tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

// FakeTier is an in-memory types.Tier with error injection and call
// recording. Safe for concurrent use.
type FakeTier struct {
	name string

	mu      sync.Mutex
	data    map[string][]byte
	calls   []string
	FailGet error
	FailSet error
	FailDel error
}

// NewFakeTier creates a fake tier reporting the given name.
func NewFakeTier(name string) *FakeTier {
	return &FakeTier{
		name: name,
		data: make(map[string][]byte),
	}
}

// Seed stores envelope bytes directly, bypassing call recording.
func (f *FakeTier) Seed(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = data
}

// Has reports whether key is stored.
func (f *FakeTier) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

// Len returns the number of stored entries.
func (f *FakeTier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

// Calls returns the recorded operations in order, e.g. "get:k".
func (f *FakeTier) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]string, len(f.calls))
	copy(calls, f.calls)
	return calls
}

// Name implements types.Tier.
func (f *FakeTier) Name() string { return f.name }

// Get implements types.Tier.
func (f *FakeTier) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "get:"+key)
	if f.FailGet != nil {
		return nil, f.FailGet
	}
	data, ok := f.data[key]
	if !ok {
		return nil, types.ErrNotFound
	}
	return data, nil
}

// Set implements types.Tier.
func (f *FakeTier) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "set:"+key)
	if f.FailSet != nil {
		return f.FailSet
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	f.data[key] = stored
	return nil
}

// Delete implements types.Tier.
func (f *FakeTier) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "delete:"+key)
	if f.FailDel != nil {
		return f.FailDel
	}
	delete(f.data, key)
	return nil
}

// Clear implements types.Tier.
func (f *FakeTier) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "clear")
	f.data = make(map[string][]byte)
	return nil
}

// Close implements types.Tier.
func (f *FakeTier) Close() error { return nil }
