package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tiercache/tiercache/internal/circuit"
	"github.com/tiercache/tiercache/pkg/codec"
	cacheerrors "github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/types"
)

// Tier names as they appear in stats, metrics, and events.
const (
	TierMemory = "memory"
	TierRemote = "remote"
	TierEdge   = "edge"
	TierClient = "client"
)

// slowTier is one asynchronous backend in probe order, wrapped in its
// circuit breaker and per-operation timeout.
type slowTier struct {
	name    string
	backend types.Tier
	breaker *circuit.Breaker
	timeout time.Duration
	ttl     time.Duration
}

// Cache is the tier coordinator. Reads cascade memory, remote, edge,
// client in that order and stop at the first live hit; a hit at a slower
// tier is promoted into the faster ones. Writes go to memory
// synchronously and to the slow tiers in the background. Backend
// failures degrade the hit rate, never the caller: no operation except
// New and Shutdown returns an error.
type Cache struct {
	cfg    Config
	codec  *codec.Codec
	logger zerolog.Logger

	// mu guards memory and tags together so eviction disposal and tag
	// deregistration are atomic to observers.
	mu     sync.Mutex
	memory *memoryTier
	tags   *tagIndex

	slow []slowTier

	stats    *statsAggregator
	events   *eventBus
	workers  *workerPool
	prefetch *prefetchEngine
	hot      *hotTracker

	flight singleflight.Group

	injected []injectedTier

	stopCh chan struct{}
	loopWG sync.WaitGroup
	closed atomic.Bool
}

// New constructs a cache from cfg. The memory tier's MaxSize and TTL
// must be set; slow tiers are built only when enabled. Options can
// inject backend implementations, which also marks them enabled.
func New(cfg Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cdc, err := codec.New(cfg.Serialization, cfg.Compression, cfg.CompressionThreshold)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		cfg:    cfg,
		codec:  cdc,
		logger: logging.NewLogger("coordinator"),
		memory: newMemoryTier(cfg.Memory.MaxSize, cfg.Memory.TTL, cfg.Memory.UpdateAgeOnGet),
		tags:   newTagIndex(),
		stats:  newStatsAggregator(TierMemory),
		events: newEventBus(),
		hot:    newHotTracker(cfg.Warmup.HitThreshold, cfg.Warmup.MaxTracked),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.workers = newWorkerPool(cfg.Workers.Count, cfg.Workers.QueueSize, func() {
		metricDroppedTasks.Inc()
	}, c.logger)

	c.memory.onRemove = c.onMemoryRemove

	if err := c.buildSlowTiers(); err != nil {
		c.workers.close()
		return nil, err
	}

	if cfg.Predictive.Enabled {
		engine, err := newPrefetchEngine(cfg.Predictive.Patterns, func(key string) {
			c.workers.submit(func() {
				c.refill(context.Background(), key)
			})
		}, logging.NewLogger("prefetch"))
		if err != nil {
			c.closeTiers()
			c.workers.close()
			return nil, err
		}
		c.prefetch = engine
	}

	c.loopWG.Add(1)
	go c.statsLoop()

	if cfg.Warmup.OnStart {
		c.workers.submit(func() {
			c.Warmup(context.Background())
		})
	}

	c.logger.Info().
		Str("namespace", cfg.Namespace).
		Int("memory_max_size", cfg.Memory.MaxSize).
		Int("slow_tiers", len(c.slow)).
		Msg("cache constructed")

	return c, nil
}

// buildSlowTiers assembles the probe order from injected backends and
// enabled config sections.
func (c *Cache) buildSlowTiers() error {
	find := func(name string) *injectedTier {
		for i := range c.injected {
			if c.injected[i].name == name {
				return &c.injected[i]
			}
		}
		return nil
	}

	type tierSpec struct {
		name    string
		enabled bool
		build   func() (types.Tier, error)
		ttl     time.Duration
		timeout time.Duration
	}

	specs := []tierSpec{
		{TierRemote, c.cfg.Remote.Enabled, c.cfg.buildRemote, c.cfg.Remote.TTL, c.cfg.Remote.Timeout},
		{TierEdge, c.cfg.Edge.Enabled, c.cfg.buildEdge, c.cfg.Edge.TTL, c.cfg.Edge.Timeout},
		{TierClient, c.cfg.Client.Enabled, c.cfg.buildClient, c.cfg.Client.TTL, c.cfg.Client.Timeout},
	}

	for _, spec := range specs {
		var (
			backend types.Tier
			ttl     = spec.ttl
			timeout = spec.timeout
		)

		if inj := find(spec.name); inj != nil {
			backend = inj.backend
			if inj.ttl > 0 {
				ttl = inj.ttl
			}
			if inj.timeout > 0 {
				timeout = inj.timeout
			}
		} else if spec.enabled {
			built, err := spec.build()
			if err != nil {
				c.closeTiers()
				return err
			}
			backend = built
		}

		if backend == nil {
			continue
		}

		breakerCfg := c.cfg.Breaker
		breakerCfg.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, types.ErrNotFound)
		}

		c.slow = append(c.slow, slowTier{
			name:    spec.name,
			backend: backend,
			breaker: circuit.NewBreaker(spec.name, breakerCfg),
			timeout: timeout,
			ttl:     ttl,
		})
		c.stats.tier(spec.name)
	}

	return nil
}

// Get looks key up across the tiers and decodes the value into dest,
// which must be a pointer. It reports whether a live value was found;
// backend failures and decode errors surface as misses.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c.closed.Load() {
		return false
	}

	start := time.Now()

	c.mu.Lock()
	entry := c.memory.get(key, start)
	c.mu.Unlock()

	if entry != nil {
		if err := c.codec.DecodeValue(entry.Value, entry.Metadata.Compressed, dest); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Str("tier", TierMemory).Msg("undecodable entry dropped")
			c.mu.Lock()
			c.memory.delete(key)
			c.mu.Unlock()
			c.publishError(TierMemory, err)
			entry = nil
		} else {
			c.stats.recordTierHit(TierMemory)
			metricHits.WithLabelValues(TierMemory).Inc()
			c.recordHit(TierMemory, key, time.Since(start))
			return true
		}
	}
	if entry == nil {
		c.stats.recordTierMiss(TierMemory)
	}

	entry, from := c.lookupSlow(ctx, key)
	if entry == nil {
		c.recordMiss(key, time.Since(start))
		return false
	}

	if err := c.codec.DecodeValue(entry.Value, entry.Metadata.Compressed, dest); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Str("tier", c.slow[from].name).Msg("undecodable entry dropped")
		c.deleteFromTierAsync(c.slow[from].name, key)
		c.publishError(c.slow[from].name, err)
		c.recordMiss(key, time.Since(start))
		return false
	}

	entry.Metadata.HitCount++
	entry.Metadata.LastAccessed = time.Now()
	c.promote(entry, from)

	c.recordHit(c.slow[from].name, key, time.Since(start))
	return true
}

// Get is the typed lookup helper. The zero value of T and false mean
// absent.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	if !c.Get(ctx, key, &v) {
		var zero T
		return zero, false
	}
	return v, true
}

// lookupSlow probes the slow tiers in latency order and returns the
// first live decoded entry plus its tier index. Every failure mode at a
// tier (backend error, open breaker, undecodable envelope, expired
// entry) degrades to a miss for that tier and the cascade continues.
func (c *Cache) lookupSlow(ctx context.Context, key string) (*types.Entry, int) {
	if len(c.slow) == 0 {
		return nil, 0
	}

	if c.cfg.Singleflight {
		type result struct {
			entry *types.Entry
			from  int
		}
		v, _, _ := c.flight.Do(key, func() (interface{}, error) {
			entry, from := c.cascadeSlow(ctx, key)
			return result{entry, from}, nil
		})
		res := v.(result)
		return res.entry, res.from
	}

	return c.cascadeSlow(ctx, key)
}

func (c *Cache) cascadeSlow(ctx context.Context, key string) (*types.Entry, int) {
	now := time.Now()

	for i := range c.slow {
		st := &c.slow[i]

		data, err := c.probe(ctx, st, key)
		if err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				c.absorbTierError(st.name, "get", err)
			}
			c.stats.recordTierMiss(st.name)
			continue
		}

		entry, err := c.codec.DecodeEntry(data)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Str("tier", st.name).Msg("corrupt envelope dropped")
			c.deleteFromTierAsync(st.name, key)
			c.publishError(st.name, err)
			c.stats.recordTierMiss(st.name)
			continue
		}

		if entry.Expired(now) {
			c.deleteFromTierAsync(st.name, key)
			c.stats.recordTierMiss(st.name)
			continue
		}

		c.stats.recordTierHit(st.name)
		metricHits.WithLabelValues(st.name).Inc()
		return entry, i
	}

	return nil, 0
}

// probe runs one tier Get through its breaker and timeout.
func (c *Cache) probe(ctx context.Context, st *slowTier, key string) ([]byte, error) {
	var data []byte
	err := st.breaker.Execute(func() error {
		pctx := ctx
		if st.timeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, st.timeout)
			defer cancel()
		}
		var err error
		data, err = st.backend.Get(pctx, key)
		return err
	})
	return data, err
}

// promote copies an entry found at slow tier from into every faster
// tier: synchronously into memory so the next Get hits immediately,
// asynchronously into the faster slow tiers.
func (c *Cache) promote(entry *types.Entry, from int) {
	c.mu.Lock()
	c.memory.set(entry)
	c.tags.register(entry.Key, entry.Metadata.Tags)
	c.syncMemoryGauges()
	c.mu.Unlock()

	if from == 0 {
		return
	}

	envelope, err := c.codec.EncodeEntry(entry)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", entry.Key).Msg("promotion encode failed")
		return
	}

	for i := 0; i < from; i++ {
		st := &c.slow[i]
		key := entry.Key
		c.workers.submit(func() {
			c.writeTier(st, key, envelope, entry.Metadata.TTL)
		})
	}
}

// SetOption customizes a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl  time.Duration
	tags []string
}

// WithTTL overrides the configured TTL for this entry.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// WithTags attaches tags for later bulk invalidation via DeleteByTags.
func WithTags(tags ...string) SetOption {
	return func(o *setOptions) { o.tags = tags }
}

// Set stores value under key: synchronously in memory so an immediate
// Get is consistent, then in the background across the enabled slow
// tiers. Encode failures are logged and surfaced on the event stream;
// the caller is never blocked on a backend.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, opts ...SetOption) {
	if c.closed.Load() {
		return
	}

	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	payload, compressed, err := c.codec.EncodeValue(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("value encode failed, entry dropped")
		c.publishError("", err)
		return
	}

	ttl := o.ttl
	if ttl <= 0 {
		ttl = c.cfg.Memory.TTL
	}

	now := time.Now()
	entry := &types.Entry{
		Key:   key,
		Value: payload,
		Metadata: types.EntryMetadata{
			Created:      now,
			LastAccessed: now,
			SizeBytes:    len(payload),
			Compressed:   compressed,
			TTL:          ttl,
			Tags:         o.tags,
		},
	}

	c.mu.Lock()
	c.memory.set(entry)
	c.tags.register(key, o.tags)
	c.syncMemoryGauges()
	c.mu.Unlock()

	metricEntryBytes.Observe(float64(len(payload)))

	if len(c.slow) > 0 {
		envelope, err := c.codec.EncodeEntry(entry)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("envelope encode failed, slow tiers skipped")
			c.publishError("", err)
		} else {
			for i := range c.slow {
				st := &c.slow[i]
				tierTTL := o.ttl
				if tierTTL <= 0 {
					tierTTL = st.ttl
				}
				if tierTTL <= 0 {
					tierTTL = ttl
				}
				c.workers.submit(func() {
					c.writeTier(st, key, envelope, tierTTL)
				})
			}
		}
	}

	c.events.publish(types.Event{Kind: types.EventSet, Key: key, SizeBytes: len(payload)})
}

// writeTier performs one background tier write through the breaker.
func (c *Cache) writeTier(st *slowTier, key string, envelope []byte, ttl time.Duration) {
	err := st.breaker.Execute(func() error {
		ctx := context.Background()
		var cancel context.CancelFunc
		if st.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, st.timeout)
			defer cancel()
		}
		return st.backend.Set(ctx, key, envelope, ttl)
	})
	if err != nil {
		c.absorbTierError(st.name, "set", err)
	}
}

// Delete removes key from every tier and from the tag index.
func (c *Cache) Delete(ctx context.Context, key string) {
	if c.closed.Load() {
		return
	}

	c.mu.Lock()
	c.memory.delete(key)
	c.tags.deregister(key)
	c.syncMemoryGauges()
	c.mu.Unlock()

	c.deleteFromSlowAsync(key)
	c.events.publish(types.Event{Kind: types.EventDelete, Key: key})
}

// DeleteByTags removes every key registered under any of the given tags
// from every tier and returns the number of keys removed. The memory
// tier and tag index update atomically; slow-tier removal is
// asynchronous best effort.
func (c *Cache) DeleteByTags(ctx context.Context, tags ...string) int {
	if c.closed.Load() || len(tags) == 0 {
		return 0
	}

	c.mu.Lock()
	keys := c.tags.keysFor(tags)
	for _, key := range keys {
		c.memory.delete(key)
		c.tags.deregister(key)
	}
	c.syncMemoryGauges()
	c.mu.Unlock()

	for _, key := range keys {
		c.deleteFromSlowAsync(key)
		c.events.publish(types.Event{Kind: types.EventDelete, Key: key})
	}

	return len(keys)
}

// Clear empties every tier, the tag index, and the hot tracker, and
// resets stats to zero. Slow-tier clears run synchronously but best
// effort; a failing backend is logged and skipped.
func (c *Cache) Clear(ctx context.Context) {
	if c.closed.Load() {
		return
	}

	c.mu.Lock()
	c.memory.clear()
	c.tags.clear()
	c.syncMemoryGauges()
	c.mu.Unlock()

	for i := range c.slow {
		st := &c.slow[i]
		if err := st.backend.Clear(ctx); err != nil {
			c.absorbTierError(st.name, "clear", err)
		}
	}

	c.hot.reset()
	c.stats.reset()
}

// Warmup re-issues lookups so promotion re-populates the faster tiers
// from the slower ones. With no keys it uses the hot tracker's keys.
// Lookup concurrency is bounded by the configured warmup concurrency.
func (c *Cache) Warmup(ctx context.Context, keys ...string) {
	if c.closed.Load() {
		return
	}

	if len(keys) == 0 {
		keys = c.hot.hotKeys()
	}
	if len(keys) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.warmupLimit())

	for _, key := range keys {
		key := key
		g.Go(func() error {
			c.refill(gctx, key)
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Info().Int("keys", len(keys)).Msg("warmup completed")
}

func (c *Cache) warmupLimit() int {
	if c.cfg.Warmup.Concurrency > 0 {
		return c.cfg.Warmup.Concurrency
	}
	return 4
}

// refill populates the faster tiers for key without caller-visible
// stats: it is the quiet lookup behind warmup and prefetch.
func (c *Cache) refill(ctx context.Context, key string) {
	c.mu.Lock()
	entry := c.memory.peek(key)
	live := entry != nil && !entry.Expired(time.Now())
	c.mu.Unlock()
	if live {
		return
	}

	found, from := c.lookupSlow(ctx, key)
	if found == nil {
		return
	}
	c.promote(found, from)
}

// Stats returns a point-in-time snapshot, safe to call concurrently
// with any other operation.
func (c *Cache) Stats() types.CacheStats {
	return c.stats.snapshot()
}

// Subscribe registers an event channel with the given buffer. Events are
// dropped for subscribers that fall behind; the returned cancel function
// closes the channel.
func (c *Cache) Subscribe(buffer int) (<-chan types.Event, func()) {
	return c.events.subscribe(buffer)
}

// Flush blocks until all queued background work (promotions, tier
// writes, deletes, prefetches) has finished.
func (c *Cache) Flush() {
	c.workers.flush()
}

// Shutdown drains background work and closes the tier backends. The
// context bounds the drain; backends are closed regardless.
func (c *Cache) Shutdown(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(c.stopCh)
	c.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		c.workers.close()
		close(done)
	}()

	var drainErr error
	select {
	case <-done:
	case <-ctx.Done():
		drainErr = cacheerrors.Wrap(cacheerrors.ErrCodeOperationTimeout, "background drain cut short", ctx.Err())
	}

	c.closeTiers()
	c.events.close()

	c.logger.Info().Msg("cache shut down")
	return drainErr
}

func (c *Cache) closeTiers() {
	for i := range c.slow {
		if err := c.slow[i].backend.Close(); err != nil {
			c.logger.Warn().Err(err).Str("tier", c.slow[i].name).Msg("tier close failed")
		}
	}
}

// onMemoryRemove is the memory tier dispose hook. It runs under c.mu, so
// the tag index never references an entry the memory tier has dropped.
func (c *Cache) onMemoryRemove(entry *types.Entry, reason removeReason) {
	c.tags.deregister(entry.Key)

	if reason == reasonEvicted {
		c.stats.recordEviction(TierMemory)
		metricEvictions.WithLabelValues(TierMemory).Inc()
		c.events.publish(types.Event{Kind: types.EventEviction, Tier: TierMemory, Key: entry.Key})
	}
}

// syncMemoryGauges refreshes the resident-entry gauges. Caller holds mu.
func (c *Cache) syncMemoryGauges() {
	n := int64(c.memory.len())
	c.stats.setTierSize(TierMemory, n)
	metricMemoryEntries.Set(float64(n))
}

func (c *Cache) recordHit(tier, key string, latency time.Duration) {
	c.stats.recordHit()
	c.events.publish(types.Event{Kind: types.EventHit, Tier: tier, Key: key, Latency: latency})

	c.hot.record(key)
	if c.prefetch != nil {
		c.prefetch.onHit(key)
	}
}

func (c *Cache) recordMiss(key string, latency time.Duration) {
	c.stats.recordMiss()
	metricMisses.Inc()
	c.events.publish(types.Event{Kind: types.EventMiss, Key: key, Latency: latency})
}

// absorbTierError downgrades a backend failure to telemetry. Open
// breakers are expected while a backend cools down and log at debug.
func (c *Cache) absorbTierError(tier, op string, err error) {
	metricTierErrors.WithLabelValues(tier, op).Inc()
	c.publishError(tier, err)

	if errors.Is(err, circuit.ErrOpenState) || errors.Is(err, circuit.ErrTooManyRequests) {
		c.logger.Debug().Str("tier", tier).Str("operation", op).Msg("tier skipped, breaker open")
		return
	}
	c.logger.Warn().Err(err).Str("tier", tier).Str("operation", op).Msg("tier error absorbed")
}

func (c *Cache) publishError(tier string, err error) {
	c.events.publish(types.Event{Kind: types.EventError, Tier: tier, Err: err})
}

// deleteFromSlowAsync queues a best-effort delete on every slow tier.
func (c *Cache) deleteFromSlowAsync(key string) {
	for i := range c.slow {
		st := &c.slow[i]
		c.workers.submit(func() {
			c.deleteTier(st, key)
		})
	}
}

// deleteFromTierAsync queues a best-effort delete on one tier by name.
func (c *Cache) deleteFromTierAsync(name, key string) {
	for i := range c.slow {
		if c.slow[i].name != name {
			continue
		}
		st := &c.slow[i]
		c.workers.submit(func() {
			c.deleteTier(st, key)
		})
		return
	}
}

func (c *Cache) deleteTier(st *slowTier, key string) {
	err := st.breaker.Execute(func() error {
		ctx := context.Background()
		var cancel context.CancelFunc
		if st.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, st.timeout)
			defer cancel()
		}
		return st.backend.Delete(ctx, key)
	})
	if err != nil {
		c.absorbTierError(st.name, "delete", err)
	}
}

// statsLoop periodically publishes a stats snapshot event.
func (c *Cache) statsLoop() {
	defer c.loopWG.Done()

	interval := c.cfg.StatsInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			snap := c.stats.snapshot()
			c.events.publish(types.Event{Kind: types.EventStats, Stats: &snap})
		}
	}
}
