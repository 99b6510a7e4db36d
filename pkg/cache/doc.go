// Package cache implements a multi-tier caching engine: a bounded
// in-process LRU tier backed by up to three slower shared tiers (remote
// key-value store, edge HTTP cache, client-persisted disk store).
//
// Reads cascade fastest-first and stop at the first live hit; a hit at a
// slower tier is promoted into the faster ones so subsequent reads get
// cheaper. Writes land in the memory tier synchronously and fan out to
// the slow tiers in the background. Entries carry a TTL and optional
// tags for bulk invalidation, and a predictive engine can warm related
// keys on access patterns.
//
// Backend failures never reach callers as errors: a failing tier
// degrades to misses and no-ops, surfaced only through the event stream,
// logs, and metrics.
//
//	cfg := cache.DefaultConfig()
//	cfg.Memory.MaxSize = 10_000
//	cfg.Memory.TTL = 5 * time.Minute
//	cfg.Remote.Enabled = true
//	cfg.Remote.Addr = "localhost:6379"
//
//	c, err := cache.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Shutdown(context.Background())
//
//	c.Set(ctx, "user:42", profile, cache.WithTTL(time.Minute), cache.WithTags("users"))
//	if p, ok := cache.Get[Profile](ctx, c, "user:42"); ok {
//		// use p
//	}
//	c.DeleteByTags(ctx, "users")
package cache
