package tier

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	cacheerrors "github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/types"
)

// ClientConfig configures the client-persisted tier.
type ClientConfig struct {
	// Directory is where entry files and the index live.
	Directory string `yaml:"directory"`

	// Namespace scopes this cache's entries within the directory.
	Namespace string `yaml:"namespace"`

	// MaxBytes bounds total stored bytes. Zero means 256 MiB.
	MaxBytes int64 `yaml:"max_bytes"`

	// CleanupInterval is how often expired entries are purged.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// SyncInterval is how often the index is flushed to disk.
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// clientItem is one entry in the on-disk index.
type clientItem struct {
	Key        string    `json:"key"`
	FilePath   string    `json:"file_path"`
	Size       int64     `json:"size"`
	StoredAt   time.Time `json:"stored_at"`
	AccessedAt time.Time `json:"accessed_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	Checksum   string    `json:"checksum"`
}

func (it *clientItem) expired(now time.Time) bool {
	return !it.ExpiresAt.IsZero() && now.After(it.ExpiresAt)
}

// Client is the persisted store on the caller's machine. Entries survive
// process restarts; the index is rebuilt from disk on startup. Data is
// stored as-is (the envelope payload is already compressed above the
// codec threshold) with a checksum to catch partial writes.
type Client struct {
	mu          sync.RWMutex
	directory   string
	namespace   string
	maxBytes    int64
	currentSize int64
	index       map[string]*clientItem
	config      ClientConfig
	logger      zerolog.Logger
	writeFile   func(path string, data []byte, perm os.FileMode) error

	stopCh chan struct{}
	closed bool
}

// NewClient creates the client-persisted tier and loads any surviving
// index from a previous run.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Directory == "" {
		return nil, cacheerrors.New(cacheerrors.ErrCodeMissingConfig, "client tier requires a directory")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "tiercache"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 256 * 1024 * 1024
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = time.Minute
	}

	dir := filepath.Join(cfg.Directory, cfg.Namespace)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, cacheerrors.Wrap(cacheerrors.ErrCodeInvalidConfig, "create cache directory", err).
			WithTier("client")
	}

	c := &Client{
		directory: dir,
		namespace: cfg.Namespace,
		maxBytes:  cfg.MaxBytes,
		index:     make(map[string]*clientItem),
		config:    cfg,
		logger:    logging.NewLogger("tier-client"),
		writeFile: os.WriteFile,
		stopCh:    make(chan struct{}),
	}

	if err := c.loadIndex(); err != nil {
		return nil, cacheerrors.Wrap(cacheerrors.ErrCodeInvalidState, "load cache index", err).
			WithTier("client")
	}

	go c.cleanupLoop()
	go c.syncLoop()

	return c, nil
}

// Name implements types.Tier.
func (c *Client) Name() string {
	return "client"
}

// Get implements types.Tier. A checksum mismatch removes the damaged
// file and reports a miss so the caller refills from a slower tier.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, cacheerrors.Wrap(cacheerrors.ErrCodeOperationCanceled, "get canceled", err).WithTier(c.Name())
	}

	c.mu.RLock()
	item, ok := c.index[key]
	c.mu.RUnlock()

	if !ok {
		return nil, types.ErrNotFound
	}

	if item.expired(time.Now()) {
		c.remove(key)
		return nil, types.ErrNotFound
	}

	data, err := os.ReadFile(item.FilePath)
	if err != nil {
		c.remove(key)
		return nil, types.ErrNotFound
	}

	if checksum(data) != item.Checksum {
		c.logger.Warn().Str("key", key).Msg("checksum mismatch, discarding entry")
		c.remove(key)
		return nil, types.ErrNotFound
	}

	c.mu.Lock()
	if item, ok := c.index[key]; ok {
		item.AccessedAt = time.Now()
	}
	c.mu.Unlock()

	return data, nil
}

// Set implements types.Tier. When the write fails for lack of space the
// namespace is cleared once and the write retried; a second failure is
// reported as a quota error and the entry is dropped. Any other write
// failure leaves existing entries alone.
func (c *Client) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return cacheerrors.Wrap(cacheerrors.ErrCodeOperationCanceled, "set canceled", err).WithTier(c.Name())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store(key, data, ttl); err != nil {
		if !outOfSpace(err) {
			return cacheerrors.NewTierUnavailable(c.Name(), "set", err)
		}
		c.logger.Warn().Err(err).Str("key", key).Msg("storage full, clearing namespace and retrying")
		c.clearLocked()
		if err := c.store(key, data, ttl); err != nil {
			return cacheerrors.NewQuotaExceeded(c.Name(), err)
		}
	}

	c.evictIfNeeded()
	return nil
}

// outOfSpace reports whether err is a storage quota condition.
func outOfSpace(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT)
}

func (c *Client) store(key string, data []byte, ttl time.Duration) error {
	now := time.Now()
	item := &clientItem{
		Key:        key,
		FilePath:   c.entryPath(key),
		Size:       int64(len(data)),
		StoredAt:   now,
		AccessedAt: now,
		Checksum:   checksum(data),
	}
	if ttl > 0 {
		item.ExpiresAt = now.Add(ttl)
	}

	if old, ok := c.index[key]; ok {
		_ = os.Remove(old.FilePath)
		c.currentSize -= old.Size
		delete(c.index, key)
	}

	if err := c.writeFile(item.FilePath, data, 0640); err != nil {
		_ = os.Remove(item.FilePath)
		return err
	}

	c.index[key] = item
	c.currentSize += item.Size
	return nil
}

// Delete implements types.Tier.
func (c *Client) Delete(ctx context.Context, key string) error {
	c.remove(key)
	return nil
}

// Clear implements types.Tier. Only this namespace's subdirectory is
// touched; other caches sharing the parent directory keep their data.
func (c *Client) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	return nil
}

func (c *Client) clearLocked() {
	for _, item := range c.index {
		_ = os.Remove(item.FilePath)
	}
	c.index = make(map[string]*clientItem)
	c.currentSize = 0
}

// Close implements types.Tier. The index is flushed so the next run can
// rebuild without rescanning entry files.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stopCh)

	return c.saveIndex()
}

// Size returns the total stored bytes.
func (c *Client) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSize
}

func (c *Client) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, ok := c.index[key]; ok {
		_ = os.Remove(item.FilePath)
		delete(c.index, key)
		c.currentSize -= item.Size
	}
}

func (c *Client) entryPath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(c.directory, fmt.Sprintf("%x.cache", hash[:12]))
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

const indexFile = "index.json"

func (c *Client) loadIndex() error {
	indexPath := filepath.Join(c.directory, indexFile)
	if !strings.HasPrefix(filepath.Clean(indexPath), filepath.Clean(c.directory)) {
		return fmt.Errorf("invalid index path: %s", indexPath)
	}

	raw, err := os.ReadFile(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var items map[string]*clientItem
	if err := json.Unmarshal(raw, &items); err != nil {
		// Corrupt index: start fresh, entry files get rewritten on use.
		c.logger.Warn().Err(err).Msg("discarding unreadable index")
		return nil
	}

	now := time.Now()
	c.currentSize = 0
	for key, item := range items {
		if item.expired(now) {
			_ = os.Remove(item.FilePath)
			continue
		}
		if _, err := os.Stat(item.FilePath); os.IsNotExist(err) {
			continue
		}
		c.index[key] = item
		c.currentSize += item.Size
	}

	return nil
}

func (c *Client) saveIndex() error {
	indexPath := filepath.Join(c.directory, indexFile)
	tmpPath := indexPath + ".tmp"

	raw, err := json.Marshal(c.index)
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmpPath, raw, 0640); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, indexPath)
}

func (c *Client) evictIfNeeded() {
	for c.currentSize > c.maxBytes {
		if !c.evictOldest() {
			break
		}
	}
}

func (c *Client) evictOldest() bool {
	var (
		oldestKey  string
		oldestTime time.Time
		first      = true
	)

	for key, item := range c.index {
		if first || item.AccessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.AccessedAt
			first = false
		}
	}

	if oldestKey == "" {
		return false
	}

	item := c.index[oldestKey]
	_ = os.Remove(item.FilePath)
	delete(c.index, oldestKey)
	c.currentSize -= item.Size
	return true
}

func (c *Client) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := time.Now()

			c.mu.Lock()
			for key, item := range c.index {
				if item.expired(now) {
					_ = os.Remove(item.FilePath)
					delete(c.index, key)
					c.currentSize -= item.Size
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) syncLoop() {
	ticker := time.NewTicker(c.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.RLock()
			if err := c.saveIndex(); err != nil {
				c.logger.Warn().Err(err).Msg("index sync failed")
			}
			c.mu.RUnlock()
		}
	}
}
