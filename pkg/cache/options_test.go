package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiercache/tiercache/pkg/codec"
)

// TestConfig_Validate tests the required and bounded fields
func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.Memory.MaxSize = 100
		cfg.Memory.TTL = time.Minute
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing memory max size", func(c *Config) { c.Memory.MaxSize = 0 }, true},
		{"missing memory ttl", func(c *Config) { c.Memory.TTL = 0 }, true},
		{"remote enabled without addr", func(c *Config) { c.Remote.Enabled = true }, true},
		{"edge enabled without endpoint", func(c *Config) { c.Edge.Enabled = true }, true},
		{"client enabled without directory", func(c *Config) { c.Client.Enabled = true }, true},
		{"unknown storage kind", func(c *Config) { c.Client.StorageKind = "indexeddb" }, true},
		{"negative compression threshold", func(c *Config) { c.CompressionThreshold = -1 }, true},
		{"confidence out of range", func(c *Config) {
			c.Predictive.Patterns = []PatternConfig{{Match: "a", Confidence: 2}}
		}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestDefaultConfig spot-checks documented defaults
func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Namespace != "tiercache" {
		t.Errorf("unexpected default namespace %q", cfg.Namespace)
	}
	if cfg.Serialization != codec.ModeBinary {
		t.Errorf("unexpected default serialization %q", cfg.Serialization)
	}
	if cfg.CompressionThreshold != codec.DefaultCompressionThreshold {
		t.Errorf("unexpected default compression threshold %d", cfg.CompressionThreshold)
	}
	if cfg.Memory.MaxSize != 0 || cfg.Memory.TTL != 0 {
		t.Error("memory capacity and TTL must have no defaults")
	}
	if cfg.StatsInterval != 30*time.Second {
		t.Errorf("unexpected default stats interval %v", cfg.StatsInterval)
	}
	if cfg.Singleflight {
		t.Error("singleflight must default to off")
	}
}

// TestLoadFromFile tests yaml layering over defaults
func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.yaml")

	content := `
namespace: orders
serialization: text
memory:
  max_size: 500
  ttl: 2m
remote:
  enabled: true
  addr: localhost:6379
  ttl: 10m
predictive:
  enabled: true
  patterns:
    - match: "^order:(\\d+)$"
      templates: ["invoice:$1"]
      confidence: 0.8
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Namespace != "orders" {
		t.Errorf("namespace not loaded: %q", cfg.Namespace)
	}
	if cfg.Serialization != codec.ModeText {
		t.Errorf("serialization not loaded: %q", cfg.Serialization)
	}
	if cfg.Memory.MaxSize != 500 || cfg.Memory.TTL != 2*time.Minute {
		t.Errorf("memory config not loaded: %+v", cfg.Memory)
	}
	if !cfg.Remote.Enabled || cfg.Remote.Addr != "localhost:6379" {
		t.Errorf("remote config not loaded: %+v", cfg.Remote)
	}
	// Unset fields keep their defaults.
	if cfg.Remote.Timeout != 250*time.Millisecond {
		t.Errorf("default remote timeout lost: %v", cfg.Remote.Timeout)
	}
	if len(cfg.Predictive.Patterns) != 1 || cfg.Predictive.Patterns[0].Confidence != 0.8 {
		t.Errorf("predictive patterns not loaded: %+v", cfg.Predictive.Patterns)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config failed validation: %v", err)
	}
}

// TestLoadFromFile_Missing tests the error path
func TestLoadFromFile_Missing(t *testing.T) {
	t.Parallel()

	if _, err := LoadFromFile("/nonexistent/cache.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

// TestApplyEnv tests environment overrides
func TestApplyEnv(t *testing.T) {
	t.Setenv("TIERCACHE_NAMESPACE", "envns")
	t.Setenv("TIERCACHE_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("TIERCACHE_REDIS_DB", "3")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Namespace != "envns" {
		t.Errorf("namespace override missed: %q", cfg.Namespace)
	}
	if !cfg.Remote.Enabled || cfg.Remote.Addr != "redis.internal:6379" {
		t.Errorf("redis addr override missed: %+v", cfg.Remote)
	}
	if cfg.Remote.DB != 3 {
		t.Errorf("redis db override missed: %d", cfg.Remote.DB)
	}
}
