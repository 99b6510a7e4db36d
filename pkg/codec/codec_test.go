package codec

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

type sample struct {
	Name   string   `json:"name" msgpack:"name"`
	Rank   int      `json:"rank" msgpack:"rank"`
	Labels []string `json:"labels" msgpack:"labels"`
}

// TestNew tests codec construction and mode validation
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		wantErr bool
	}{
		{"binary mode", ModeBinary, false},
		{"text mode", ModeText, false},
		{"empty defaults to binary", "", false},
		{"unknown mode rejected", "protobuf", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(tt.mode, false, 0)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.threshold != DefaultCompressionThreshold {
				t.Errorf("expected default threshold %d, got %d", DefaultCompressionThreshold, c.threshold)
			}
		})
	}
}

// TestCodec_ValueRoundTrip verifies decode(encode(v)) == v in both modes
func TestCodec_ValueRoundTrip(t *testing.T) {
	modes := []Mode{ModeBinary, ModeText}

	for _, mode := range modes {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			c, err := New(mode, false, 0)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			in := sample{Name: "widget", Rank: 7, Labels: []string{"a", "b"}}
			data, compressed, err := c.EncodeValue(in)
			if err != nil {
				t.Fatalf("EncodeValue: %v", err)
			}
			if compressed {
				t.Error("compression disabled but payload reported compressed")
			}

			var out sample
			if err := c.DecodeValue(data, compressed, &out); err != nil {
				t.Fatalf("DecodeValue: %v", err)
			}
			if !reflect.DeepEqual(in, out) {
				t.Errorf("round trip mismatch: in=%+v out=%+v", in, out)
			}
		})
	}
}

// TestCodec_CompressionThreshold verifies compression triggers only above
// the threshold and remains lossless
func TestCodec_CompressionThreshold(t *testing.T) {
	c, err := New(ModeBinary, true, 64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Run("small payload stays uncompressed", func(t *testing.T) {
		data, compressed, err := c.EncodeValue("tiny")
		if err != nil {
			t.Fatalf("EncodeValue: %v", err)
		}
		if compressed {
			t.Error("payload below threshold was compressed")
		}

		var out string
		if err := c.DecodeValue(data, compressed, &out); err != nil {
			t.Fatalf("DecodeValue: %v", err)
		}
		if out != "tiny" {
			t.Errorf("expected %q, got %q", "tiny", out)
		}
	})

	t.Run("large payload compresses and round trips", func(t *testing.T) {
		in := strings.Repeat("abcdefgh", 512)
		data, compressed, err := c.EncodeValue(in)
		if err != nil {
			t.Fatalf("EncodeValue: %v", err)
		}
		if !compressed {
			t.Fatal("payload above threshold was not compressed")
		}
		if len(data) >= len(in) {
			t.Errorf("compressed size %d not smaller than input %d", len(data), len(in))
		}

		var out string
		if err := c.DecodeValue(data, compressed, &out); err != nil {
			t.Fatalf("DecodeValue: %v", err)
		}
		if out != in {
			t.Error("compressed round trip mismatch")
		}
	})
}

// TestCodec_EntryRoundTrip verifies the envelope survives both modes
func TestCodec_EntryRoundTrip(t *testing.T) {
	for _, mode := range []Mode{ModeBinary, ModeText} {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			c, err := New(mode, true, 1024)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			now := time.Now().UTC().Truncate(time.Millisecond)
			in := &types.Entry{
				Key:   "user:42",
				Value: []byte{0x01, 0x02, 0x03},
				Metadata: types.EntryMetadata{
					Created:      now,
					LastAccessed: now,
					HitCount:     3,
					SizeBytes:    3,
					TTL:          time.Minute,
					Tags:         []string{"users"},
				},
			}

			data, err := c.EncodeEntry(in)
			if err != nil {
				t.Fatalf("EncodeEntry: %v", err)
			}

			out, err := c.DecodeEntry(data)
			if err != nil {
				t.Fatalf("DecodeEntry: %v", err)
			}

			if out.Key != in.Key {
				t.Errorf("key mismatch: %q vs %q", out.Key, in.Key)
			}
			if !reflect.DeepEqual(out.Value, in.Value) {
				t.Error("value bytes mismatch")
			}
			if out.Metadata.HitCount != in.Metadata.HitCount {
				t.Errorf("hit count mismatch: %d vs %d", out.Metadata.HitCount, in.Metadata.HitCount)
			}
			if out.Metadata.TTL != in.Metadata.TTL {
				t.Errorf("ttl mismatch: %v vs %v", out.Metadata.TTL, in.Metadata.TTL)
			}
			if !reflect.DeepEqual(out.Metadata.Tags, in.Metadata.Tags) {
				t.Error("tags mismatch")
			}
		})
	}
}

// TestCodec_DecodeCorrupt verifies corrupt bytes surface a serialization
// error rather than a panic
func TestCodec_DecodeCorrupt(t *testing.T) {
	c, err := New(ModeBinary, false, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.DecodeEntry([]byte("not an envelope")); err == nil {
		t.Error("expected error decoding corrupt envelope")
	}

	var out sample
	if err := c.DecodeValue([]byte{0xff, 0x00}, true, &out); err == nil {
		t.Error("expected error decompressing corrupt payload")
	}
}
