// Package codec serializes cache values and entry envelopes, compressing
// payloads above a configurable size threshold.
//
// Two serialization modes are supported: binary (msgpack, the default and
// the faster of the two) and text (JSON, for debuggability). Compression is
// gzip and is lossless; decode(encode(v)) == v for every representable v.
package codec

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

// Mode selects the serialization format.
type Mode string

const (
	// ModeBinary serializes with msgpack.
	ModeBinary Mode = "binary"
	// ModeText serializes with JSON.
	ModeText Mode = "text"
)

// DefaultCompressionThreshold is the payload size in bytes above which
// values are compressed.
const DefaultCompressionThreshold = 1024

// Codec encodes and decodes cache values. It is stateless and safe for
// concurrent use.
type Codec struct {
	mode      Mode
	compress  bool
	threshold int
}

// New creates a Codec. A non-positive threshold falls back to
// DefaultCompressionThreshold.
func New(mode Mode, compress bool, threshold int) (*Codec, error) {
	switch mode {
	case ModeBinary, ModeText:
	case "":
		mode = ModeBinary
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unknown serialization mode %q", mode)
	}
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	return &Codec{mode: mode, compress: compress, threshold: threshold}, nil
}

// Mode returns the configured serialization mode.
func (c *Codec) Mode() Mode {
	return c.mode
}

// EncodeValue serializes v and compresses the result when compression is
// enabled and the serialized form exceeds the threshold. The returned flag
// reports whether compression was applied.
func (c *Codec) EncodeValue(v interface{}) ([]byte, bool, error) {
	data, err := c.marshal(v)
	if err != nil {
		return nil, false, errors.NewSerialization("encode value", err)
	}

	if !c.compress || len(data) <= c.threshold {
		return data, false, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, false, errors.NewSerialization("compress value", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, errors.NewSerialization("compress value", err)
	}
	return buf.Bytes(), true, nil
}

// DecodeValue reverses EncodeValue into dest, decompressing first when the
// payload was stored compressed.
func (c *Codec) DecodeValue(data []byte, compressed bool, dest interface{}) error {
	if compressed {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return errors.NewSerialization("decompress value", err)
		}
		defer zr.Close()

		data, err = io.ReadAll(zr)
		if err != nil {
			return errors.NewSerialization("decompress value", err)
		}
	}

	if err := c.unmarshal(data, dest); err != nil {
		return errors.NewSerialization("decode value", err)
	}
	return nil
}

// EncodeEntry serializes a full entry envelope for storage in a slow tier.
// The envelope itself is never compressed; the payload inside it already is
// when it crossed the threshold.
func (c *Codec) EncodeEntry(e *types.Entry) ([]byte, error) {
	data, err := c.marshal(e)
	if err != nil {
		return nil, errors.NewSerialization("encode entry", err)
	}
	return data, nil
}

// DecodeEntry reverses EncodeEntry.
func (c *Codec) DecodeEntry(data []byte) (*types.Entry, error) {
	var e types.Entry
	if err := c.unmarshal(data, &e); err != nil {
		return nil, errors.NewSerialization("decode entry", err)
	}
	return &e, nil
}

func (c *Codec) marshal(v interface{}) ([]byte, error) {
	if c.mode == ModeText {
		return json.Marshal(v)
	}
	return msgpack.Marshal(v)
}

func (c *Codec) unmarshal(data []byte, dest interface{}) error {
	if c.mode == ModeText {
		return json.Unmarshal(data, dest)
	}
	return msgpack.Unmarshal(data, dest)
}
