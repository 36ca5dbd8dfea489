package testutil

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"
)

// FakeCompressor records calls and, by default, re-encodes PNGs at best
// compression. Set Fn to script other outcomes.
type FakeCompressor struct {
	Fn           func(name string, src []byte) ([]byte, error)
	AvailableErr error

	mu    sync.Mutex
	calls []string
}

// Name returns "fake"
func (f *FakeCompressor) Name() string {
	return "fake"
}

// Available returns AvailableErr
func (f *FakeCompressor) Available(_ context.Context) error {
	return f.AvailableErr
}

// Compress records the call and returns Fn's result or a recompressed PNG
func (f *FakeCompressor) Compress(ctx context.Context, name string, src []byte) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Fn != nil {
		return f.Fn(name, src)
	}
	return Recompress(src)
}

// Calls returns the names passed to Compress in call order
func (f *FakeCompressor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Recompress decodes a PNG and encodes it at best compression
func Recompress(src []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("fake compressor: %w", err)
	}
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
