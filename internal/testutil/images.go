// Package testutil provides fixtures shared by the package tests: image
// generators, a scriptable compressor and helpers for locating the module.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/spf13/afero"
)

// PNG returns an uncompressed w x h PNG filled with a pattern derived from
// seed. Different seeds yield different bytes, and re-encoding with
// compression always shrinks the result.
func PNG(t testing.TB, w, h int, seed uint8) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: seed, G: uint8(x), B: uint8(y), A: 255})
		}
	}

	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// WriteImages writes a PNG per path into fs, using the index as seed
func WriteImages(t testing.TB, fs afero.Fs, paths ...string) {
	t.Helper()
	for i, p := range paths {
		if err := afero.WriteFile(fs, p, PNG(t, 16, 16, uint8(i+1)), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// ReadFile reads path from fs or fails the test
func ReadFile(t testing.TB, fs afero.Fs, path string) []byte {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
