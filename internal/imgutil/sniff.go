// Package imgutil identifies image formats by their leading bytes and checks
// that compressor output is still a usable image.
package imgutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

// Kind identifies a supported image type.
type Kind int

const (
	KindUnknown Kind = iota
	KindJPEG
	KindPNG
	KindWebP
	KindAVIF
)

func (k Kind) String() string {
	switch k {
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindWebP:
		return "webp"
	case KindAVIF:
		return "avif"
	default:
		return "unknown"
	}
}

// HeaderSize is the number of leading bytes Detect needs.
const HeaderSize = 12

var (
	pngSig  = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegSig = []byte{0xff, 0xd8, 0xff}
	riffSig = []byte("RIFF")
	webpSig = []byte("WEBP")
	ftypSig = []byte("ftyp")
)

// ErrTruncated is returned when data is too short to carry a signature.
var ErrTruncated = errors.New("header too short")

// Detect inspects the leading bytes of an image for known signatures.
func Detect(data []byte) (Kind, error) {
	if len(data) < HeaderSize {
		return KindUnknown, ErrTruncated
	}

	switch {
	case bytes.HasPrefix(data, jpegSig):
		return KindJPEG, nil
	case bytes.HasPrefix(data, pngSig):
		return KindPNG, nil
	case bytes.HasPrefix(data, riffSig) && bytes.Equal(data[8:12], webpSig):
		return KindWebP, nil
	case bytes.Equal(data[4:8], ftypSig) && isAVIF(data):
		return KindAVIF, nil
	}

	return KindUnknown, nil
}

// isAVIF checks the major brand and the compatible brands of the ftyp box.
// HEIF writers often use mif1 or msf1 as major brand and only list avif as
// compatible.
func isAVIF(data []byte) bool {
	if isAVIFBrand(data[8:12]) {
		return true
	}

	end := len(data)
	if size := int(binary.BigEndian.Uint32(data[0:4])); size >= 16 && size < end {
		end = size
	}
	// Compatible brands follow the major brand and the minor version
	for i := 16; i+4 <= end; i += 4 {
		if isAVIFBrand(data[i : i+4]) {
			return true
		}
	}
	return false
}

func isAVIFBrand(brand []byte) bool {
	return bytes.Equal(brand, []byte("avif")) || bytes.Equal(brand, []byte("avis"))
}

// KindFromName maps a file extension to the kind it is expected to hold.
func KindFromName(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return KindJPEG
	case ".png":
		return KindPNG
	case ".webp":
		return KindWebP
	case ".avif":
		return KindAVIF
	default:
		return KindUnknown
	}
}

// MatchesName checks that data carries the signature its file name
// promises, so mislabeled or truncated files never reach a compressor.
func MatchesName(name string, data []byte) error {
	want := KindFromName(name)
	got, err := Detect(data)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("content is %s, extension says %s", got, want)
	}
	return nil
}

// Verify checks that out is an image of the same kind as in and, where a
// decoder is available, that its header decodes to a non-empty image.
func Verify(in, out []byte) error {
	if len(out) == 0 {
		return errors.New("compressor returned no data")
	}

	want, err := Detect(in)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	got, err := Detect(out)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if got != want {
		return fmt.Errorf("output is %s, expected %s", got, want)
	}

	// The standard library has no AVIF decoder, the signature check must do
	if got == KindAVIF || got == KindUnknown {
		return nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		return fmt.Errorf("output does not decode as %s: %w", got, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("output has empty dimensions %dx%d", cfg.Width, cfg.Height)
	}

	return nil
}
