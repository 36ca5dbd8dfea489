package compressor

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/schaermu/imgshrink/internal/config"
	"github.com/schaermu/imgshrink/internal/imgutil"
)

// LocalClient re-encodes JPEG and PNG images in process
type LocalClient struct {
	quality int
}

// NewLocalClient creates a client encoding JPEGs at quality
func NewLocalClient(quality int) *LocalClient {
	if quality <= 0 || quality > 100 {
		quality = config.DefaultQuality
	}
	return &LocalClient{quality: quality}
}

// Name returns the backend name
func (c *LocalClient) Name() string {
	return "local"
}

// Available always succeeds, the encoders are compiled in
func (c *LocalClient) Available(_ context.Context) error {
	return nil
}

// Compress decodes src and encodes it again with tighter settings
func (c *LocalClient) Compress(ctx context.Context, name string, src []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kind, err := imgutil.Detect(src)
	if err != nil {
		return nil, err
	}

	var (
		format imaging.Format
		opts   []imaging.EncodeOption
	)
	switch kind {
	case imgutil.KindJPEG:
		format = imaging.JPEG
		opts = append(opts, imaging.JPEGQuality(c.quality))
	case imgutil.KindPNG:
		format = imaging.PNG
		opts = append(opts, imaging.PNGCompressionLevel(png.BestCompression))
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, name, kind)
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(src))
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
