// Package compressor provides the backends that turn image bytes into smaller
// image bytes. Backends never touch the source file; writing the result back
// is up to the caller.
package compressor

import (
	"context"
	"errors"
	"fmt"

	"github.com/schaermu/imgshrink/internal/config"
)

// ErrUnavailable marks a backend whose external dependency is missing
// (binary not installed, no API key).
var ErrUnavailable = errors.New("compressor unavailable")

// ErrUnsupportedFormat is returned for images a backend cannot handle.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Compressor optimizes a single image
type Compressor interface {
	// Name identifies the backend in logs
	Name() string
	// Available checks that the backend can run; failures wrap ErrUnavailable
	Available(ctx context.Context) error
	// Compress returns the optimized form of src. name is the source file name
	// and only serves as a format hint.
	Compress(ctx context.Context, name string, src []byte) ([]byte, error)
}

// New creates the backend selected in cfg
func New(cfg config.CompressorConfig) (Compressor, error) {
	switch cfg.Backend {
	case config.BackendShell:
		return NewShellClient(cfg), nil
	case config.BackendTinify:
		return NewTinifyClient(cfg), nil
	case config.BackendLocal:
		return NewLocalClient(cfg.Quality), nil
	default:
		return nil, fmt.Errorf("unknown compressor backend %q", cfg.Backend)
	}
}
