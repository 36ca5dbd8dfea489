package shrink

import (
	"errors"
	"fmt"
)

// ErrFilesFailed is returned by Run when the walk completed but some files or
// directories could not be handled
var ErrFilesFailed = errors.New("one or more files failed")

// IOError reports a file or change log that could not be read or written
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// CompressionError reports a compressor call or output check that failed for
// one file
type CompressionError struct {
	Path string
	Err  error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("compress %s: %v", e.Path, e.Err)
}

func (e *CompressionError) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid invocation or configuration, detected
// before any file is touched
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError formats a ConfigError
func NewConfigError(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}
