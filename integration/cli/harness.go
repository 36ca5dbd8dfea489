//go:build integration

// Package cli runs the compiled imgshrink binary against real directory
// trees.
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/imgshrink/internal/testutil"
)

const defaultTimeout = 2 * time.Minute

// Harness owns a compiled binary, a scratch image tree and a config file
type Harness struct {
	t      *testing.T
	bin    string
	Root   string
	config string
}

// Result captures one invocation of the binary
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// NewHarness builds the binary and creates an empty tree
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "photos")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("create root: %v", err)
	}
	return &Harness{
		t:      t,
		bin:    testutil.BuildBinary(t),
		Root:   root,
		config: filepath.Join(dir, "config.yaml"),
	}
}

// WriteConfig configures the shell backend with command and args
func (h *Harness) WriteConfig(command string, args ...string) {
	h.t.Helper()
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	content := fmt.Sprintf(`compressor:
  backend: shell
  command: %q
  args: [%s]
  timeout: 30s
`, command, strings.Join(quoted, ", "))
	if err := os.WriteFile(h.config, []byte(content), 0o600); err != nil {
		h.t.Fatalf("write config: %v", err)
	}
}

// WriteImage writes a generated PNG at rel below the root
func (h *Harness) WriteImage(rel string, seed uint8) {
	h.t.Helper()
	path := filepath.Join(h.Root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.t.Fatalf("create dir: %v", err)
	}
	if err := os.WriteFile(path, testutil.PNG(h.t, 16, 16, seed), 0o644); err != nil {
		h.t.Fatalf("write image: %v", err)
	}
}

// ReadLog returns the change log of the directory rel, or "" when absent
func (h *Harness) ReadLog(rel string) string {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.Root, rel, ".imgshrink.log"))
	if errors.Is(err, os.ErrNotExist) {
		return ""
	}
	if err != nil {
		h.t.Fatalf("read log: %v", err)
	}
	return string(data)
}

// Run executes the binary with the harness config prepended
func (h *Harness) Run(ctx context.Context, args ...string) Result {
	h.t.Helper()

	full := append([]string{"--config", h.config, "--log-level", "debug"}, args...)
	cmd := exec.CommandContext(ctx, h.bin, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, &testWriter{t: h.t, prefix: "[out] "})
	cmd.Stderr = io.MultiWriter(&stderr, &testWriter{t: h.t, prefix: "[err] "})

	res := Result{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			h.t.Fatalf("run imgshrink: %v", err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return res
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
