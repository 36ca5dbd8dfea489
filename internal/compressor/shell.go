package compressor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/schaermu/imgshrink/internal/config"
)

// ShellClient implements Compressor by running an external optimizer on
// temp copies of each image
type ShellClient struct {
	command string
	args    []string
	timeout time.Duration
	inPlace bool
}

// NewShellClient creates a client for the command configured in cfg
func NewShellClient(cfg config.CompressorConfig) *ShellClient {
	return &ShellClient{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		timeout: cfg.Timeout.Duration,
		inPlace: !cfg.HasOutput(),
	}
}

// Name returns the backend name including the command
func (c *ShellClient) Name() string {
	return "shell:" + filepath.Base(c.command)
}

// Available checks that the command can be found
func (c *ShellClient) Available(_ context.Context) error {
	if _, err := exec.LookPath(c.command); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.command, err)
	}
	return nil
}

// Compress writes src to a temp file, runs the command and reads the result
// back from {out}, or from {in} when the command works in place
func (c *ShellClient) Compress(ctx context.Context, name string, src []byte) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "imgshrink-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	// Keep the extension, most optimizers pick the format from it
	ext := strings.ToLower(filepath.Ext(name))
	inPath := filepath.Join(tmpDir, "in"+ext)
	outPath := filepath.Join(tmpDir, "out"+ext)

	if err := os.WriteFile(inPath, src, 0600); err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.command, expandArgs(c.args, inPath, outPath)...)
	cmd.Dir = tmpDir
	if err := c.runCommand(cmd); err != nil {
		return nil, fmt.Errorf("%s failed: %w", filepath.Base(c.command), err)
	}

	resultPath := outPath
	if c.inPlace {
		resultPath = inPath
	}

	out, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read compressor output: %w", err)
	}
	return out, nil
}

// expandArgs substitutes the {in} and {out} placeholders
func expandArgs(args []string, inPath, outPath string) []string {
	r := strings.NewReplacer(config.PlaceholderIn, inPath, config.PlaceholderOut, outPath)
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = r.Replace(arg)
	}
	return result
}

// runCommand executes a command and returns an error with its output on failure
func (c *ShellClient) runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
