package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/schaermu/imgshrink/internal/compressor"
	"github.com/schaermu/imgshrink/internal/config"
	"github.com/schaermu/imgshrink/internal/shrink"
	"github.com/schaermu/imgshrink/internal/tui"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Compress command flags
	noLog          bool
	rebuildLog     bool
	rebuildLogOnly bool
	backup         bool
	dryRun         bool
	backendName    string
	showProgress   bool
)

// Exit codes
const (
	exitOK          = 0
	exitFailures    = 1
	exitUsage       = 2
	exitUnavailable = 3
	exitRuntime     = 4
)

func main() {
	os.Exit(exitCode(rootCmd.Execute()))
}

var rootCmd = &cobra.Command{
	Use:   "imgshrink",
	Short: "Incrementally compress the images of a directory tree",
	Long: `imgshrink walks a directory tree and runs every JPEG, PNG, WebP and AVIF image
through a compressor. Each directory keeps a small change log with the digest of
every file it already handled, so later runs only touch new or modified images.`,
	SilenceUsage: true,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return shrink.NewConfigError("unknown command %q for %q", args[0], cmd.CommandPath())
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("imgshrink %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func newCompressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress <root>",
		Short: "Compress new and changed images below root",
		Long: `Compress visits every directory below root that holds images, compares each
file against the directory's change log and runs only new or modified files
through the configured compressor.

With --rebuild-log-only no image is touched: the change logs are rewritten from
the current contents of the tree, marking everything as already compressed.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return shrink.NewConfigError("compress requires exactly one root directory, got %d", len(args))
			}
			return nil
		},
		RunE: runCompress,
	}

	cmd.Flags().BoolVar(&noLog, "no-log", false, "ignore change logs and compress every image")
	cmd.Flags().BoolVar(&rebuildLog, "rebuild-log", false, "compress every image and write fresh change logs")
	cmd.Flags().BoolVar(&rebuildLogOnly, "rebuild-log-only", false, "rewrite change logs from the current files without compressing")
	cmd.Flags().BoolVar(&backup, "backup", false, "keep a .bak copy of every replaced image")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	cmd.Flags().StringVar(&backendName, "compressor", "", "compressor backend (shell, tinify, local)")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "show a live progress view")

	return cmd
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/imgshrink/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &shrink.ConfigError{Err: err}
	})

	// Add commands
	rootCmd.AddCommand(newCompressCmd())
	rootCmd.AddCommand(versionCmd)
}

func runCompress(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// The progress view owns stdout while it runs
	var logOut io.Writer = os.Stdout
	if showProgress {
		logOut = os.Stderr
	}
	logger := setupLogger(logOut)

	root, err := checkRoot(args[0])
	if err != nil {
		return err
	}

	// Load configuration
	cfg, err := loadConfig(logger)
	if err != nil {
		return &shrink.ConfigError{Err: fmt.Errorf("failed to load config: %w", err)}
	}

	if cmd.Flags().Changed("compressor") {
		cfg.Compressor.Backend = config.Backend(backendName)
		if err := cfg.Compressor.Validate(); err != nil {
			return &shrink.ConfigError{Err: err}
		}
	}
	opts := runOptions(cmd, cfg)

	comp, err := compressor.New(cfg.Compressor)
	if err != nil {
		return &shrink.ConfigError{Err: err}
	}

	// Rebuilding the logs never calls the compressor
	if !opts.Normalize().RebuildLogOnly {
		if err := comp.Available(ctx); err != nil {
			logger.Error("compressor unavailable", "compressor", comp.Name(), "error", err)
			return err
		}
	}

	summary, err := runEngine(ctx, cancel, logger, comp, opts, root)
	if summary != nil {
		fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSummary(tui.SummaryRows(summary)))
	}
	if err != nil {
		logger.Error("run failed", "error", err)
		return err
	}

	return nil
}

// runEngine runs the engine, optionally attached to the progress view
func runEngine(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, comp compressor.Compressor, opts config.RunOptions, root string) (*shrink.Summary, error) {
	fs := afero.NewOsFs()

	if !showProgress {
		return shrink.NewEngine(fs, comp, logger, opts).Run(ctx, root)
	}

	updates := make(chan shrink.ProgressUpdate, 64)
	engine := shrink.NewEngine(fs, comp, logger, opts, shrink.WithProgress(updates))

	program := tea.NewProgram(tui.NewModel(updates, cancel))
	uiDone := make(chan error, 1)
	go func() {
		_, err := program.Run()
		if err != nil {
			// Keep the engine from blocking on a dead view
			for range updates {
			}
		}
		uiDone <- err
	}()

	summary, err := engine.Run(ctx, root)
	close(updates)
	if uiErr := <-uiDone; uiErr != nil {
		logger.Warn("progress view failed", "error", uiErr)
	}
	return summary, err
}

// runOptions merges the config file defaults with explicitly set flags
func runOptions(cmd *cobra.Command, cfg *config.Config) config.RunOptions {
	opts := cfg.RunOptions()

	flags := cmd.Flags()
	if flags.Changed("no-log") {
		opts.UseChangeLog = !noLog
	}
	if flags.Changed("backup") {
		opts.Backup = backup
	}
	opts.RebuildLog = rebuildLog
	opts.RebuildLogOnly = rebuildLogOnly
	opts.DryRun = dryRun

	return opts
}

func checkRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", shrink.NewConfigError("invalid root %q: %v", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", shrink.NewConfigError("invalid root: %v", err)
	}
	if !info.IsDir() {
		return "", shrink.NewConfigError("root %s is not a directory", abs)
	}
	return abs, nil
}

func setupLogger(w io.Writer) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// loadConfig reads the config file. The default path is optional; an
// explicitly passed --config must exist.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "imgshrink", "config.yaml")

		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			logger.Debug("no config file found, using defaults", "path", configPath)
			cfg := config.Default()
			return &cfg, nil
		}
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"backend", cfg.Compressor.Backend,
		"use_change_log", cfg.Options.UseChangeLog,
		"backup", cfg.Options.Backup,
		"no_regress", cfg.Options.NoRegress)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

// exitCode maps an error returned by a command to the process exit status
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var cfgErr *shrink.ConfigError
	switch {
	case errors.Is(err, compressor.ErrUnavailable):
		return exitUnavailable
	case errors.As(err, &cfgErr):
		return exitUsage
	case errors.Is(err, shrink.ErrFilesFailed):
		return exitFailures
	default:
		return exitRuntime
	}
}
