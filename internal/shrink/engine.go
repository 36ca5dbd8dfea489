package shrink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/schaermu/imgshrink/internal/changelog"
	"github.com/schaermu/imgshrink/internal/compressor"
	"github.com/schaermu/imgshrink/internal/config"
	"github.com/schaermu/imgshrink/internal/digest"
	"github.com/schaermu/imgshrink/internal/fsutil"
	"github.com/schaermu/imgshrink/internal/imgutil"
	"github.com/schaermu/imgshrink/internal/index"
)

// DiscoverFunc lists the directories to visit and their eligible files
type DiscoverFunc func(fs afero.Fs, root string) ([]index.Group, error)

// Engine walks a tree one directory at a time, compressing changed images
// and keeping each directory's change log in sync
type Engine struct {
	fs         afero.Fs
	compressor compressor.Compressor
	logger     *slog.Logger
	opts       config.RunOptions
	discover   DiscoverFunc
	updates    chan<- ProgressUpdate
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

// WithDiscovery replaces the directory discovery, mainly for tests
func WithDiscovery(fn DiscoverFunc) EngineOption {
	return func(e *Engine) {
		e.discover = fn
	}
}

// WithProgress makes the engine report per-file progress on updates. The
// caller owns the channel and closes it after Run returns
func WithProgress(updates chan<- ProgressUpdate) EngineOption {
	return func(e *Engine) {
		e.updates = updates
	}
}

// NewEngine creates a new engine. opts are normalized
func NewEngine(fs afero.Fs, comp compressor.Compressor, logger *slog.Logger, opts config.RunOptions, options ...EngineOption) *Engine {
	e := &Engine{
		fs:         fs,
		compressor: comp,
		logger:     logger,
		opts:       opts.Normalize(),
		discover:   discoverImages,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func discoverImages(fs afero.Fs, root string) ([]index.Group, error) {
	return index.Discover(fs, root, changelog.FileName)
}

// Options returns the normalized run options
func (e *Engine) Options() config.RunOptions {
	return e.opts
}

// Run processes every directory below root. Failing files and directories
// are counted and the walk continues; the returned error wraps
// ErrFilesFailed when anything failed. A cancelled context, or a compressor
// reporting itself unavailable, stops the walk after the current directory's
// log has been written
func (e *Engine) Run(ctx context.Context, root string) (*Summary, error) {
	summary := &Summary{DryRun: e.opts.DryRun}

	e.logger.Info("starting run",
		"root", root,
		"mode", e.opts.Mode(),
		"backup", e.opts.Backup,
		"dry_run", e.opts.DryRun)

	groups, err := e.discover(e.fs, root)
	if err != nil {
		return summary, &IOError{Op: "discover", Path: root, Err: err}
	}

	total := index.Count(groups)
	e.logger.Info("discovered images", "directories", len(groups), "files", total)
	e.send(ctx, ProgressUpdate{TotalDelta: total})

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := e.processDir(ctx, group, summary); err != nil {
			return summary, err
		}
	}

	e.logger.Info("run complete",
		"directories", summary.Directories,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"logged", summary.Logged,
		"failed", summary.Failed,
		"dir_failures", summary.DirFailures,
		"bytes_saved", summary.BytesSaved())

	if n := summary.Failures(); n > 0 {
		return summary, fmt.Errorf("%w: %d file(s), %d directory(ies)", ErrFilesFailed, summary.Failed, summary.DirFailures)
	}
	return summary, nil
}

// processDir runs the per-directory lifecycle: load the log, handle every
// file, prune entries for vanished files and persist. It only returns an
// error when the run must stop (cancelled context or a compressor that
// became unavailable), and only after persisting
func (e *Engine) processDir(ctx context.Context, group index.Group, summary *Summary) error {
	logger := e.logger.With("dir", group.Dir)
	summary.Directories++

	log, err := changelog.Load(e.fs, group.Dir, e.opts)
	if err != nil {
		// Without the log nothing in this directory can be decided safely
		logger.Error("failed to load change log, skipping directory", "error", err)
		summary.DirFailures++
		e.send(ctx, ProgressUpdate{FailedDelta: len(group.Files)})
		return nil
	}
	if n := log.Skipped(); n > 0 {
		logger.Warn("ignored malformed change log lines", "count", n)
	}

	var stop error
	for _, name := range group.Files {
		if err := ctx.Err(); err != nil {
			stop = err
			break
		}
		if err := e.processFile(ctx, logger, group.Dir, name, log, summary); err != nil {
			stop = err
			break
		}
	}

	present, err := index.ListEligible(e.fs, group.Dir)
	if err != nil {
		logger.Error("failed to list directory, keeping stale entries", "error", err)
		summary.DirFailures++
	} else if removed := log.Prune(present); len(removed) > 0 {
		logger.Info("pruned stale entries", "count", len(removed), "files", removed)
	}

	if err := log.Persist(e.fs, group.Dir, e.opts, logger); err != nil {
		logger.Error("failed to persist change log", "error", &IOError{Op: "persist", Path: changelog.Path(group.Dir), Err: err})
		summary.DirFailures++
	}

	return stop
}

// processFile decides and acts on a single file. Per-file failures are
// recorded in summary; the returned error aborts the run
func (e *Engine) processFile(ctx context.Context, logger *slog.Logger, dir, name string, log *changelog.Log, summary *Summary) error {
	path := filepath.Join(dir, name)

	decision, err := Decide(e.fs, path, name, log, e.opts)
	if err != nil {
		e.fail(ctx, logger, path, summary, &IOError{Op: "digest", Path: path, Err: err})
		return nil
	}

	switch decision.Action {
	case ActionSkip:
		logger.Debug("unchanged, skipping", "file", name)
		summary.Skipped++
		e.send(ctx, ProgressUpdate{SkippedDelta: 1, File: path})

	case ActionLogOnly:
		if err := log.Update(name, decision.Digest); err != nil {
			logger.Warn("file cannot be tracked in change log", "file", name, "error", err)
		}
		logger.Debug("recorded digest", "file", name, "digest", decision.Digest)
		summary.Logged++
		e.send(ctx, ProgressUpdate{ProcessedDelta: 1, File: path})

	case ActionProcess:
		return e.compressFile(ctx, logger, path, name, log, summary)
	}
	return nil
}

// compressFile runs one file through the compressor and swaps the result in
func (e *Engine) compressFile(ctx context.Context, logger *slog.Logger, path, name string, log *changelog.Log, summary *Summary) error {
	src, err := afero.ReadFile(e.fs, path)
	if err != nil {
		e.fail(ctx, logger, path, summary, &IOError{Op: "read", Path: path, Err: err})
		return nil
	}

	if err := imgutil.MatchesName(name, src); err != nil {
		e.fail(ctx, logger, path, summary, &CompressionError{Path: path, Err: err})
		return nil
	}

	if e.opts.DryRun {
		logger.Info("[dry-run] would compress", "file", name, "size", len(src), "backup", e.opts.Backup)
		summary.Processed++
		e.send(ctx, ProgressUpdate{ProcessedDelta: 1, File: path})
		return nil
	}

	out, err := e.compressor.Compress(ctx, name, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Interrupted, not a failure of this file
			logger.Warn("compression interrupted", "file", name)
			return ctxErr
		}
		e.fail(ctx, logger, path, summary, &CompressionError{Path: path, Err: err})
		if errors.Is(err, compressor.ErrUnavailable) {
			return err
		}
		return nil
	}

	if err := imgutil.Verify(src, out); err != nil {
		e.fail(ctx, logger, path, summary, &CompressionError{Path: path, Err: err})
		return nil
	}

	if e.opts.NoRegress && len(out) >= len(src) {
		logger.Info("output not smaller, keeping original", "file", name, "size", len(src), "compressed", len(out))
		out = src
	} else {
		if err := e.writeResult(path, out); err != nil {
			e.fail(ctx, logger, path, summary, err)
			return nil
		}
		logger.Info("compressed", "file", name, "before", len(src), "after", len(out))
	}

	if err := log.Update(name, digest.Bytes(out)); err != nil {
		logger.Warn("file cannot be tracked in change log", "file", name, "error", err)
	}

	saved := int64(len(src) - len(out))
	summary.Processed++
	summary.BytesBefore += int64(len(src))
	summary.BytesAfter += int64(len(out))
	e.send(ctx, ProgressUpdate{ProcessedDelta: 1, BytesSavedDelta: saved, File: path})
	return nil
}

// writeResult stores the backup when enabled, then atomically replaces path
func (e *Engine) writeResult(path string, out []byte) error {
	if e.opts.Backup {
		backupPath := path + index.BackupSuffix
		if err := fsutil.CopyFile(e.fs, path, backupPath); err != nil {
			return &IOError{Op: "backup", Path: backupPath, Err: err}
		}
	}

	if err := fsutil.ReplaceFile(e.fs, path, out); err != nil {
		return &IOError{Op: "replace", Path: path, Err: err}
	}
	return nil
}

// fail records a per-file failure; the change log entry is left untouched so
// the next run retries the file
func (e *Engine) fail(ctx context.Context, logger *slog.Logger, path string, summary *Summary, err error) {
	level := slog.LevelError
	var ce *CompressionError
	if errors.As(err, &ce) {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "failed to process file", "file", filepath.Base(path), "error", err)
	summary.Failed++
	e.send(ctx, ProgressUpdate{FailedDelta: 1, File: path})
}

// send reports progress without outliving a cancelled run
func (e *Engine) send(ctx context.Context, update ProgressUpdate) {
	if e.updates == nil {
		return
	}
	select {
	case e.updates <- update:
	case <-ctx.Done():
	}
}
