// Package changelog maintains the per-directory record of image digests that
// lets repeated runs skip files whose content has not changed.
//
// The persisted form is a plain text file inside the directory it describes,
// one "<digest>\t<name>" line per image, sorted by name.
package changelog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/schaermu/imgshrink/internal/config"
	"github.com/schaermu/imgshrink/internal/digest"
	"github.com/schaermu/imgshrink/internal/fsutil"
)

// FileName is the name of the change log inside each directory.
const FileName = ".imgshrink.log"

// Entry is one persisted line of a change log.
type Entry struct {
	Name   string // file name relative to the log's directory
	Digest string // SHA256 hex digest of the file content
}

// Log maps file names in one directory to their last known digest.
type Log struct {
	entries map[string]string
	enabled bool
	skipped int
}

// New returns an empty log. A disabled log ignores updates and is never
// written.
func New(enabled bool) *Log {
	return &Log{
		entries: make(map[string]string),
		enabled: enabled,
	}
}

// Path returns the change log path for dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the change log of dir. The file is not read when logging is
// disabled or a rebuild was requested; a missing file yields an empty log.
func Load(fsys afero.Fs, dir string, opts config.RunOptions) (*Log, error) {
	l := New(opts.UseChangeLog)
	if !opts.UseChangeLog || opts.RebuildLog || opts.RebuildLogOnly {
		return l, nil
	}

	f, err := fsys.Open(Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	if err := l.parse(f); err != nil {
		return nil, fmt.Errorf("failed to read change log %s: %w", Path(dir), err)
	}

	return l, nil
}

// Parse reads a change log in its persisted form. Malformed lines are
// skipped and counted.
func Parse(r io.Reader) (*Log, error) {
	l := New(true)
	if err := l.parse(r); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) parse(r io.Reader) error {
	// Lines of any length are read; overlong garbage is one skipped line
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			l.parseLine(raw)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (l *Log) parseLine(raw string) {
	line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
	if line == "" {
		return
	}

	sum, name, ok := strings.Cut(line, "\t")
	if !ok || sum == "" || name == "" {
		l.skipped++
		return
	}

	l.entries[name] = sum
}

// Enabled reports whether updates are recorded and the log is persisted.
func (l *Log) Enabled() bool {
	return l.enabled
}

// Skipped returns the number of malformed lines dropped while loading.
func (l *Log) Skipped() int {
	return l.skipped
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Lookup returns the recorded digest for name.
func (l *Log) Lookup(name string) (string, bool) {
	d, ok := l.entries[name]
	return d, ok
}

// Update records digest for name, replacing any previous value.
func (l *Log) Update(name, sum string) error {
	if !l.enabled {
		return nil
	}
	if err := validName(name); err != nil {
		return err
	}
	if !digest.Valid(sum) {
		return fmt.Errorf("invalid digest %q for %s", sum, name)
	}
	l.entries[name] = sum
	return nil
}

func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid file name %q", name)
	case strings.ContainsAny(name, "/\t\n\r"), strings.ContainsRune(name, filepath.Separator):
		return fmt.Errorf("file name %q cannot be recorded in a change log", name)
	}
	return nil
}

// Prune removes every entry whose name is not in present and returns the
// removed names in sorted order.
func (l *Log) Prune(present []string) []string {
	keep := make(map[string]struct{}, len(present))
	for _, name := range present {
		keep[name] = struct{}{}
	}

	var removed []string
	for name := range l.entries {
		if _, ok := keep[name]; !ok {
			removed = append(removed, name)
		}
	}
	for _, name := range removed {
		delete(l.entries, name)
	}

	sort.Strings(removed)
	return removed
}

// Entries returns all entries sorted by name.
func (l *Log) Entries() []Entry {
	entries := make([]Entry, 0, len(l.entries))
	for name, sum := range l.entries {
		entries = append(entries, Entry{Name: name, Digest: sum})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// WriteTo writes the persisted form of the log to w.
func (l *Log) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, e := range l.Entries() {
		written, err := fmt.Fprintf(bw, "%s\t%s\n", e.Digest, e.Name)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// Persist atomically writes the log to dir. Disabled logs are not written,
// and dry runs only report what would be written.
func (l *Log) Persist(fsys afero.Fs, dir string, opts config.RunOptions, logger *slog.Logger) error {
	if !l.enabled || !opts.UseChangeLog {
		return nil
	}

	if opts.DryRun {
		logger.Info("[dry-run] would write change log", "path", Path(dir), "entries", l.Len())
		return nil
	}

	var buf strings.Builder
	if _, err := l.WriteTo(&buf); err != nil {
		return err
	}

	if err := fsutil.WriteFileAtomic(fsys, Path(dir), []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("failed to write change log %s: %w", Path(dir), err)
	}

	logger.Debug("change log written", "path", Path(dir), "entries", l.Len())
	return nil
}
