package changelog

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/schaermu/imgshrink/internal/config"
	"github.com/schaermu/imgshrink/internal/digest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var (
	digestA = digest.Bytes([]byte("a"))
	digestB = digest.Bytes([]byte("b"))
	digestC = digest.Bytes([]byte("c"))
)

func defaultOptions() config.RunOptions {
	return config.RunOptions{UseChangeLog: true}
}

func TestParse(t *testing.T) {
	input := digestB + "\tb.png\n" +
		"\n" +
		digestA + "\ta.png\r\n" +
		"no-tab-here\n" +
		"\tmissing-digest.png\n" +
		digestC + "\t\n" +
		digestC + "\tname with spaces.jpg\n"

	l, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	want := []Entry{
		{Name: "a.png", Digest: digestA},
		{Name: "b.png", Digest: digestB},
		{Name: "name with spaces.jpg", Digest: digestC},
	}
	if got := l.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if l.Skipped() != 3 {
		t.Errorf("expected 3 skipped lines, got %d", l.Skipped())
	}
}

func TestWriteTo_SortedByName(t *testing.T) {
	l := New(true)
	for name, sum := range map[string]string{"c.webp": digestC, "a.png": digestA, "B.jpg": digestB} {
		if err := l.Update(name, sum); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	n, err := l.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}

	want := digestB + "\tB.jpg\n" + digestA + "\ta.png\n" + digestC + "\tc.webp\n"
	if buf.String() != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, buf.String())
	}
	if n != int64(len(want)) {
		t.Errorf("expected %d bytes written, got %d", len(want), n)
	}

	// The persisted form parses back to the same entries
	parsed, err := Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(parsed.Entries(), l.Entries()) {
		t.Errorf("round trip mismatch: %+v != %+v", parsed.Entries(), l.Entries())
	}
}

func TestUpdateAndLookup(t *testing.T) {
	l := New(true)

	if _, ok := l.Lookup("a.png"); ok {
		t.Error("expected no entry in empty log")
	}

	if err := l.Update("a.png", digestA); err != nil {
		t.Fatal(err)
	}
	if err := l.Update("a.png", digestB); err != nil {
		t.Fatal(err)
	}

	got, ok := l.Lookup("a.png")
	if !ok || got != digestB {
		t.Errorf("expected overwritten digest %s, got %s (ok=%v)", digestB, got, ok)
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", l.Len())
	}
}

func TestUpdate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		digest string
	}{
		{"path separator", "sub/a.png", digestA},
		{"tab", "a\tb.png", digestA},
		{"newline", "a\nb.png", digestA},
		{"empty name", "", digestA},
		{"dot", ".", digestA},
		{"bad digest", "a.png", "xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(true)
			if err := l.Update(tt.file, tt.digest); err == nil {
				t.Error("expected error, got nil")
			}
			if l.Len() != 0 {
				t.Errorf("rejected update must not be recorded, got %d entries", l.Len())
			}
		})
	}
}

func TestUpdate_DisabledIsNoop(t *testing.T) {
	l := New(false)
	if err := l.Update("a.png", digestA); err != nil {
		t.Fatal(err)
	}
	if l.Len() != 0 {
		t.Errorf("disabled log recorded an entry")
	}
}

func TestPrune(t *testing.T) {
	l := New(true)
	for name, sum := range map[string]string{"a.png": digestA, "b.png": digestB, "c.png": digestC} {
		if err := l.Update(name, sum); err != nil {
			t.Fatal(err)
		}
	}

	removed := l.Prune([]string{"a.png", "c.png", "new.png"})

	if !reflect.DeepEqual(removed, []string{"b.png"}) {
		t.Errorf("expected [b.png] removed, got %v", removed)
	}
	if _, ok := l.Lookup("b.png"); ok {
		t.Error("b.png should have been pruned")
	}
	if got, _ := l.Lookup("a.png"); got != digestA {
		t.Errorf("a.png entry changed: %s", got)
	}
	if _, ok := l.Lookup("new.png"); ok {
		t.Error("prune must not add entries")
	}

	if removed := l.Prune(nil); len(removed) != 2 || l.Len() != 0 {
		t.Errorf("expected all entries pruned, removed=%v len=%d", removed, l.Len())
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := digestA + "\ta.png\n" + "garbage\n"
	if err := afero.WriteFile(fs, "/img/"+FileName, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		opts    config.RunOptions
		wantLen int
	}{
		{"incremental", config.RunOptions{UseChangeLog: true}, 1},
		{"disabled", config.RunOptions{UseChangeLog: false}, 0},
		{"rebuild", config.RunOptions{UseChangeLog: true, RebuildLog: true}, 0},
		{"rebuild only", config.RunOptions{UseChangeLog: true, RebuildLogOnly: true}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Load(fs, "/img", tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if l.Len() != tt.wantLen {
				t.Errorf("expected %d entries, got %d", tt.wantLen, l.Len())
			}
			if l.Enabled() != tt.opts.UseChangeLog {
				t.Errorf("expected enabled=%v, got %v", tt.opts.UseChangeLog, l.Enabled())
			}
		})
	}
}

func TestLoad_OverlongLineIsSkipped(t *testing.T) {
	fs := afero.NewMemMapFs()
	junk := strings.Repeat("x", 70*1024)
	content := digestA + "\tkeep.png\n" + junk + "\n" + digestB + "\tafter.png\n"
	if err := afero.WriteFile(fs, "/img/"+FileName, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := Load(fs, "/img", config.RunOptions{UseChangeLog: true})
	if err != nil {
		t.Fatalf("overlong line should not fail the load, got %v", err)
	}
	if l.Skipped() != 1 {
		t.Errorf("expected 1 skipped line, got %d", l.Skipped())
	}
	for _, name := range []string{"keep.png", "after.png"} {
		if _, ok := l.Lookup(name); !ok {
			t.Errorf("expected entry for %s", name)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/img", 0755); err != nil {
		t.Fatal(err)
	}

	l, err := Load(fs, "/img", defaultOptions())
	if err != nil {
		t.Fatalf("missing log should not be an error: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("expected empty log, got %d entries", l.Len())
	}
}

// unreadableFs fails every open of the change log.
type unreadableFs struct {
	afero.Fs
}

func (f unreadableFs) Open(name string) (afero.File, error) {
	if strings.HasSuffix(name, FileName) {
		return nil, os.ErrPermission
	}
	return f.Fs.Open(name)
}

func TestLoad_ReadError(t *testing.T) {
	fs := unreadableFs{Fs: afero.NewMemMapFs()}
	if _, err := Load(fs, "/img", defaultOptions()); !errors.Is(err, os.ErrPermission) {
		t.Errorf("expected permission error, got %v", err)
	}
}

func TestPersist(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/img", 0755); err != nil {
		t.Fatal(err)
	}

	l := New(true)
	if err := l.Update("b.png", digestB); err != nil {
		t.Fatal(err)
	}
	if err := l.Update("a.png", digestA); err != nil {
		t.Fatal(err)
	}

	if err := l.Persist(fs, "/img", defaultOptions(), testLogger()); err != nil {
		t.Fatal(err)
	}

	got, err := afero.ReadFile(fs, "/img/"+FileName)
	if err != nil {
		t.Fatal(err)
	}
	want := digestA + "\ta.png\n" + digestB + "\tb.png\n"
	if string(got) != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, string(got))
	}

	// Reloading yields the same entries
	reloaded, err := Load(fs, "/img", defaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(reloaded.Entries(), l.Entries()) {
		t.Errorf("reload mismatch: %+v != %+v", reloaded.Entries(), l.Entries())
	}
}

func TestPersist_Noops(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		opts    config.RunOptions
	}{
		{"dry run", true, config.RunOptions{UseChangeLog: true, DryRun: true}},
		{"disabled log", false, config.RunOptions{UseChangeLog: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if err := fs.MkdirAll("/img", 0755); err != nil {
				t.Fatal(err)
			}

			l := New(tt.enabled)
			l.entries["a.png"] = digestA

			if err := l.Persist(fs, "/img", tt.opts, testLogger()); err != nil {
				t.Fatal(err)
			}
			if exists, _ := afero.Exists(fs, "/img/"+FileName); exists {
				t.Error("log file must not be written")
			}
		})
	}
}

// failingRenameFs simulates a crash after the temp file was written.
type failingRenameFs struct {
	afero.Fs
}

func (f failingRenameFs) Rename(_, _ string) error {
	return io.ErrUnexpectedEOF
}

func TestPersist_CrashKeepsPreviousLog(t *testing.T) {
	base := afero.NewMemMapFs()
	previous := digestA + "\ta.png\n"
	if err := afero.WriteFile(base, "/img/"+FileName, []byte(previous), 0644); err != nil {
		t.Fatal(err)
	}

	l := New(true)
	if err := l.Update("b.png", digestB); err != nil {
		t.Fatal(err)
	}

	err := l.Persist(failingRenameFs{Fs: base}, "/img", defaultOptions(), testLogger())
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected rename error, got %v", err)
	}

	got, err := afero.ReadFile(base, "/img/"+FileName)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != previous {
		t.Errorf("previous log must stay intact, got %q", string(got))
	}
}
