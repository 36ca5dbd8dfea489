package index

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/afero"
)

func TestIsEligible(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"photo.png", true},
		{"photo.jpg", true},
		{"photo.jpeg", true},
		{"photo.webp", true},
		{"photo.avif", true},
		{"PHOTO.PNG", true},
		{"Photo.JpEg", true},
		{"photo.png.bak", false},
		{"photo.gif", false},
		{"photo", false},
		{"notes.txt", false},
		{".imgshrink.log", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEligible(tt.name); got != tt.want {
				t.Errorf("IsEligible(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func writeFiles(t *testing.T, fs afero.Fs, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := afero.WriteFile(fs, p, []byte(p), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListEligible(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs,
		"/root/b.png",
		"/root/a.JPG",
		"/root/a.JPG.bak",
		"/root/readme.md",
		"/root/sub/c.png",
	)

	got, err := ListEligible(fs, "/root")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"a.JPG", "b.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestListEligible_SkipsDirectoriesNamedLikeImages(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/root/album.png", 0755); err != nil {
		t.Fatal(err)
	}
	writeFiles(t, fs, "/root/real.png")

	got, err := ListEligible(fs, "/root")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "real.png" {
		t.Errorf("expected [real.png], got %v", got)
	}
}

func TestListEligible_SkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.png"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "a.png"), filepath.Join(dir, "link.png")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	got, err := ListEligible(afero.NewOsFs(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"a.png"}) {
		t.Errorf("expected [a.png], got %v", got)
	}
}

func TestDiscover(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs,
		"/root/z.png",
		"/root/a.png",
		"/root/a/sub/x.webp",
		"/root/a/b.jpg",
		"/root/a-b/y.avif",
		"/root/.git/objects/c.png",
		"/root/empty/notes.txt",
		"/root/stale/.imgshrink.log",
	)

	groups, err := Discover(fs, "/root", ".imgshrink.log")
	if err != nil {
		t.Fatal(err)
	}

	want := []Group{
		{Dir: "/root", Files: []string{"a.png", "z.png"}},
		{Dir: "/root/a", Files: []string{"b.jpg"}},
		{Dir: "/root/a-b", Files: []string{"y.avif"}},
		{Dir: "/root/a/sub", Files: []string{"x.webp"}},
		{Dir: "/root/stale", Files: nil},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("expected %+v, got %+v", want, groups)
	}

	if n := Count(groups); n != 5 {
		t.Errorf("expected 5 files, got %d", n)
	}
}

func TestDiscover_HiddenRootIsWalked(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/.photos/a.png")

	groups, err := Discover(fs, "/.photos", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0].Dir != "/.photos" {
		t.Errorf("expected root group, got %+v", groups)
	}
}

func TestDiscover_RootErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/file.png")

	if _, err := Discover(fs, "/missing", ""); err == nil {
		t.Error("expected error for missing root")
	}
	if _, err := Discover(fs, "/file.png", ""); err == nil {
		t.Error("expected error for non-directory root")
	}
}
