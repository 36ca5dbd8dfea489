// Package index finds the images eligible for compression, either directly
// inside one directory or grouped by directory across a whole tree.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// BackupSuffix is appended to an image path to form its backup copy.
const BackupSuffix = ".bak"

// ValidExtensions are the image extensions eligible for compression, lower case
var ValidExtensions = []string{
	".png",
	".jpg",
	".jpeg",
	".webp",
	".avif",
}

// Group is one directory together with its eligible files, sorted by name.
type Group struct {
	Dir   string
	Files []string
}

// IsEligible returns true if name has an eligible extension and is not a backup
func IsEligible(name string) bool {
	if strings.HasSuffix(name, BackupSuffix) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, valid := range ValidExtensions {
		if ext == valid {
			return true
		}
	}
	return false
}

// ListEligible returns the names of eligible regular files directly inside dir.
func ListEligible(fs afero.Fs, dir string) ([]string, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		if IsEligible(info.Name()) {
			names = append(names, info.Name())
		}
	}

	sort.Strings(names)
	return names, nil
}

// Discover walks root and returns one group per directory that holds eligible
// files or a file named marker (the change log). Hidden directories below root
// are skipped. Groups are ordered by directory path.
func Discover(fs afero.Fs, root, marker string) ([]Group, error) {
	info, err := fs.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var groups []Group
	err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}

		// Skip hidden directories (e.g. .git, .cache)
		if path != root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}

		files, err := ListEligible(fs, path)
		if err != nil {
			return err
		}
		if len(files) == 0 && !hasMarker(fs, path, marker) {
			return nil
		}

		groups = append(groups, Group{Dir: path, Files: files})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sorting full file paths would interleave directories ("a/sub/b.png"
	// lands between "a/a.png" and "a/c.png"), so order by directory instead.
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Dir < groups[j].Dir
	})

	return groups, nil
}

func hasMarker(fs afero.Fs, dir, marker string) bool {
	if marker == "" {
		return false
	}
	info, err := fs.Stat(filepath.Join(dir, marker))
	return err == nil && info.Mode().IsRegular()
}

// Count returns the total number of files across groups.
func Count(groups []Group) int {
	n := 0
	for _, g := range groups {
		n += len(g.Files)
	}
	return n
}
