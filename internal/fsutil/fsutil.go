// Package fsutil holds the write primitives shared by image swaps, backups and
// change logs. Every write goes to a temp file in the destination directory
// and is renamed into place, so readers see either the old or the new content.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// TempPattern is the name pattern of in-flight temp files.
const TempPattern = ".imgshrink-tmp-*"

// WriteFileAtomic writes data to path via a temp file and a rename.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	tmpFile, err := afero.TempFile(fs, filepath.Dir(path), TempPattern)
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = fs.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := fs.Chmod(tmpPath, perm); err != nil {
		return err
	}

	return fs.Rename(tmpPath, path)
}

// ReplaceFile atomically replaces the content of an existing file, keeping
// its permission bits.
func ReplaceFile(fs afero.Fs, path string, data []byte) error {
	info, err := fs.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	return WriteFileAtomic(fs, path, data, info.Mode().Perm())
}

// CopyFile copies src to dst atomically with the permissions of src.
func CopyFile(fs afero.Fs, src, dst string) error {
	srcFile, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	data, err := io.ReadAll(srcFile)
	if err != nil {
		return err
	}

	return WriteFileAtomic(fs, dst, data, srcInfo.Mode().Perm())
}
