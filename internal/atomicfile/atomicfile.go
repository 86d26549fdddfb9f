// Package atomicfile writes files through a temporary sibling that is
// renamed over the destination, so readers never observe a partial file.
package atomicfile

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
)

const bufSize = 64 * 1024

// WriteFile writes data to path with permission perm, replacing any
// existing file in one step.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	return Write(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Write streams the content produced by fill into path.
func Write(path string, perm os.FileMode, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, perm)

	bw := bufio.NewWriterSize(tmp, bufSize)
	if err := fill(bw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// best effort, persists the rename on POSIX
	_ = syncDir(dir)
	return nil
}
