//go:build !windows

package atomicfile

import "os"

func osReplace(tmpPath, dest string) error {
	return os.Rename(tmpPath, dest)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
