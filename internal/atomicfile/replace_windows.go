//go:build windows

package atomicfile

import "golang.org/x/sys/windows"

func osReplace(tmpPath, dest string) error {
	from, err := windows.UTF16PtrFromString(tmpPath)
	if err != nil {
		return err
	}
	to, err := windows.UTF16PtrFromString(dest)
	if err != nil {
		return err
	}
	return windows.MoveFileEx(from, to, windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH)
}

// directories cannot be fsynced on Windows
func syncDir(string) error { return nil }
