package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func noTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

func TestWriteFileReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.cpp")

	require.NoError(t, WriteFile(dest, []byte("v1"), 0o644))
	require.NoError(t, WriteFile(dest, []byte("v2"), 0o644))

	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "v2", string(b))
	noTempFiles(t, dir)
}

func TestWriteFailureKeepsOldContent(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.cpp")
	require.NoError(t, WriteFile(dest, []byte("old"), 0o644))

	boom := errors.New("boom")
	err := Write(dest, 0o644, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "old", string(b))
	noTempFiles(t, dir)
}

func TestWriteMissingDir(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "absent", "out.cpp"), nil, 0o644)
	require.ErrorIs(t, err, os.ErrNotExist)
}
