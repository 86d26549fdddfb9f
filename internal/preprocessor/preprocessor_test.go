package preprocessor

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/fwessels/primdb/internal/normalize"
)

func lines(a ...string) string {
	return strings.Join(a, "\n") + "\n"
}

type headerNames map[string]bool

func (h headerNames) Contains(name string) bool { return h[name] }

// writeTree creates files below a fresh temp dir and returns its path.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		skip  headerNames
		want  string
	}{
		{
			"no includes",
			map[string]string{
				"k.cl": lines("float x = 1.0; // comment   "),
			},
			nil,
			lines("float x = 1.0; // comment", ""),
		},
		{
			"single include",
			map[string]string{
				"k.cl": lines(
					`#include "include/common.cl"`,
					"float k = COMMON;",
				),
				"include/common.cl": lines("#define COMMON 1"),
			},
			nil,
			lines("#define COMMON 1", "", "float k = COMMON;", ""),
		},
		{
			"include once per origin",
			map[string]string{
				"k.cl": lines(
					`#include "include/a.cl"`,
					`#include "include/a.cl"`,
					"A;",
				),
				"include/a.cl": lines("A;"),
			},
			nil,
			lines("A;", "", "A;", ""),
		},
		{
			"nested include resolved relative to includer",
			map[string]string{
				"k.cl": lines(
					`#include "include/a.cl"`,
					"kernel;",
				),
				"include/a.cl": lines(`#include "b.cl"`, "a;"),
				"include/b.cl": lines("b;"),
			},
			nil,
			lines("b;", "", "a;", "", "kernel;", ""),
		},
		{
			"transitive include counted once",
			map[string]string{
				"k.cl": lines(
					`#include "include/a.cl"`,
					`#include "include/b.cl"`,
				),
				"include/a.cl": lines(`#include "b.cl"`, "a;"),
				"include/b.cl": lines("b;"),
			},
			nil,
			lines("b;", "", "a;", "", ""),
		},
		{
			"disable optimization re-inlines",
			map[string]string{
				"k.cl": lines(
					"#pragma disable_includes_optimization",
					`#include "include/a.cl"`,
					`#include "include/a.cl"`,
				),
				"include/a.cl": lines("a;"),
			},
			nil,
			lines("#pragma disable_includes_optimization", "a;", "", "a;", "", ""),
		},
		{
			"toggle is line order sensitive",
			map[string]string{
				"k.cl": lines(
					`#include "include/a.cl"`,
					"#pragma disable_includes_optimization",
					`#include "include/a.cl"`,
					"#pragma enable_includes_optimization",
					`#include "include/a.cl"`,
				),
				"include/a.cl": lines("a;"),
			},
			nil,
			lines(
				"a;", "",
				"#pragma disable_includes_optimization",
				"a;", "",
				"#pragma enable_includes_optimization",
				"",
			),
		},
		{
			"toggle does not leak out of included file",
			map[string]string{
				"k.cl": lines(
					`#include "include/off.cl"`,
					`#include "include/a.cl"`,
					`#include "include/a.cl"`,
				),
				"include/off.cl": lines("#pragma disable_includes_optimization"),
				"include/a.cl":   lines("a;"),
			},
			nil,
			lines("#pragma disable_includes_optimization", "", "a;", "", ""),
		},
		{
			"batch header include dropped",
			map[string]string{
				"k.cl": lines(
					`#include "include/batch_headers/fetch_data.cl"`,
					"k;",
				),
			},
			headerNames{"fetch_data.cl": true},
			lines("k;", ""),
		},
		{
			"unused macro pruned in origin",
			map[string]string{
				"k.cl": lines(
					"#define LONELY 7",
					`#include "include/a.cl"`,
				),
				"include/a.cl": lines("#define ALSO_UNUSED 8"),
			},
			nil,
			lines("", ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeTree(t, tt.files)
			in := NewInliner(tt.skip)
			exp, err := in.Expand(filepath.Join(root, "k.cl"))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, exp.Text); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpandIncludedOrder(t *testing.T) {
	root := writeTree(t, map[string]string{
		"k.cl": lines(
			`#include "include/a.cl"`,
			`#include "include/c.cl"`,
		),
		"include/a.cl": lines(`#include "b.cl"`),
		"include/b.cl": "",
		"include/c.cl": "",
	})

	exp, err := NewInliner(nil).Expand(filepath.Join(root, "k.cl"))
	require.NoError(t, err)

	want := []string{
		filepath.Join(root, "include", "a.cl"),
		filepath.Join(root, "include", "b.cl"),
		filepath.Join(root, "include", "c.cl"),
	}
	if diff := cmp.Diff(want, exp.Included); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandTrackingIsPerOrigin(t *testing.T) {
	root := writeTree(t, map[string]string{
		"k1.cl":        lines(`#include "include/a.cl"`),
		"k2.cl":        lines(`#include "include/a.cl"`),
		"include/a.cl": lines("a;"),
	})

	in := NewInliner(nil)
	for _, k := range []string{"k1.cl", "k2.cl"} {
		exp, err := in.Expand(filepath.Join(root, k))
		require.NoError(t, err)
		if diff := cmp.Diff(lines("a;", "", ""), exp.Text); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", k, diff)
		}
	}
}

func TestExpandErrors(t *testing.T) {
	t.Run("missing include", func(t *testing.T) {
		root := writeTree(t, map[string]string{
			"k.cl":              lines(`#include "include/commn.cl"`),
			"include/common.cl": "",
		})
		_, err := NewInliner(nil).Expand(filepath.Join(root, "k.cl"))
		require.ErrorIs(t, err, ErrIncludeNotFound)
		require.ErrorIs(t, err, fs.ErrNotExist)
		require.Contains(t, err.Error(), "k.cl:1")
		require.Contains(t, err.Error(), `did you mean "common.cl"`)
	})

	t.Run("missing nested include", func(t *testing.T) {
		root := writeTree(t, map[string]string{
			"k.cl":         lines("x;", `#include "include/a.cl"`),
			"include/a.cl": lines(`#include "zzz_nothing_like_it.cl"`),
		})
		_, err := NewInliner(nil).Expand(filepath.Join(root, "k.cl"))
		require.ErrorIs(t, err, ErrIncludeNotFound)
		require.Contains(t, err.Error(), "a.cl:1")
		require.NotContains(t, err.Error(), "did you mean")
	})

	t.Run("angle bracket include", func(t *testing.T) {
		root := writeTree(t, map[string]string{
			"k.cl": lines("#include <common.cl>"),
		})
		_, err := NewInliner(nil).Expand(filepath.Join(root, "k.cl"))
		require.ErrorIs(t, err, ErrMalformedInclude)
	})

	t.Run("invalid utf8 in include", func(t *testing.T) {
		root := writeTree(t, map[string]string{
			"k.cl":         lines(`#include "include/a.cl"`),
			"include/a.cl": lines("x;", "char c = '\xe9';"),
		})
		_, err := NewInliner(nil).Expand(filepath.Join(root, "k.cl"))
		require.ErrorIs(t, err, normalize.ErrInvalidUTF8)
		require.Contains(t, err.Error(), "a.cl:2")
	})

	t.Run("missing kernel", func(t *testing.T) {
		_, err := NewInliner(nil).Expand(filepath.Join(t.TempDir(), "nope.cl"))
		require.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestLineReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"terminated", "a\nb\n", []string{"a", "b"}},
		{"unterminated last line", "a\nb", []string{"a", "b"}},
		{"blank lines kept", "\n\nx\n", []string{"", "", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := newLineReader(strings.NewReader(tt.input))
			var got []string
			for {
				line, err := lr.next()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				got = append(got, line)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIncludeTarget(t *testing.T) {
	tests := []struct {
		line string
		want string
		err  bool
	}{
		{`#include "a.cl"`, "a.cl", false},
		{`#include " include/a.cl " // trailing`, "include/a.cl", false},
		{`#include "a.cl`, "a.cl", false},
		{`#include`, "", true},
		{`#include ""`, "", true},
		{`#include <a.cl>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := IncludeTarget(tt.line)
			if tt.err {
				require.ErrorIs(t, err, ErrMalformedInclude)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
