package preprocessor

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/fwessels/primdb/internal/normalize"
)

var (
	ErrMalformedInclude = errors.New("malformed #include directive")
	ErrIncludeNotFound  = errors.New("include file not found")
)

const (
	pragmaEnableIncludeOnce  = "enable_includes_optimization"
	pragmaDisableIncludeOnce = "disable_includes_optimization"
)

// ---------------- Inliner ----------------

// HeaderSet reports whether an include target, given by base name, is
// emitted separately and must not be inlined.
type HeaderSet interface {
	Contains(name string) bool
}

// Inliner flattens the #include graph of a kernel file into one text.
type Inliner struct {
	skip HeaderSet
}

func NewInliner(skip HeaderSet) *Inliner {
	return &Inliner{skip: skip}
}

// Expansion is the flattened text of one origin file.
type Expansion struct {
	Origin string
	Text   string
	// Included lists every file inlined into Origin, in first-include order.
	Included []string
}

// Undefs returns the #undef guards for every macro defined by the origin
// file and the files it pulled in.
func (e *Expansion) Undefs() (string, error) {
	return UndefGuards(append([]string{e.Origin}, e.Included...))
}

// origin holds the include-once bookkeeping of a single Expand call.
type origin struct {
	path     string
	included *orderedmap.OrderedMap[string, struct{}]
}

// Expand inlines every non-batch #include of the file at path and prunes
// unused macro definitions from the result.
func (in *Inliner) Expand(path string) (*Expansion, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	o := &origin{path: abs, included: orderedmap.New[string, struct{}]()}

	text, err := in.appendFile(o, abs)
	if err != nil {
		return nil, err
	}

	exp := &Expansion{Origin: abs, Text: text}
	for pair := o.included.Oldest(); pair != nil; pair = pair.Next() {
		exp.Included = append(exp.Included, pair.Key)
	}
	return exp, nil
}

func (in *Inliner) appendFile(o *origin, filename string) (string, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	if n := normalize.InvalidLine(string(src)); n > 0 {
		return "", fmt.Errorf("%s:%d: %w", shortPath(filename), n, normalize.ErrInvalidUTF8)
	}

	var out strings.Builder
	lr := newLineReader(bytes.NewReader(src))

	// The include-once switch is local to this file and follows line order.
	includeOnce := true
	for lineNo := 1; ; lineNo++ {
		line, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		if strings.HasPrefix(line, "#pragma") {
			if strings.Contains(line, pragmaEnableIncludeOnce) {
				includeOnce = true
			} else if strings.Contains(line, pragmaDisableIncludeOnce) {
				includeOnce = false
			}
		}

		if strings.HasPrefix(line, "#include") {
			target, err := IncludeTarget(line)
			if err != nil {
				return "", fmt.Errorf("%s:%d: %w", shortPath(filename), lineNo, err)
			}
			if in.skip != nil && in.skip.Contains(baseName(target)) {
				slog.Debug("skipping batch header include", "file", shortPath(filename), "target", target)
				continue
			}
			resolved, err := resolveInclude(target, filename)
			if err != nil {
				return "", fmt.Errorf("%s:%d: %w", shortPath(filename), lineNo, err)
			}
			if _, seen := o.included.Get(resolved); !seen || !includeOnce {
				o.included.Set(resolved, struct{}{})
				slog.Debug("inlining include", "origin", shortPath(o.path), "file", resolved)
				body, err := in.appendFile(o, resolved)
				if err != nil {
					return "", err
				}
				out.WriteString(body)
				out.WriteByte('\n')
			}
			continue
		}

		out.WriteString(strings.TrimRightFunc(line, unicode.IsSpace))
		out.WriteByte('\n')
	}

	if filename == o.path {
		return ReduceMacros(out.String()), nil
	}
	return out.String(), nil
}

// ---------------- Line reading ----------------

type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

// next returns the following line without its newline, or io.EOF.
func (lr *lineReader) next() (string, error) {
	s, err := lr.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if len(s) == 0 && err == io.EOF {
		return "", io.EOF
	}
	return strings.TrimSuffix(s, "\n"), nil
}

func lineContinues(s string) bool {
	i := strings.LastIndexFunc(s, func(r rune) bool {
		return !unicode.IsSpace(r)
	})
	return i >= 0 && s[i] == '\\'
}

// ---------------- Directive parsing helpers ----------------

// IncludeTarget extracts the quoted path of an #include line.
func IncludeTarget(line string) (string, error) {
	trim := strings.TrimSpace(line)
	_, rest, ok := strings.Cut(trim, `"`)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMalformedInclude, trim)
	}
	target, _, _ := strings.Cut(rest, `"`)
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedInclude, trim)
	}
	return target, nil
}

func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// ---------------- Include resolution ----------------

func resolveInclude(target string, includingFile string) (string, error) {
	cand := target
	if !filepath.IsAbs(cand) {
		cand = filepath.Join(filepath.Dir(includingFile), target)
	}
	cand = filepath.Clean(cand)
	if fileExists(cand) {
		return cand, nil
	}

	err := fmt.Errorf("%w: %q: %w", ErrIncludeNotFound, target, fs.ErrNotExist)
	if alt := closestFile(filepath.Dir(cand), filepath.Base(cand)); alt != "" {
		err = fmt.Errorf("%w (did you mean %q?)", err, alt)
	}
	return "", err
}

// closestFile returns the file in dir whose name is nearest to name, if any
// is close enough to be a plausible typo.
func closestFile(dir, name string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	best, score := "", len(name)/3+1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if d := levenshtein.ComputeDistance(name, e.Name()); d < score {
			best, score = e.Name(), d
		}
	}
	return best
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func shortPath(p string) string {
	// nicer errors
	if p == "" {
		return p
	}
	return filepath.Base(p)
}
