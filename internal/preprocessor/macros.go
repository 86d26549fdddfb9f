package preprocessor

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode"
)

// catOperator is the token-pasting helper kernels use to build identifiers.
const catOperator = "CAT"

// ReduceMacros drops #define lines whose macro has no plausible user in text.
//
// A macro counts as used when its name occurs on any other line, or when a
// CAT(...) invocation on any other line has an operand that could be part of
// its name. The check is purely textual and errs on the side of keeping
// definitions. Continuation lines of a dropped definition go with it.
func ReduceMacros(text string) string {
	lines := strings.Split(text, "\n")

	var out strings.Builder
	for i := 0; i < len(lines); {
		line := lines[i]
		name := definedName(line)
		if name == "" || hasPotentialUser(name, lines, i) {
			out.WriteString(strings.TrimRightFunc(line, unicode.IsSpace))
			out.WriteByte('\n')
			i++
			continue
		}

		slog.Debug("pruning unused macro", "name", name)
		for lineContinues(lines[i]) && i+1 < len(lines) {
			i++
		}
		i++
	}
	return out.String()
}

// definedName returns the macro named by a `#define` or `# define` on line,
// or "" when the line defines nothing.
func definedName(line string) string {
	if !strings.Contains(line, "define") {
		return ""
	}
	toks := lexTokens(line)
	for i := 0; i+1 < len(toks); i++ {
		if toks[i] != "#" || toks[i+1] != "define" {
			continue
		}
		if i+2 < len(toks) && isIdentStart(toks[i+2][0]) {
			return toks[i+2]
		}
		return ""
	}
	return ""
}

func hasPotentialUser(name string, lines []string, self int) bool {
	for i, line := range lines {
		if i == self {
			continue
		}
		if strings.Contains(line, name) {
			return true
		}
		if strings.Contains(line, catOperator) && concatMayForm(name, lexTokens(line)) {
			return true
		}
	}
	return false
}

// concatMayForm reports whether any CAT invocation in toks could paste
// together name.
func concatMayForm(name string, toks []string) bool {
	for i := 0; i < len(toks); {
		if toks[i] != catOperator {
			i++
			continue
		}
		found, next := catUser(toks, i, name)
		if found {
			return true
		}
		i = next
	}
	return false
}

// catUser scans the CAT invocation starting at toks[i] and returns whether
// one of its operands, nested invocations included, is a substring of name.
// The second result is the index just past the invocation.
func catUser(toks []string, i int, name string) (bool, int) {
	if i+1 >= len(toks) || toks[i+1] != "(" {
		return false, i + 1
	}

	found := false
	depth := 0
	for pos := i + 2; pos < len(toks); {
		tok := toks[pos]
		switch {
		case tok == catOperator && pos+1 < len(toks) && toks[pos+1] == "(":
			f, next := catUser(toks, pos, name)
			found = found || f
			pos = next
		case tok == "(":
			depth++
			pos++
		case tok == ")":
			if depth == 0 {
				return found, pos + 1
			}
			depth--
			pos++
		case tok == ",":
			pos++
		default:
			if strings.Contains(name, tok) {
				found = true
			}
			pos++
		}
	}
	return found, len(toks)
}

// UndefGuards emits an #ifdef/#undef/#endif block for every macro defined in
// the given files, in file order, so that definitions do not leak into the
// next kernel of the same compilation unit.
func UndefGuards(paths []string) (string, error) {
	var out strings.Builder
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("undef guards: %w", err)
		}
		lr := newLineReader(bytes.NewReader(src))
		for {
			line, err := lr.next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}
			if name := definedName(line); name != "" {
				fmt.Fprintf(&out, "#ifdef %s\n#undef %s\n#endif\n", name, name)
			}
		}
	}
	return out.String(), nil
}
