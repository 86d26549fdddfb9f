// Package normalize compacts kernel source text: comments, empty lines,
// line continuations and repeated spaces are removed.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// ErrInvalidUTF8 is returned for source text that is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid UTF-8")

// commentRegexp matches a // or /* */ comment together with the horizontal
// whitespace around it. Group 1 is set when the match starts a line, group 2
// holds the body of a block comment, group 3 is set when the match ends a
// line.
var commentRegexp = regexp2.MustCompile(
	`(^)?[^\S\n]*/(?:\*(.*?)\*/[^\S\n]*|/[^\n]*)($)?`,
	regexp2.Multiline|regexp2.Singleline,
)

// Normalize strips comments and redundant whitespace from text. Lines are
// joined with "\n" and the result carries no trailing newline.
func Normalize(text string) (string, error) {
	text, err := StripComments(text)
	if err != nil {
		return "", err
	}
	text = strings.Join(nonEmptyLines(text), "\n")
	text = strings.ReplaceAll(text, "\\\n", "")
	return collapseSpaces(text), nil
}

// StripComments removes comments without touching the code around them.
// A comment that begins or ends a line disappears with its surrounding
// blanks; a block comment in the middle of code becomes a newline when it
// spans lines and a single space otherwise.
func StripComments(text string) (string, error) {
	if n := InvalidLine(text); n > 0 {
		return "", fmt.Errorf("line %d: %w", n, ErrInvalidUTF8)
	}
	return commentRegexp.ReplaceFunc(text, replaceComment, -1, -1)
}

// InvalidLine returns the 1-based line of the first invalid UTF-8 sequence
// in text, or 0 when text is valid.
func InvalidLine(text string) int {
	if utf8.ValidString(text) {
		return 0
	}
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size <= 1 {
			return 1 + strings.Count(text[:i], "\n")
		}
		i += size
	}
	return 0
}

func replaceComment(m regexp2.Match) string {
	begin, body, end := m.GroupByNumber(1), m.GroupByNumber(2), m.GroupByNumber(3)
	switch {
	case !matched(body):
		return ""
	case matched(begin) || matched(end):
		return ""
	case strings.Contains(body.String(), "\n"):
		return "\n"
	default:
		return " "
	}
}

func matched(g *regexp2.Group) bool {
	return g != nil && len(g.Captures) > 0
}

func nonEmptyLines(s string) []string {
	return strings.FieldsFunc(s, isLineBreak)
}

// isLineBreak reports the characters that end a line of source text,
// including the vertical tab, form feed and file, group and record
// separators.
func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

func collapseSpaces(s string) string {
	if !strings.Contains(s, "  ") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteByte(ch)
	}
	return b.String()
}
