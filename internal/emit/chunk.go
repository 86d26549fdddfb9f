package emit

import (
	"fmt"
	"strings"
)

// Default segment bounds. Compilers cap the length of a single string
// literal, so long sources are split into adjacent literals.
const (
	MaxLines      = 200
	MaxCharacters = 16350
)

type Limits struct {
	MaxLines      int
	MaxCharacters int
}

func DefaultLimits() Limits {
	return Limits{MaxLines: MaxLines, MaxCharacters: MaxCharacters}
}

func (l Limits) Validate() error {
	if l.MaxLines <= 0 {
		return fmt.Errorf("max lines must be positive, got %d", l.MaxLines)
	}
	if l.MaxCharacters <= 0 {
		return fmt.Errorf("max characters must be positive, got %d", l.MaxCharacters)
	}
	return nil
}

// Chunker decides where a line stream breaks into segments. The character
// count starts at one for the newline that opens the first literal.
type Chunker struct {
	limits Limits
	chars  int
}

func NewChunker(l Limits) *Chunker {
	return &Chunker{limits: l, chars: 1}
}

// Place accounts for a line of n characters (plus its separator) at
// absolute index i of the stream and reports whether a new segment must
// begin in front of it.
func (c *Chunker) Place(i, n int) bool {
	split := (i+1)%c.limits.MaxLines == 0 || c.chars+n+1 > c.limits.MaxCharacters
	if split {
		c.chars = 0
	}
	c.chars += n + 1
	return split
}

// Segment is a run of lines emitted as one string literal.
type Segment struct {
	Lines []string
}

// Text returns the segment with every line newline terminated.
func (s Segment) Text() string {
	var b strings.Builder
	for _, l := range s.Lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

// Chunk splits lines into segments. Concatenating the Text of the result
// reproduces the input. The first segment may be empty when the very first
// line exceeds the character bound on its own.
func Chunk(lines []string, l Limits) []Segment {
	c := NewChunker(l)
	segs := []Segment{{}}
	for i, line := range lines {
		if c.Place(i, len(line)) {
			segs = append(segs, Segment{})
		}
		cur := &segs[len(segs)-1]
		cur.Lines = append(cur.Lines, line)
	}
	return segs
}
