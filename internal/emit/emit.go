// Package emit renders kernel and batch header text as C++ raw string
// literals.
package emit

import (
	"strings"
	"unicode"
)

// Banner opens every generated file.
const Banner = "// This file is autogenerated by primitive_db_gen.py, all changes to this file will be undone\n\n"

// kernelDelim is the raw string delimiter of kernel literals. It must never
// occur in kernel source as `)__krnl"`.
const kernelDelim = "__krnl"

// Record is one entry of the primitive database.
type Record struct {
	Name     string
	Segments []Segment
}

// NewRecord chunks the normalized text of a kernel.
func NewRecord(name, text string, l Limits) Record {
	return Record{Name: name, Segments: Chunk(strings.Split(text, "\n"), l)}
}

// Text returns the kernel source the record's literals concatenate to.
func (r Record) Text() string {
	var b strings.Builder
	for _, s := range r.Segments {
		b.WriteString(s.Text())
	}
	return b.String()
}

// String renders the record as a `{name, literal + literal ...},` entry.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString(`{"` + r.Name + `",` + "\n")
	b.WriteString(`(std::string) R"` + kernelDelim + "(\n")
	for i, s := range r.Segments {
		if i > 0 {
			b.WriteString(`)` + kernelDelim + `"` + "\n" + ` + R"` + kernelDelim + `(`)
		}
		b.WriteString(s.Text())
	}
	b.WriteString(`)` + kernelDelim + `"},` + "\n\n")
	return b.String()
}

// Header is a batch header with its raw lines, line terminators included.
type Header struct {
	Name  string
	Lines []string
}

// SplitLines splits src into lines that keep their terminating newline.
func SplitLines(src string) []string {
	if src == "" {
		return nil
	}
	out := strings.SplitAfter(src, "\n")
	if out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// BatchHeaders renders headers, in order, as a flat list of string literals.
// #include lines are dropped; they still count towards the line bound of
// their header. The character count runs across header boundaries.
func BatchHeaders(headers []Header, l Limits) string {
	var b strings.Builder
	c := NewChunker(l)
	for _, h := range headers {
		b.WriteString(`(std::string) R"(` + "\n")
		for i, line := range h.Lines {
			if strings.HasPrefix(line, "#include") {
				continue
			}
			if c.Place(i, len(line)) {
				b.WriteString(`)", (std::string) R"(`)
			}
			b.WriteString(strings.TrimRightFunc(line, unicode.IsSpace))
			b.WriteByte('\n')
		}
		b.WriteString(`)",` + "\n\n")
	}
	return b.String()
}
