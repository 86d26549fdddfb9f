package preprocessor

// lexTokens splits a line into identifier-like runs ([A-Za-z0-9_] and any
// non-ASCII byte) and single punctuation characters. Whitespace only
// separates tokens. No knowledge of comments or string literals is needed
// for macro usage detection.
func lexTokens(line string) []string {
	toks := make([]string, 0, 8)
	for i := 0; i < len(line); {
		ch := line[i]
		if isSpace(ch) {
			i++
			continue
		}
		if isIdentPart(ch) {
			j := i + 1
			for j < len(line) && isIdentPart(line[j]) {
				j++
			}
			toks = append(toks, line[i:j])
			i = j
			continue
		}
		toks = append(toks, line[i:i+1])
		i++
	}
	return toks
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\v', '\f':
		return true
	}
	return false
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b >= 0x80
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}
