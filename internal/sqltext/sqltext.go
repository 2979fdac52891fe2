// Package sqltext scans raw SQL text while respecting quoted literals,
// quoted identifiers and comments. It does not parse: callers use it to
// find statement boundaries and to normalize text before parsing.
package sqltext

import (
	"strings"
	"unicode"
)

type Kind int

const (
	Code Kind = iota
	Quoted
	LineComment
	BlockComment
)

// Segment is a contiguous run of text of a single kind. Start is the byte
// offset of the segment in the scanned input.
type Segment struct {
	Kind  Kind
	Text  string
	Start int
}

// Segments splits s into code, quoted and comment runs. Unterminated quotes
// and block comments extend to the end of the input.
func Segments(s string) []Segment {
	var (
		segments []Segment
		start    int
	)
	emit := func(kind Kind, end int) {
		if end > start {
			segments = append(segments, Segment{Kind: kind, Text: s[start:end], Start: start})
		}
		start = end
	}

	for i := 0; i < len(s); {
		switch c := s[i]; {
		case c == '\'' || c == '"' || c == '`':
			emit(Code, i)
			i = closeQuote(s, i, c)
			emit(Quoted, i)
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			emit(Code, i)
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				i = len(s)
			} else {
				i += end
			}
			emit(LineComment, i)
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			emit(Code, i)
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 4
			}
			emit(BlockComment, i)
		default:
			i++
		}
	}
	emit(Code, len(s))
	return segments
}

// closeQuote returns the offset just past the quote opened at s[open].
// A doubled quote character is an escaped quote.
func closeQuote(s string, open int, quote byte) int {
	for i := open + 1; i < len(s); i++ {
		if s[i] != quote {
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

// Terminator returns the offset of the first ';' outside quotes and
// comments, or -1.
func Terminator(s string) int {
	for _, segment := range Segments(s) {
		if segment.Kind != Code {
			continue
		}
		if idx := strings.IndexByte(segment.Text, ';'); idx >= 0 {
			return segment.Start + idx
		}
	}
	return -1
}

// Strip drops comments and collapses whitespace runs outside quotes to a
// single space. Quoted text is kept verbatim.
func Strip(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, segment := range Segments(s) {
		switch segment.Kind {
		case Quoted:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteString(segment.Text)
		case LineComment, BlockComment:
			space = true
		default:
			for _, r := range segment.Text {
				if unicode.IsSpace(r) {
					space = true
					continue
				}
				if space && b.Len() > 0 {
					b.WriteByte(' ')
				}
				space = false
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// Body is Strip with leading and trailing statement terminators removed.
// An empty Body means the text holds no statement at all.
func Body(s string) string {
	return strings.Trim(Strip(s), "; ")
}

// Sanitize returns the canonical single-statement form of s: comments
// dropped, whitespace collapsed and exactly one trailing ';'.
func Sanitize(s string) string {
	body := Body(s)
	if body == "" {
		return ""
	}
	return body + ";"
}

// Statements splits s at terminators outside quotes and comments. Parts
// holding only whitespace or comments are dropped.
func Statements(s string) []string {
	var statements []string
	for s != "" {
		part := s
		if end := Terminator(s); end >= 0 {
			part, s = s[:end], s[end+1:]
		} else {
			s = ""
		}
		if Body(part) != "" {
			statements = append(statements, part)
		}
	}
	return statements
}

// Words returns the words of the code in s, in order, with "(" and ")"
// kept as words of their own. Quoted text, comments and any other
// punctuation are skipped.
func Words(s string) []string {
	var words []string
	for _, segment := range Segments(s) {
		if segment.Kind != Code {
			continue
		}
		start := -1
		for i, r := range segment.Text {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				words = append(words, segment.Text[start:i])
				start = -1
			}
			if r == '(' || r == ')' {
				words = append(words, string(r))
			}
		}
		if start >= 0 {
			words = append(words, segment.Text[start:])
		}
	}
	return words
}
