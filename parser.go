package jinja

import (
	"strings"
)

// TagKind distinguishes interpolation tags from block tags.
type TagKind int

// Enumerates the tag kinds recognised by the scanner.
const (
	TagInterp TagKind = iota // {{ ... }}
	TagBlock                 // {% ... %}
)

func (k TagKind) String() string {
	if k == TagBlock {
		return "block"
	}
	return "interp"
}

// TagMatch describes one tag found by NextTag.
type TagMatch struct {
	Kind  TagKind
	Start int    // offset of the opening delimiter
	End   int    // offset just past the closing delimiter
	Inner string // text between the delimiters, trimmed
}

// Keyword returns the first word of a block tag, e.g. "for" for
// "{% for x in xs %}".
func (m TagMatch) Keyword() string {
	kw, _ := splitHeader(m.Inner)
	return kw
}

// Args returns everything after the keyword of a block tag, trimmed.
func (m TagMatch) Args() string {
	_, args := splitHeader(m.Inner)
	return args
}

func splitHeader(inner string) (keyword, args string) {
	i := strings.IndexAny(inner, " \t\r\n")
	if i < 0 {
		return inner, ""
	}
	return inner[:i], strings.TrimSpace(inner[i:])
}

// NextTag returns the leftmost tag starting at or after from. An opening
// delimiter without a matching closer is literal text: scanning resumes one
// byte after it. The scanner keeps no state between calls.
func NextTag(text string, from int) (TagMatch, bool) {
	return newTagScanner(text).next(from)
}

var closers = [...]string{TagInterp: "}}", TagBlock: "%}"}

// tagScanner finds tags in one text, front to back. It remembers where the
// next raw closer of each kind is, so an opener with no closer after it is
// passed over without scanning the rest of the text again.
type tagScanner struct {
	text    string
	closers [len(closers)]closerIndex
}

// closerIndex caches one lookup: the first closer at or after from is at at,
// or there is none if at is -1.
type closerIndex struct {
	from, at int
}

func newTagScanner(text string) *tagScanner {
	s := &tagScanner{text: text}
	for i := range s.closers {
		s.closers[i] = closerIndex{from: len(text) + 1}
	}
	return s
}

// nextCloser returns the offset of the first closer of kind at or after pos,
// quoted or not, or -1.
func (s *tagScanner) nextCloser(kind TagKind, pos int) int {
	c := &s.closers[kind]
	if c.from <= pos && (c.at < 0 || c.at >= pos) {
		return c.at
	}
	c.from, c.at = pos, strings.Index(s.text[pos:], closers[kind])
	if c.at >= 0 {
		c.at += pos
	}
	return c.at
}

func (s *tagScanner) next(from int) (TagMatch, bool) {
	text := s.text
	for from < len(text) {
		start := indexOpener(text, from)
		if start < 0 {
			return TagMatch{}, false
		}

		kind := TagInterp
		if text[start+1] == '%' {
			kind = TagBlock
		}

		contentStart := start + 2
		contentEnd := -1
		if s.nextCloser(kind, contentStart) >= 0 {
			contentEnd = scanTagEnd(text, contentStart, closers[kind])
		}
		if contentEnd < 0 {
			// Unterminated tag, treat the opener as text.
			from = start + 1
			continue
		}

		return TagMatch{
			Kind:  kind,
			Start: start,
			End:   contentEnd + len(closers[kind]),
			Inner: strings.TrimSpace(text[contentStart:contentEnd]),
		}, true
	}
	return TagMatch{}, false
}

// nextBlock returns the next {% %} tag at or after from, stepping over
// interpolation tags so that delimiters quoted inside them are not seen.
func (s *tagScanner) nextBlock(from int) (TagMatch, bool) {
	for {
		m, ok := s.next(from)
		if !ok {
			return TagMatch{}, false
		}
		if m.Kind == TagBlock {
			return m, true
		}
		from = m.End
	}
}

// indexOpener finds the earliest "{{" or "{%" at or after from.
func indexOpener(text string, from int) int {
	for i := from; i+1 < len(text); i++ {
		if text[i] != '{' {
			// Jump to the next brace.
			j := strings.IndexByte(text[i+1:], '{')
			if j < 0 {
				return -1
			}
			i += j
			continue
		}
		if text[i+1] == '{' || text[i+1] == '%' {
			return i
		}
	}
	return -1
}

// scanTagEnd looks for closer starting at pos, skipping over quoted string
// literals. It returns the offset of the closer or -1.
func scanTagEnd(text string, pos int, closer string) int {
	for pos < len(text) {
		c := text[pos]
		if c == '\'' || c == '"' {
			end := skipStringLiteral(text, pos)
			if end < 0 {
				return -1 // Unclosed string literal within the tag.
			}
			pos = end
			continue
		}
		if strings.HasPrefix(text[pos:], closer) {
			return pos
		}
		pos++
	}
	return -1
}

// skipStringLiteral returns the offset just past the string literal that
// opens at pos, honouring backslash escapes, or -1 if it never closes.
func skipStringLiteral(text string, pos int) int {
	quote := text[pos]
	for i := pos + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		}
	}
	return -1
}
