// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transformers

import "strings"

// Markup scanner shared by the transformers. It recognizes just enough of
// HTML to find tag boundaries: it is not a parser and never fails.

type tokenKind int

const (
	textToken tokenKind = iota
	tagToken
	commentToken
)

type token struct {
	kind        tokenKind
	start, end  int    // [start, end) in the scanned string
	name        string // lower-cased tag name, empty for text and comments
	closing     bool   // </name ...>
	selfClosing bool   // <name ... />
}

// lexer splits a string into text, tag and comment tokens in one pass.
type lexer struct {
	s   string
	pos int
}

func (l *lexer) next() (t token, ok bool) {
	s, i := l.s, l.pos
	if i >= len(s) {
		return token{}, false
	}
	if !isTagStart(s, i) {
		end := nextTagStart(s, i+1)
		l.pos = end
		return token{kind: textToken, start: i, end: end}, true
	}
	if strings.HasPrefix(s[i:], "<!--") {
		end := len(s)
		if j := strings.Index(s[i+4:], "-->"); j >= 0 {
			end = i + 4 + j + 3
		}
		l.pos = end
		return token{kind: commentToken, start: i, end: end}, true
	}
	end := scanTag(s, i)
	t = token{kind: tagToken, start: i, end: end}
	t.name, t.closing = tagName(s[i:end])
	t.selfClosing = end-i > 2 && s[end-1] == '>' && s[end-2] == '/'
	l.pos = end
	return t, true
}

// isTagStart reports whether s[i] opens a tag, a comment or a declaration.
// A lone '<' in text ("a < b") does not.
func isTagStart(s string, i int) bool {
	if s[i] != '<' || i+1 >= len(s) {
		return false
	}
	c := s[i+1]
	return isLetter(c) || c == '/' || c == '!' || c == '?'
}

// nextTagStart returns the index of the first tag start at or after from,
// or len(s).
func nextTagStart(s string, from int) int {
	for from < len(s) {
		j := strings.IndexByte(s[from:], '<')
		if j < 0 {
			break
		}
		if isTagStart(s, from+j) {
			return from + j
		}
		from += j + 1
	}
	return len(s)
}

// scanTag returns the index just past the '>' closing the tag that starts
// at s[i]. A '>' inside a quoted attribute value does not close the tag;
// quotes only open a value right after '='. Unterminated tags run to the
// end of input.
func scanTag(s string, i int) int {
	var quote byte
	afterEq := false
	for j := i + 1; j < len(s); j++ {
		c := s[j]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '>':
			return j + 1
		case c == '=':
			afterEq = true
		case afterEq && (c == '"' || c == '\''):
			quote = c
			afterEq = false
		case !isSpace(c):
			afterEq = false
		}
	}
	return len(s)
}

func tagName(tag string) (name string, closing bool) {
	j := 1
	if j < len(tag) && tag[j] == '/' {
		closing = true
		j++
	}
	start := j
	for j < len(tag) && isNameByte(tag[j]) {
		j++
	}
	return strings.ToLower(tag[start:j]), closing
}

// findClose returns the index of the first "</name" at or after from,
// matched case-insensitively and not followed by another name byte.
// It returns -1 if there is none.
func findClose(s string, from int, name string) int {
	for from < len(s) {
		j := strings.Index(s[from:], "</")
		if j < 0 {
			return -1
		}
		k := from + j
		n := k + 2 + len(name)
		if n <= len(s) && strings.EqualFold(s[k+2:n], name) &&
			(n == len(s) || !isNameByte(s[n])) {
			return k
		}
		from = k + 2
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isLetter(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isNameByte(c byte) bool {
	return isLetter(c) || '0' <= c && c <= '9' || c == '-' || c == ':' || c == '_' || c == '.'
}

const spaceChars = " \t\n\r"
