// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transformers

// `remove-whitespace` collapses whitespace between tags.

import "strings"

const RemoveWhitespaceName = "remove-whitespace"

// preserveTags are elements whose content is copied verbatim.
var preserveTags = map[string]bool{
	"pre":      true,
	"textarea": true,
	"script":   true,
}

func init() {
	Register(RemoveWhitespaceName, func(args []string) (Transformer, error) {
		return RemoveWhitespace{}, nil
	})
}

// RemoveWhitespace replaces each run of spaces, tabs, newlines and carriage
// returns in text with a single space, or with nothing when the run touches
// a tag or comment. Tags, comments and the bodies of pre, textarea and
// script elements are copied unchanged.
type RemoveWhitespace struct{}

func (RemoveWhitespace) Name() string { return RemoveWhitespaceName }

func (RemoveWhitespace) Transform(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	l := &lexer{s: s}
	afterTag := false
	for t, ok := l.next(); ok; t, ok = l.next() {
		if t.kind == textToken {
			collapse(&b, s[t.start:t.end], afterTag, t.end < len(s))
			afterTag = false
			continue
		}
		b.WriteString(s[t.start:t.end])
		afterTag = true
		if t.kind == tagToken && !t.closing && !t.selfClosing && preserveTags[t.name] {
			end := findClose(s, t.end, t.name)
			if end < 0 {
				end = len(s)
			}
			b.WriteString(s[t.end:end])
			l.pos = end
		}
	}
	return b.String()
}

// collapse writes text with whitespace runs collapsed. Runs at the start
// are dropped if afterTag, runs at the end if beforeTag.
func collapse(b *strings.Builder, text string, afterTag, beforeTag bool) {
	for i := 0; i < len(text); {
		j := i + 1
		if !isSpace(text[i]) {
			for j < len(text) && !isSpace(text[j]) {
				j++
			}
			b.WriteString(text[i:j])
			i = j
			continue
		}
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		if !(i == 0 && afterTag) && !(j == len(text) && beforeTag) {
			b.WriteByte(' ')
		}
		i = j
	}
}
