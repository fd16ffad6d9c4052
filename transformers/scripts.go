// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transformers

// `trim-scripts` trims whitespace around inline script bodies.

import "strings"

const TrimScriptsName = "trim-scripts"

// rawTextTags are elements whose content is not markup.
var rawTextTags = map[string]bool{
	"script":   true,
	"style":    true,
	"textarea": true,
	"title":    true,
}

func init() {
	Register(TrimScriptsName, func(args []string) (Transformer, error) {
		return TrimScripts{}, nil
	})
}

// TrimScripts strips leading and trailing whitespace from the body of
// every script element. The body ends at the first </script, as in
// browsers. Everything outside script bodies is left untouched.
type TrimScripts struct{}

func (TrimScripts) Name() string { return TrimScriptsName }

func (TrimScripts) Transform(s string) string {
	var b strings.Builder
	last := 0
	l := &lexer{s: s}
	for t, ok := l.next(); ok; t, ok = l.next() {
		if t.kind != tagToken || t.closing || t.selfClosing || !rawTextTags[t.name] {
			continue
		}
		end := findClose(s, t.end, t.name)
		if end < 0 {
			break // unterminated: the rest of input is raw text
		}
		l.pos = end
		if t.name != "script" {
			continue
		}
		body := s[t.end:end]
		lead := len(body) - len(strings.TrimLeft(body, spaceChars))
		trimmed := strings.TrimRight(body[lead:], spaceChars)
		if len(trimmed) == len(body) {
			continue
		}
		if last == 0 {
			b.Grow(len(s))
		}
		b.WriteString(s[last:t.end])
		b.WriteString(trimmed)
		last = end
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}
