// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transformers

// `remove-comments` removes HTML comments, keeping framework markers.

import "strings"

const RemoveCommentsName = "remove-comments"

// DefaultDirectives are comment prefixes kept by RemoveComments.
// Livewire emits `<!--[if BLOCK]><![endif]-->` morph markers.
var DefaultDirectives = []string{"Livewire", "[if BLOCK]", "[if ENDBLOCK]"}

func init() {
	Register(RemoveCommentsName, func(args []string) (Transformer, error) {
		return NewRemoveComments(args...), nil
	})
}

// RemoveComments deletes every <!-- ... --> span except directive comments
// (content starting with one of the directive prefixes) and Knockout
// containerless bindings (<!-- ko ... --> and <!-- /ko -->).
//
// It does not look at element boundaries: comments inside script and
// style bodies are removed too.
type RemoveComments struct {
	directives []string
}

// NewRemoveComments returns RemoveComments keeping DefaultDirectives
// and the extra prefixes.
func NewRemoveComments(extra ...string) *RemoveComments {
	d := make([]string, 0, len(DefaultDirectives)+len(extra))
	d = append(d, DefaultDirectives...)
	for _, p := range extra {
		if p != "" {
			d = append(d, p)
		}
	}
	return &RemoveComments{directives: d}
}

func (c *RemoveComments) Name() string { return RemoveCommentsName }

// Transform repeats the removal until nothing changes: removing a comment
// may join the surrounding text into a new one, as in "<!<!-- x -->-- y -->".
func (c *RemoveComments) Transform(s string) string {
	for {
		out := c.strip(s)
		if len(out) == len(s) {
			return out
		}
		s = out
	}
}

func (c *RemoveComments) strip(s string) string {
	i := strings.Index(s, "<!--")
	if i < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for {
		j := strings.Index(s[i+4:], "-->")
		if j < 0 {
			break // unterminated, leave as is
		}
		end := i + 4 + j + 3
		if !c.keep(s[i+4 : i+4+j]) {
			b.WriteString(s[last:i])
			last = end
		}
		k := strings.Index(s[end:], "<!--")
		if k < 0 {
			break
		}
		i = end + k
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

func (c *RemoveComments) keep(content string) bool {
	lead := strings.TrimLeft(content, spaceChars)
	trimmed := strings.TrimRight(lead, spaceChars)
	for _, p := range c.directives {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return strings.HasPrefix(lead, "ko ") || trimmed == "/ko"
}
