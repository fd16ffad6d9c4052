// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transformers

// `htmlmin` and `minify` run whole-document minifiers from third-party
// libraries. They are not part of the default pipeline.

import (
	"log/slog"

	"github.com/dchest/htmlmin"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

const (
	HTMLMinName = "htmlmin"
	MinifyName  = "minify"
)

func init() {
	Register(HTMLMinName, func(args []string) (Transformer, error) {
		return HTMLMin{}, nil
	})
	Register(MinifyName, func(args []string) (Transformer, error) {
		return Minify{}, nil
	})
}

// HTMLMin is a primitive not-so-correct HTML minimizer.
// Inline scripts and styles are left alone.
type HTMLMin struct{}

func (HTMLMin) Name() string { return HTMLMinName }

func (HTMLMin) Transform(s string) string {
	out, err := htmlmin.Minify([]byte(s), &htmlmin.Options{MinifyScripts: false})
	if err != nil {
		slog.Debug("htmlmin failed, keeping input", "err", err)
		return s
	}
	return string(out)
}

var m = newMinifier()

func newMinifier() *minify.M {
	mm := minify.New()
	mm.Add("text/html", &html.Minifier{
		KeepComments:     true,
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
		KeepWhitespace:   true,
	})
	return mm
}

// Minify runs tdewolff/minify's HTML minifier keeping quotes, end tags,
// document tags, comments and whitespace, so that it only drops what is
// safe to drop (default attribute values, redundant attribute syntax).
type Minify struct{}

func (Minify) Name() string { return MinifyName }

func (Minify) Transform(s string) string {
	out, err := m.String("text/html", s)
	if err != nil {
		slog.Debug("minify failed, keeping input", "err", err)
		return s
	}
	return out
}
