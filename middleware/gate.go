// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package middleware minifies HTML responses on their way to the client.
package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dchest/minhtml/cache"
	"github.com/dchest/minhtml/logging"
	"github.com/dchest/minhtml/metrics"
	"github.com/dchest/minhtml/transformers"
)

// Doctype probe modes.
const (
	ProbeRequest  = "request"
	ProbeResponse = "response"
	ProbeOff      = "off"
)

// probeLen is how many leading body bytes are searched for a DOCTYPE.
const probeLen = 100

var doctype = []byte("<!doctype")

// Gate decides which responses to minify and runs the pipeline on them.
// The zero value minifies with the default pipeline, probes the request
// body, and has no cache.
type Gate struct {
	Pipeline     *transformers.Pipeline
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Cache        cache.Cache
	DoctypeProbe string
}

// Handler wraps next so that eligible responses are minified.
func (g *Gate) Handler(next http.Handler) http.Handler {
	pipeline := g.Pipeline
	if pipeline == nil {
		pipeline = transformers.Default()
	}
	log := logging.OrNop(g.Logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if outcome := g.checkRequest(r); outcome != "" {
			g.Metrics.Document(outcome)
			next.ServeHTTP(w, r)
			return
		}

		bw := &bufferWriter{ResponseWriter: w}
		next.ServeHTTP(bw, r)
		status := bw.status
		if status == 0 {
			status = http.StatusOK
		}

		if outcome := g.checkResponse(w.Header(), bw.buf.Bytes()); outcome != "" {
			g.Metrics.Document(outcome)
			if r.Method == http.MethodHead && bw.buf.Len() == 0 && htmlHeader(w.Header()) {
				// Length of the minified GET body is unknown here.
				w.Header().Del("Content-Length")
			}
			w.WriteHeader(status)
			w.Write(bw.buf.Bytes())
			return
		}

		start := time.Now()
		body := bw.buf.String()
		out, outcome := g.minify(r.Context(), pipeline, body)
		g.Metrics.Document(outcome)
		g.Metrics.Bytes(len(body), len(out))
		log.Debug("minified",
			"path", r.URL.Path,
			"outcome", outcome,
			"bytes_in", len(body),
			"bytes_out", len(out),
			"duration", time.Since(start))

		w.Header().Set("Content-Length", strconv.Itoa(len(out)))
		w.WriteHeader(status)
		io.WriteString(w, out)
	})
}

// ShouldMinify reports whether the request asks for minifiable HTML.
// It may read the beginning of the request body, which is restored.
func (g *Gate) ShouldMinify(r *http.Request) bool {
	return g.checkRequest(r) == ""
}

// checkRequest returns the skip outcome for r, or "" if it is eligible.
func (g *Gate) checkRequest(r *http.Request) string {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return metrics.OutcomeSkippedRequest
	}
	if isJSON(r.Header.Get("Content-Type")) {
		return metrics.OutcomeSkippedRequest
	}
	if !strings.Contains(strings.ToLower(r.Header.Get("Accept")), "html") {
		return metrics.OutcomeSkippedRequest
	}
	if r.Header.Get("Precognition") == "true" ||
		r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return metrics.OutcomeSkippedRequest
	}
	if g.probe() == ProbeRequest && hasDoctype(peekBody(r)) {
		return metrics.OutcomeSkippedDoctype
	}
	return ""
}

// checkResponse returns the skip outcome for a buffered response,
// or "" if it is eligible.
func (g *Gate) checkResponse(h http.Header, body []byte) string {
	if len(body) == 0 {
		return metrics.OutcomeSkippedResponse
	}
	if h.Get("Content-Range") != "" {
		return metrics.OutcomeSkippedResponse
	}
	if enc := h.Get("Content-Encoding"); enc != "" && !strings.EqualFold(enc, "identity") {
		return metrics.OutcomeSkippedResponse
	}
	ct := h.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(body)
		h.Set("Content-Type", ct)
	}
	if !strings.Contains(strings.ToLower(ct), "html") {
		return metrics.OutcomeSkippedResponse
	}
	if g.probe() == ProbeResponse && hasDoctype(body) {
		return metrics.OutcomeSkippedDoctype
	}
	return ""
}

// htmlHeader reports whether h declares an uncompressed, complete HTML
// response.
func htmlHeader(h http.Header) bool {
	if h.Get("Content-Range") != "" {
		return false
	}
	if enc := h.Get("Content-Encoding"); enc != "" && !strings.EqualFold(enc, "identity") {
		return false
	}
	return strings.Contains(strings.ToLower(h.Get("Content-Type")), "html")
}

func (g *Gate) probe() string {
	if g.DoctypeProbe == "" {
		return ProbeRequest
	}
	return g.DoctypeProbe
}

// minify runs body through the cache and the pipeline. Cache failures
// are logged and otherwise ignored.
func (g *Gate) minify(ctx context.Context, p *transformers.Pipeline, body string) (string, string) {
	log := logging.OrNop(g.Logger)
	var key string
	if g.Cache != nil {
		key = cache.Key(p.Signature(), body)
		out, ok, err := g.Cache.Get(ctx, key)
		if err != nil {
			g.Metrics.CacheError()
			log.Warn("cache get failed", "error", err)
		} else if ok {
			return out, metrics.OutcomeCacheHit
		}
	}
	out := p.Each(body, func(t transformers.Transformer, in string) string {
		start := time.Now()
		res := t.Transform(in)
		g.Metrics.Transform(t.Name(), time.Since(start))
		return res
	})
	if g.Cache != nil {
		if err := g.Cache.Set(ctx, key, out); err != nil {
			g.Metrics.CacheError()
			log.Warn("cache set failed", "error", err)
		}
	}
	return out, metrics.OutcomeMinified
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "/json") || strings.Contains(ct, "+json")
}

func hasDoctype(b []byte) bool {
	if len(b) > probeLen {
		b = b[:probeLen]
	}
	return bytes.Contains(bytes.ToLower(b), doctype)
}

// peekBody returns up to probeLen leading bytes of the request body and
// puts them back so the handler reads the full body.
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	buf := make([]byte, probeLen)
	n, err := io.ReadFull(r.Body, buf)
	buf = buf[:n]
	r.Body = &peekedBody{
		Reader: io.MultiReader(bytes.NewReader(buf), errReader{err}, r.Body),
		Closer: r.Body,
	}
	return buf
}

type peekedBody struct {
	io.Reader
	io.Closer
}

// errReader replays a non-EOF read error hit while peeking.
type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) {
	if e.err == nil || e.err == io.EOF || e.err == io.ErrUnexpectedEOF {
		return 0, io.EOF
	}
	return 0, e.err
}

// bufferWriter holds the response until the handler returns.
type bufferWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *bufferWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *bufferWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.buf.Write(b)
}
