package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dchest/minhtml/cache"
	"github.com/dchest/minhtml/metrics"
	"github.com/dchest/minhtml/transformers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spaced = "<html>    <body>    Test    </body>    </html>"

const page = `<!DOCTYPE html>
<html>
    <!-- This is a comment -->
    <head>
        <title>Test Page</title>
    </head>
    <body>
        <!-- ko if: someCondition -->
        <h1>Hello World</h1>
        <!-- /ko -->
        <script>
            console.log('test');
        </script>
    </body>
</html>
`

func htmlHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, body)
	})
}

func newRequest(method string) *http.Request {
	r := httptest.NewRequest(method, "/", nil)
	r.Header.Set("Accept", "text/html,application/xhtml+xml")
	return r
}

func serve(g *Gate, h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	g.Handler(h).ServeHTTP(w, r)
	return w
}

func TestMinifiesGet(t *testing.T) {
	w := serve(&Gate{}, htmlHandler(page), newRequest(http.MethodGet))

	body := w.Body.String()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body, "    ")
	assert.NotContains(t, body, "This is a comment")
	assert.Contains(t, body, "<title>Test Page</title>")
	assert.Contains(t, body, "<!-- ko if: someCondition --><h1>Hello World</h1><!-- /ko -->")
	assert.Contains(t, body, "<script>console.log('test');</script>")
	assert.Equal(t, strconv.Itoa(len(body)), w.Header().Get("Content-Length"))
}

func TestMinifiesHead(t *testing.T) {
	w := serve(&Gate{}, htmlHandler(spaced), newRequest(http.MethodHead))
	assert.Equal(t, "<html><body>Test</body></html>", w.Body.String())
}

func TestHeadDropsContentLength(t *testing.T) {
	h := func(ct string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", ct)
			w.Header().Set("Content-Length", strconv.Itoa(len(spaced)))
		})
	}
	w := serve(&Gate{}, h("text/html; charset=utf-8"), newRequest(http.MethodHead))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Length"))

	w = serve(&Gate{}, h("image/png"), newRequest(http.MethodHead))
	assert.Equal(t, strconv.Itoa(len(spaced)), w.Header().Get("Content-Length"))

	// Served by http.FileServer, which sets the source length for HEAD.
	fs := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "index.html", time.Time{}, strings.NewReader(spaced))
	})
	get := serve(&Gate{}, fs, newRequest(http.MethodGet))
	head := serve(&Gate{}, fs, newRequest(http.MethodHead))
	assert.Equal(t, strconv.Itoa(len("<html><body>Test</body></html>")), get.Header().Get("Content-Length"))
	assert.Empty(t, head.Header().Get("Content-Length"))
}

func TestSkipsIneligibleRequests(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *http.Request)
	}{
		{"post", func(r *http.Request) { r.Method = http.MethodPost }},
		{"put", func(r *http.Request) { r.Method = http.MethodPut }},
		{"delete", func(r *http.Request) { r.Method = http.MethodDelete }},
		{"json", func(r *http.Request) {
			r.Header.Set("Accept", "application/json, text/html")
			r.Header.Set("Content-Type", "application/json")
		}},
		{"vendor json", func(r *http.Request) { r.Header.Set("Content-Type", "application/vnd.api+json") }},
		{"accept xml", func(r *http.Request) { r.Header.Set("Accept", "application/xml") }},
		{"no accept", func(r *http.Request) { r.Header.Del("Accept") }},
		{"xhr", func(r *http.Request) { r.Header.Set("X-Requested-With", "XMLHttpRequest") }},
		{"precognitive", func(r *http.Request) { r.Header.Set("Precognition", "true") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			r := newRequest(http.MethodGet)
			tt.modify(r)
			w := serve(&Gate{Metrics: m}, htmlHandler(spaced), r)
			assert.Equal(t, spaced, w.Body.String())
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues(metrics.OutcomeSkippedRequest)))
		})
	}
}

func TestShouldMinify(t *testing.T) {
	g := &Gate{}
	assert.True(t, g.ShouldMinify(newRequest(http.MethodGet)))
	r := newRequest(http.MethodGet)
	r.Header.Set("X-Requested-With", "XMLHttpRequest")
	assert.False(t, g.ShouldMinify(r))
}

func TestDoctypeRequestProbe(t *testing.T) {
	reqBody := "<!doctype html><html><body>posted page</body></html>"
	var seen string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, spaced)
	})

	m := metrics.New(nil)
	r := httptest.NewRequest(http.MethodGet, "/", strings.NewReader(reqBody))
	r.Header.Set("Accept", "text/html")
	w := serve(&Gate{Metrics: m}, h, r)

	assert.Equal(t, spaced, w.Body.String())
	assert.Equal(t, reqBody, seen, "request body must be restored")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues(metrics.OutcomeSkippedDoctype)))
}

func TestDoctypeRequestProbeLongBody(t *testing.T) {
	// DOCTYPE beyond the first 100 bytes does not count.
	reqBody := strings.Repeat("x", 120) + "<!DOCTYPE html>"
	var seen string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, spaced)
	})
	r := httptest.NewRequest(http.MethodGet, "/", strings.NewReader(reqBody))
	r.Header.Set("Accept", "text/html")
	w := serve(&Gate{}, h, r)

	assert.Equal(t, "<html><body>Test</body></html>", w.Body.String())
	assert.Equal(t, reqBody, seen)
}

func TestDoctypeResponseProbe(t *testing.T) {
	g := &Gate{DoctypeProbe: ProbeResponse}
	w := serve(g, htmlHandler(page), newRequest(http.MethodGet))
	assert.Equal(t, page, w.Body.String())

	w = serve(g, htmlHandler(spaced), newRequest(http.MethodGet))
	assert.Equal(t, "<html><body>Test</body></html>", w.Body.String())
}

func TestDoctypeProbeOff(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", strings.NewReader("<!DOCTYPE html>"))
	r.Header.Set("Accept", "text/html")
	w := serve(&Gate{DoctypeProbe: ProbeOff}, htmlHandler(spaced), r)
	assert.Equal(t, "<html><body>Test</body></html>", w.Body.String())
}

func TestSkipsIneligibleResponses(t *testing.T) {
	gz := func() string {
		var b bytes.Buffer
		z := gzip.NewWriter(&b)
		io.WriteString(z, spaced)
		z.Close()
		return b.String()
	}()
	tests := []struct {
		name    string
		headers map[string]string
		body    string
	}{
		{"json", map[string]string{"Content-Type": "application/json"}, `{"a":  1}`},
		{"css", map[string]string{"Content-Type": "text/css"}, "body {  color: red; }"},
		{"gzip", map[string]string{"Content-Type": "text/html", "Content-Encoding": "gzip"}, gz},
		{"partial", map[string]string{"Content-Type": "text/html", "Content-Range": "bytes 0-9/100"}, "<p>  x  </p>"},
		{"sniffed text", nil, "plain    text"},
		{"empty", map[string]string{"Content-Type": "text/html"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New(nil)
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				io.WriteString(w, tt.body)
			})
			w := serve(&Gate{Metrics: m}, h, newRequest(http.MethodGet))
			assert.Equal(t, tt.body, w.Body.String())
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues(metrics.OutcomeSkippedResponse)))
		})
	}
}

func TestSniffsUndeclaredHTML(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, spaced)
	})
	w := serve(&Gate{}, h, newRequest(http.MethodGet))
	assert.Equal(t, "<html><body>Test</body></html>", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

func TestPreservesStatus(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, spaced)
		// Later calls are ignored.
		w.WriteHeader(http.StatusOK)
	})
	w := serve(&Gate{}, h, newRequest(http.MethodGet))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "<html><body>Test</body></html>", w.Body.String())
}

func TestRewritesContentLength(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Length", strconv.Itoa(len(spaced)))
		io.WriteString(w, spaced)
	})
	w := serve(&Gate{}, h, newRequest(http.MethodGet))
	assert.Equal(t, "30", w.Header().Get("Content-Length"))
}

func TestWhitespaceOnlyBody(t *testing.T) {
	w := serve(&Gate{}, htmlHandler("     "), newRequest(http.MethodGet))
	assert.LessOrEqual(t, w.Body.Len(), 1)
}

func TestEmptyBody(t *testing.T) {
	w := serve(&Gate{}, htmlHandler(""), newRequest(http.MethodGet))
	assert.Equal(t, "", w.Body.String())
}

func TestCustomPipeline(t *testing.T) {
	p, err := transformers.NewFromNames(transformers.RemoveCommentsName)
	require.NoError(t, err)
	in := "<html>\n    <!-- Comment -->\n    <body>\n        <h1>    Test    </h1>\n    </body>\n</html>"
	w := serve(&Gate{Pipeline: p}, htmlHandler(in), newRequest(http.MethodGet))
	assert.NotContains(t, w.Body.String(), "<!-- Comment -->")
	assert.Contains(t, w.Body.String(), "    ")
}

func TestCacheHit(t *testing.T) {
	m := metrics.New(nil)
	c := cache.NewMemory(10)
	g := &Gate{Metrics: m, Cache: c}

	w1 := serve(g, htmlHandler(spaced), newRequest(http.MethodGet))
	w2 := serve(g, htmlHandler(spaced), newRequest(http.MethodGet))

	assert.Equal(t, w1.Body.String(), w2.Body.String())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues(metrics.OutcomeMinified)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues(metrics.OutcomeCacheHit)))
	assert.Equal(t, float64(2*len(spaced)), testutil.ToFloat64(m.BytesIn))
}

func TestCacheKeyedBySignature(t *testing.T) {
	c := cache.NewMemory(10)
	comments, err := transformers.NewFromNames(transformers.RemoveCommentsName)
	require.NoError(t, err)

	serve(&Gate{Cache: c}, htmlHandler(spaced), newRequest(http.MethodGet))
	w := serve(&Gate{Cache: c, Pipeline: comments}, htmlHandler(spaced), newRequest(http.MethodGet))

	assert.Equal(t, spaced, w.Body.String())
	assert.Equal(t, 2, c.Len())
}

type failingCache struct{}

var errCache = errors.New("cache down")

func (failingCache) Get(context.Context, string) (string, bool, error) { return "", false, errCache }
func (failingCache) Set(context.Context, string, string) error         { return errCache }

func TestCacheErrorsBypassed(t *testing.T) {
	m := metrics.New(nil)
	w := serve(&Gate{Cache: failingCache{}, Metrics: m}, htmlHandler(spaced), newRequest(http.MethodGet))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html><body>Test</body></html>", w.Body.String())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheErrors))
}

func TestTransformDurations(t *testing.T) {
	m := metrics.New(nil)
	serve(&Gate{Metrics: m}, htmlHandler(page), newRequest(http.MethodGet))
	assert.Equal(t, len(transformers.DefaultNames), testutil.CollectAndCount(m.TransformDuration))
}
