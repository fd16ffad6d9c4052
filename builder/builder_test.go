package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dchest/minhtml/filewriter"
	"github.com/dchest/minhtml/transformers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = "<html>\n  <body>\n    <!-- note -->\n    <p>Hello</p>\n  </body>\n</html>\n"

const minified = "<html><body><p>Hello</p></body></html>"

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return dir
}

func readFile(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(name)
	require.NoError(t, err)
	return string(b)
}

func TestBuild(t *testing.T) {
	in := writeTree(t, map[string]string{
		"index.html":     page,
		"blog/post.HTM":  page,
		"css/site.css":   "p {  color: red; }",
		"index.html~":    "backup",
		"blog/.DS_Store": "junk",
	})
	out := filepath.Join(t.TempDir(), "out")

	b, err := New(Options{InDir: in, OutDir: out})
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	assert.Equal(t, minified, readFile(t, filepath.Join(out, "index.html")))
	assert.Equal(t, minified, readFile(t, filepath.Join(out, "blog", "post.HTM")))
	assert.Equal(t, "p {  color: red; }", readFile(t, filepath.Join(out, "css", "site.css")))
	assert.NoFileExists(t, filepath.Join(out, "index.html~"))
	assert.NoFileExists(t, filepath.Join(out, "blog", ".DS_Store"))
	assert.FileExists(t, filepath.Join(out, StateFileName))

	st := b.Stats()
	assert.Equal(t, int64(2), st.Minified)
	assert.Equal(t, int64(1), st.Copied)
	assert.Equal(t, int64(0), st.Skipped)
	assert.Equal(t, int64(2*len(page)), st.BytesIn)
	assert.Equal(t, int64(2*len(minified)), st.BytesOut)
}

func TestBuildSkipsUnchanged(t *testing.T) {
	in := writeTree(t, map[string]string{
		"index.html": page,
		"about.html": page,
		"logo.svg":   "<svg/>",
	})
	out := filepath.Join(t.TempDir(), "out")
	b, err := New(Options{InDir: in, OutDir: out})
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(in, "about.html"), []byte("<p>  changed  </p>"), 0644))
	require.NoError(t, b.Build(context.Background()))

	st := b.Stats()
	assert.Equal(t, int64(1), st.Minified)
	assert.Equal(t, int64(2), st.Skipped)
	assert.Equal(t, "<p>changed</p>", readFile(t, filepath.Join(out, "about.html")))

	// A deleted output is rebuilt even if its input did not change.
	require.NoError(t, os.Remove(filepath.Join(out, "index.html")))
	b2, err := New(Options{InDir: in, OutDir: out})
	require.NoError(t, err)
	require.NoError(t, b2.Build(context.Background()))
	assert.Equal(t, int64(1), b2.Stats().Minified)
	assert.Equal(t, minified, readFile(t, filepath.Join(out, "index.html")))
}

func TestBuildPipelineChangeRebuilds(t *testing.T) {
	in := writeTree(t, map[string]string{"index.html": page})
	out := filepath.Join(t.TempDir(), "out")

	b, err := New(Options{InDir: in, OutDir: out})
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	p, err := transformers.NewFromNames(transformers.RemoveCommentsName)
	require.NoError(t, err)
	b, err = New(Options{InDir: in, OutDir: out, Pipeline: p})
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	assert.Equal(t, int64(1), b.Stats().Minified)
	assert.NotContains(t, readFile(t, filepath.Join(out, "index.html")), "note")
	assert.Contains(t, readFile(t, filepath.Join(out, "index.html")), "\n")
}

func TestBuildCompressed(t *testing.T) {
	in := writeTree(t, map[string]string{"index.html": page, "a.txt": "x"})
	out := filepath.Join(t.TempDir(), "out")
	b, err := New(Options{
		InDir:    in,
		OutDir:   out,
		Compress: &filewriter.CompressConfig{Methods: []string{"gzip", "br"}, Extensions: []string{"html"}},
	})
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	assert.FileExists(t, filepath.Join(out, "index.html.gz"))
	assert.FileExists(t, filepath.Join(out, "index.html.br"))
	assert.NoFileExists(t, filepath.Join(out, "a.txt.gz"))

	// Missing sibling forces a rewrite.
	require.NoError(t, os.Remove(filepath.Join(out, "index.html.br")))
	require.NoError(t, b.Build(context.Background()))
	assert.FileExists(t, filepath.Join(out, "index.html.br"))
	assert.Equal(t, int64(1), b.Stats().Minified)
}

func TestBuildKeepsInputFiles(t *testing.T) {
	const gz = "not really gzip"
	in := writeTree(t, map[string]string{
		"index.html":    page,
		"index.html.gz": gz,
		"page.htm":      page,
	})
	out := filepath.Join(t.TempDir(), "out")
	compress := &filewriter.CompressConfig{Methods: []string{"gzip"}, Extensions: []string{"html"}}

	// page.htm is copied first, then minified once .htm is added.
	b, err := New(Options{InDir: in, OutDir: out, Extensions: []string{".html"}, Workers: 1, Compress: compress})
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))
	assert.Equal(t, page, readFile(t, filepath.Join(out, "page.htm")))

	b, err = New(Options{InDir: in, OutDir: out, Extensions: []string{".html", ".htm"}, Workers: 1, Compress: compress})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(in, "index.html"), []byte("<p>  changed  </p>"), 0644))
	require.NoError(t, b.Build(context.Background()))

	assert.Equal(t, minified, readFile(t, filepath.Join(out, "page.htm")))
	assert.Equal(t, page, readFile(t, filepath.Join(in, "page.htm")))
	assert.Equal(t, "<p>changed</p>", readFile(t, filepath.Join(out, "index.html")))
	assert.Equal(t, gz, readFile(t, filepath.Join(in, "index.html.gz")))
}

func TestBuildOutputInsideInput(t *testing.T) {
	in := writeTree(t, map[string]string{"index.html": page})
	out := filepath.Join(in, "_site")
	b, err := New(Options{InDir: in, OutDir: out})
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))
	require.NoError(t, b.Build(context.Background()))

	assert.NoDirExists(t, filepath.Join(out, "_site"))
	assert.Equal(t, int64(1), b.Stats().Skipped)
}

func TestBuildCanceled(t *testing.T) {
	in := writeTree(t, map[string]string{"index.html": page})
	b, err := New(Options{InDir: in, OutDir: filepath.Join(t.TempDir(), "out")})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Build(ctx), context.Canceled)
}

func TestBuildCorruptState(t *testing.T) {
	in := writeTree(t, map[string]string{"index.html": page})
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, StateFileName), []byte("garbage"), 0644))
	b, err := New(Options{InDir: in, OutDir: out})
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))
	assert.Equal(t, int64(1), b.Stats().Minified)
}

func TestNewErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Options{InDir: dir, OutDir: dir})
	assert.Error(t, err)
	_, err = New(Options{InDir: dir})
	assert.Error(t, err)
	_, err = New(Options{InDir: dir, OutDir: dir + "/out", Compress: &filewriter.CompressConfig{Methods: []string{"lz4"}}})
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	in := writeTree(t, map[string]string{"index.html": page})
	out := filepath.Join(t.TempDir(), "out")
	b, err := New(Options{InDir: in, OutDir: out})
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))
	require.NoError(t, b.Clean())
	assert.NoDirExists(t, out)

	parent, err := New(Options{InDir: filepath.Join(in, "sub"), OutDir: in})
	require.NoError(t, err)
	assert.Error(t, parent.Clean())
	assert.DirExists(t, in)
}
