package preset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bluemap-render/internal/render"
)

func writePreset(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestCatalogListAndLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePreset(t, dir, "overworld.yaml", "format: png\nwidth: 1920\nheight: 1080\nwait: 2s\n")
	writePreset(t, dir, "fast.yml", "format: jpeg\nquality: 70\nfull_page: false\n")
	writePreset(t, dir, "print.yaml", "format: pdf\nlandscape: true\n")
	writePreset(t, dir, "README.md", "not a preset")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o700))

	c := NewCatalog(dir)
	names, err := c.List()
	require.NoError(t, err)
	require.Equal(t, []string{"fast", "overworld", "print"}, names)

	p, err := c.Load("overworld")
	require.NoError(t, err)
	require.Equal(t, "overworld", p.Name)
	require.Equal(t, int64(1920), p.Width)
	require.Equal(t, 2*time.Second, p.Wait)
	require.True(t, *p.FullPage)
	require.Equal(t, "image/png", p.ContentType())

	fast, err := c.Load("/fast")
	require.NoError(t, err)
	require.Equal(t, render.FormatJPEG, fast.Format)
	require.Equal(t, 70, fast.Quality)
	require.False(t, *fast.FullPage)
	require.Equal(t, int64(1280), fast.Width)

	pdf, err := c.Load("print")
	require.NoError(t, err)
	require.True(t, pdf.Landscape)
	require.Equal(t, "application/pdf", pdf.ContentType())
	require.True(t, c.Exists("print"))
}

func TestCatalogLoadRejectsUnknownAndTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePreset(t, dir, "ok.yaml", "format: png\n")
	c := NewCatalog(dir)

	for _, name := range []string{"", "missing", "../ok", "sub/ok", `..\ok`} {
		_, err := c.Load(name)
		require.ErrorIs(t, err, ErrNotFound, "name %q", name)
	}
	require.False(t, c.Exists("missing"))
}

func TestCatalogMissingDirIsEmpty(t *testing.T) {
	t.Parallel()

	names, err := NewCatalog(filepath.Join(t.TempDir(), "absent")).List()
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	_, err := Parse("bad", []byte("format: gif\n"))
	require.ErrorContains(t, err, `unsupported format "gif"`)

	_, err = Parse("broken", []byte("width: [1"))
	require.ErrorContains(t, err, "decode preset broken")
}
