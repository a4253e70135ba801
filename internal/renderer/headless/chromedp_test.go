package headless

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/page"

	"github.com/JakeFAU/bluemap-render/internal/render"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	r, err := NewChromedp(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()
	if cap(r.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(r.limiter))
	}
}

func TestRendererNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	r := &Renderer{}
	if got := r.navTimeout(); got != 25*time.Second {
		t.Fatalf("expected default nav timeout, got %v", got)
	}
	r.cfg.NavigationTimeout = time.Second
	if got := r.navTimeout(); got != time.Second {
		t.Fatalf("expected override to be used, got %v", got)
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	t.Parallel()

	r := &Renderer{limiter: make(chan struct{}, 1)}
	if err := r.acquire(context.Background()); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	r.release()
	r.release()
	if err := r.acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
}

func TestScreenshotFormat(t *testing.T) {
	t.Parallel()

	format, quality := screenshotFormat(render.Preset{Format: render.FormatJPEG, Quality: 70})
	if format != page.CaptureScreenshotFormatJpeg || quality != 70 {
		t.Fatalf("unexpected jpeg mapping %s/%d", format, quality)
	}
	format, quality = screenshotFormat(render.Preset{Format: render.FormatPNG, Quality: 70})
	if format != page.CaptureScreenshotFormatPng || quality != 100 {
		t.Fatalf("unexpected png mapping %s/%d", format, quality)
	}
}

func TestSourceURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "map with space.html")
	if err := os.WriteFile(file, []byte("<html></html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := sourceURL(file)
	if err != nil {
		t.Fatalf("sourceURL() error = %v", err)
	}
	if !strings.HasPrefix(got, "file:///") || !strings.HasSuffix(got, "map%20with%20space.html") {
		t.Fatalf("unexpected url %s", got)
	}

	if _, err := sourceURL(filepath.Join(dir, "missing.html")); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := sourceURL(dir); err == nil {
		t.Fatal("expected error for directory source")
	}
}

func TestRenderMissingSourceSkipsBrowser(t *testing.T) {
	t.Parallel()

	r := &Renderer{}
	if _, err := r.Render(context.Background(), filepath.Join(t.TempDir(), "nope"), render.Preset{}); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestNoopRendererError(t *testing.T) {
	t.Parallel()

	if _, err := NewNoop().Render(context.Background(), "x", render.Preset{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
