// Package headless renders local files to images and PDFs with headless Chrome.
package headless

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/bluemap-render/internal/render"
)

// Config controls the behavior of the headless renderer.
type Config struct {
	MaxParallel       int
	NavigationTimeout time.Duration
}

// Renderer implements render.Renderer using chromedp and headless Chrome.
type Renderer struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless renderer backed by chromedp.
func NewChromedp(cfg Config) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 25 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("allow-file-access-from-files", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context and shuts the browser down.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render opens sourcePath in a browser tab and captures it according to preset.
func (r *Renderer) Render(ctx context.Context, sourcePath string, preset render.Preset) (render.Artifact, error) {
	preset = preset.WithDefaults()
	target, err := sourceURL(sourcePath)
	if err != nil {
		return render.Artifact{}, err
	}
	if err := r.acquire(ctx); err != nil {
		return render.Artifact{}, err
	}
	defer r.release()

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	navCtx, cancel := context.WithTimeout(taskCtx, r.navTimeout())
	defer cancel()

	start := time.Now()
	data, err := r.capture(navCtx, target, preset)
	if err != nil {
		if ctx.Err() != nil {
			return render.Artifact{}, fmt.Errorf("render canceled: %w", ctx.Err())
		}
		return render.Artifact{}, err
	}
	return render.Artifact{
		Data:        data,
		ContentType: preset.ContentType(),
		Duration:    time.Since(start),
	}, nil
}

func (r *Renderer) capture(ctx context.Context, target string, preset render.Preset) ([]byte, error) {
	var data []byte
	actions := []chromedp.Action{
		viewportAction(preset),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(preset.Wait),
		captureAction(preset, &data),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty %s output", preset.Format)
	}
	return data, nil
}

func viewportAction(preset render.Preset) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		err := emulation.SetDeviceMetricsOverride(preset.Width, preset.Height, preset.Scale, false).Do(ctx)
		if err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		return nil
	})
}

func captureAction(preset render.Preset, out *[]byte) chromedp.Action {
	if preset.Format == render.FormatPDF {
		return chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(preset.Landscape).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("print to pdf: %w", err)
			}
			*out = data
			return nil
		})
	}
	format, quality := screenshotFormat(preset)
	if preset.FullPage != nil && *preset.FullPage {
		return chromedp.FullScreenshot(out, quality)
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().WithFormat(format)
		if format == page.CaptureScreenshotFormatJpeg {
			params = params.WithQuality(int64(quality))
		}
		data, err := params.Do(ctx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		*out = data
		return nil
	})
}

// screenshotFormat maps a preset to a capture format. chromedp encodes PNG when quality is 100.
func screenshotFormat(preset render.Preset) (page.CaptureScreenshotFormat, int) {
	if preset.Format == render.FormatJPEG {
		return page.CaptureScreenshotFormatJpeg, preset.Quality
	}
	return page.CaptureScreenshotFormatPng, 100
}

func sourceURL(sourcePath string) (string, error) {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return "", fmt.Errorf("resolve source: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("source %s is a directory", sourcePath)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

func (r *Renderer) navTimeout() time.Duration {
	if r.cfg.NavigationTimeout > 0 {
		return r.cfg.NavigationTimeout
	}
	return 25 * time.Second
}
