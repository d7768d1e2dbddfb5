// Package thumbnail renders project previews to PNG screenshots with a
// headless Chrome driven by go-rod.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/sitegen/preview"
	"github.com/hazyhaar/sitegen/sitefile"
)

// ErrClosed is returned by Capture after Close.
var ErrClosed = errors.New("thumbnail: renderer is closed")

// Config configures the renderer.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome on first use.
	RemoteURL string

	Width   int           // viewport width, default 1280
	Height  int           // viewport height, default 800
	Timeout time.Duration // per capture, default 30s

	// RecycleAfter relaunches Chrome after that many captures. Default 200.
	RecycleAfter int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 800
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RecycleAfter <= 0 {
		c.RecycleAfter = 200
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Renderer captures screenshots of the first page of a project. Chrome is
// started lazily and shared by all captures.
type Renderer struct {
	cfg      Config
	mu       sync.Mutex
	browser  *rod.Browser
	lnch     *launcher.Launcher
	captures int
	closed   bool
}

// New returns a renderer. Nothing is launched until the first Capture.
func New(cfg Config) *Renderer {
	cfg.defaults()
	return &Renderer{cfg: cfg}
}

// Capture renders files the way the preview endpoint does and returns a PNG
// of the viewport.
func (r *Renderer) Capture(ctx context.Context, files []sitefile.FileRecord) ([]byte, error) {
	doc, err := preview.Render(files, "")
	if err != nil {
		return nil, err
	}
	b, err := r.acquire()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		r.reset("create page", err)
		return nil, fmt.Errorf("thumbnail: create page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: r.cfg.Width, Height: r.cfg.Height, DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("thumbnail: viewport: %w", err)
	}
	if err := page.SetDocumentContent(doc); err != nil {
		return nil, fmt.Errorf("thumbnail: load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		r.cfg.Logger.Warn("thumbnail: wait load", "error", err)
	}
	png, err := page.Screenshot(false, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	if err != nil {
		return nil, fmt.Errorf("thumbnail: screenshot: %w", err)
	}
	return png, nil
}

// acquire returns the shared browser, launching or recycling it as needed.
func (r *Renderer) acquire() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.browser != nil && r.captures >= r.cfg.RecycleAfter {
		r.cfg.Logger.Info("thumbnail: recycling chrome", "captures", r.captures)
		r.cleanup()
	}
	if r.browser == nil {
		b, err := r.launch()
		if err != nil {
			return nil, err
		}
		r.browser, r.captures = b, 0
	}
	r.captures++
	return r.browser, nil
}

func (r *Renderer) launch() (*rod.Browser, error) {
	wsURL := r.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).Set("hide-scrollbars")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("thumbnail: launch chrome: %w", err)
		}
		wsURL, r.lnch = u, l
		r.cfg.Logger.Info("thumbnail: launched local chrome")
	}
	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if r.lnch != nil {
			r.lnch.Cleanup()
			r.lnch = nil
		}
		return nil, fmt.Errorf("thumbnail: connect: %w", err)
	}
	return b, nil
}

// reset drops a browser that failed so the next capture starts a new one.
func (r *Renderer) reset(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Logger.Warn("thumbnail: dropping browser", "op", op, "error", err)
	r.cleanup()
}

func (r *Renderer) cleanup() {
	if r.browser != nil {
		r.browser.Close()
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
		r.lnch = nil
	}
}

// Close shuts Chrome down. It is safe to call more than once.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cleanup()
	return nil
}
