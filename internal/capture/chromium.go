// Package capture renders the map page in headless Chromium and saves it as
// a PNG preview.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "eventmap/internal/log"
)

// Default capture parameters.
const (
	DefaultWidth   = 1280
	DefaultHeight  = 800
	DefaultTimeout = 30 * time.Second
)

// readySelector is set by the map page once markers and tags are drawn.
const readySelector = `[data-ready="true"]`

// Options defines one screenshot.
type Options struct {
	// URL of the map page, e.g. "http://127.0.0.1:8080/".
	URL string
	// OutputPath receives the PNG.
	OutputPath string

	// Width and Height are the viewport size in pixels; zero uses the
	// defaults.
	Width  int
	Height int

	// Username / Password are sent as Basic Auth when both are set.
	Username string
	Password string

	// Timeout bounds the whole capture; zero uses DefaultTimeout.
	Timeout time.Duration
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// CaptureMapPNG navigates headless Chromium to opts.URL, waits for the page
// to mark itself ready and writes a full-page screenshot to opts.OutputPath.
func CaptureMapPNG(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	if err := chromedp.Run(ctx, tasks(opts, &png)); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := writeFileAtomic(opts.OutputPath, png); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	appLog.Info("capture: preview written", "path", opts.OutputPath, "bytes", len(png))
	return nil
}

func tasks(opts Options, png *[]byte) chromedp.Tasks {
	var ts chromedp.Tasks
	if h := authHeader(opts.Username, opts.Password); h != "" {
		ts = append(ts,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": h}),
		)
	}
	return append(ts,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		// tiles keep painting after the ready flag
		chromedp.Sleep(500*time.Millisecond),
		chromedp.FullScreenshot(png, 100),
	)
}

func authHeader(user, pass string) string {
	if user == "" || pass == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".preview-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
