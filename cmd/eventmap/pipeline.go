package main

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"eventmap/internal/capture"
	"eventmap/internal/civiltime"
	"eventmap/internal/config"
	"eventmap/internal/explorer"
	"eventmap/internal/feed"
	"eventmap/internal/ics"
	"eventmap/internal/ingest"
	appLog "eventmap/internal/log"
	"eventmap/internal/view"
)

// pipeline wires config to feed loading, ingestion and capture.
type pipeline struct {
	cfg    *config.Config
	zone   civiltime.Zone
	loader *feed.Loader
}

// reloader is what a reload swaps data into.
type reloader interface {
	Swap(*ingest.Dataset)
}

func newPipeline(cfg *config.Config) (*pipeline, error) {
	z, err := cfg.Zone()
	if err != nil {
		return nil, err
	}
	loader := feed.NewLoader(feed.Sources{
		Events:    cfg.Feeds.Events,
		Locations: cfg.Feeds.Locations,
		Tags:      cfg.Feeds.Tags,
	}, feed.NewFetcher(cfg.Feeds.CacheDir, nil))
	return &pipeline{cfg: cfg, zone: z, loader: loader}, nil
}

// load fetches the feeds and ingests them.
func (p *pipeline) load(ctx context.Context) (*ingest.Dataset, error) {
	b, err := p.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	ws, we := ingest.WindowFor(p.cfg.Window.Start, p.cfg.Window.End, p.zone)
	data, _ := ingest.Ingest(b.Events, b.Locations, b.Tags, ingest.Options{
		Zone:        p.zone,
		WindowStart: ws,
		WindowEnd:   we,
		Palette:     p.cfg.Map.Palette,
	})
	return data, nil
}

// reload replaces the served dataset. On failure the previous one stays.
func (p *pipeline) reload(ctx context.Context, dst reloader) {
	start := time.Now()
	data, err := p.load(ctx)
	if err != nil {
		appLog.Error("feed reload failed; keeping previous dataset", err)
		return
	}
	dst.Swap(data)
	appLog.Info("feed reload done", "snapshot", data.SnapshotID, "events", len(data.Events), "took", time.Since(start).String())

	if p.cfg.Capture.Enabled {
		if err := p.capture(ctx); err != nil {
			appLog.Error("capture after reload failed", err)
		}
	}
}

func (p *pipeline) explorer(data *ingest.Dataset) *explorer.Explorer {
	return explorer.New(data, explorer.Options{
		WindowStart: p.cfg.Window.Start,
		WindowEnd:   p.cfg.Window.End,
		DefaultSpan: p.cfg.Map.DefaultSpanDays,
		View: view.Options{
			MaxMarkers:   p.cfg.Map.MaxMarkers,
			DefaultColor: p.cfg.Map.DefaultMarkerColor,
		},
		MaxTags:  p.cfg.Map.MaxTags,
		Calendar: ics.Options{Name: "Event Map"},
	})
}

func (p *pipeline) capture(ctx context.Context) error {
	if err := waitForListener(ctx, p.cfg.Listen, 10*time.Second); err != nil {
		return err
	}
	opts := capture.Options{
		URL:        pageURL(p.cfg.Listen),
		OutputPath: p.cfg.Capture.Output,
		Width:      p.cfg.Capture.Width,
		Height:     p.cfg.Capture.Height,
	}
	if p.cfg.BasicAuth != nil {
		opts.Username = p.cfg.BasicAuth.Username
		opts.Password = p.cfg.BasicAuth.Password
	}
	return capture.CaptureMapPNG(ctx, opts)
}

// pageURL turns a listen address into a URL the local browser can open.
func pageURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

// waitForListener polls until the HTTP server accepts connections.
func waitForListener(ctx context.Context, listen string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := strings.TrimSuffix(strings.TrimPrefix(pageURL(listen), "http://"), "/")
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server not reachable at %s: %w", addr, err)
		case <-time.After(100 * time.Millisecond):
		}
	}
}
