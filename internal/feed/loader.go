// Package feed loads the three input feeds (events, locations, tag config)
// from URLs or local files.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

// ErrFeed marks a feed that could not be read or decoded. Startup treats it
// as fatal; a scheduled reload keeps the previous dataset.
var ErrFeed = errors.New("feed unavailable")

// Sources locates the three feeds. Each is an http(s) URL, a file:// URL or
// a local path.
type Sources struct {
	Events    string
	Locations string
	Tags      string
}

// Bundle is the decoded content of all three feeds.
type Bundle struct {
	Events    []model.RawEventRecord
	Locations []model.RawLocation
	Tags      model.TagConfig
	// Stale lists the feeds served from the disk cache after a failed fetch
	// or a 304.
	Stale    []string
	LoadedAt time.Time
}

// Loader fetches and decodes a Bundle.
type Loader struct {
	sources Sources
	fetcher *Fetcher
}

// NewLoader creates a loader. fetcher may be nil when all sources are local.
func NewLoader(sources Sources, fetcher *Fetcher) *Loader {
	if fetcher == nil {
		fetcher = NewFetcher("", nil)
	}
	return &Loader{sources: sources, fetcher: fetcher}
}

// Load reads the three feeds concurrently and returns once all of them are
// decoded. Any failure cancels the others and is returned wrapped in ErrFeed.
func (l *Loader) Load(ctx context.Context) (*Bundle, error) {
	b := &Bundle{}
	var stale [3]bool

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stale[0], err = l.loadInto(ctx, "events", l.sources.Events, &b.Events)
		return err
	})
	g.Go(func() error {
		var err error
		stale[1], err = l.loadInto(ctx, "locations", l.sources.Locations, &b.Locations)
		return err
	})
	g.Go(func() error {
		var err error
		stale[2], err = l.loadInto(ctx, "tags", l.sources.Tags, &b.Tags)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, name := range []string{"events", "locations", "tags"} {
		if stale[i] {
			b.Stale = append(b.Stale, name)
		}
	}
	b.LoadedAt = time.Now()

	appLog.Info("feed: bundle loaded",
		"events", len(b.Events),
		"locations", len(b.Locations),
		"stale", strings.Join(b.Stale, ","),
	)
	return b, nil
}

func (l *Loader) loadInto(ctx context.Context, name, location string, dst any) (bool, error) {
	body, fromCache, err := l.read(ctx, name, location)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrFeed, name, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return false, fmt.Errorf("%w: %s: empty body", ErrFeed, name)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return false, fmt.Errorf("%w: %s: decode: %w", ErrFeed, name, err)
	}
	return fromCache, nil
}

func (l *Loader) read(ctx context.Context, name, location string) ([]byte, bool, error) {
	switch {
	case location == "":
		return nil, false, errors.New("no source configured")
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		res, err := l.fetcher.Fetch(ctx, Source{Name: name, URL: location})
		if err != nil {
			return nil, false, err
		}
		return res.Body, res.FromCache, nil
	default:
		path := strings.TrimPrefix(location, "file://")
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, false, err
		}
		appLog.Debug("feed read from disk", "feed", name, "path", path, "bytes", len(body))
		return body, false, nil
	}
}
