package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventmap/internal/civiltime"
	"eventmap/internal/config"
	"eventmap/internal/explorer"
	"eventmap/internal/ingest"
	"eventmap/internal/model"
)

var (
	blueRoom = model.NewLocationKey(40.70, -73.90)
	gallery  = model.NewLocationKey(40.80, -73.95)
)

func ev(id int, key model.LocationKey, date string, tags ...string) *model.Event {
	d := civiltime.MustParseDate(date)
	return &model.Event{
		ID:          id,
		Name:        fmt.Sprintf("event %d", id),
		Hashtags:    tags,
		LocationKey: key,
		Occurrences: []model.Occurrence{{
			Start:             civiltime.Resolve(d, 19, 0, 0, civiltime.Eastern),
			End:               civiltime.Resolve(d, 21, 0, 0, civiltime.Eastern),
			OriginalStartTime: "7pm",
			OriginalEndTime:   "9pm",
		}},
	}
}

func dataset(snapshot string, events ...*model.Event) *ingest.Dataset {
	d := &ingest.Dataset{
		Events: events,
		Locations: map[model.LocationKey]*model.Location{
			blueRoom: {Key: blueRoom, Name: "Blue Room"},
			gallery:  {Key: gallery, Name: "Gallery"},
		},
		Zone:       civiltime.Eastern,
		SnapshotID: snapshot,
	}
	d.Rebuild()
	return d
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Window = config.WindowConfig{
		Start: civiltime.MustParseDate("2025-09-01"),
		End:   civiltime.MustParseDate("2025-12-31"),
	}
	if mutate != nil {
		mutate(cfg)
	}

	data := dataset("snap-1",
		ev(0, blueRoom, "2025-09-02", "Jazz", "LiveMusic"),
		ev(1, blueRoom, "2025-09-05", "Jazz"),
		ev(2, gallery, "2025-09-05", "Art"),
		ev(3, gallery, "2025-10-20", "Art", "Jazz"),
	)
	now := time.Date(2025, 9, 1, 16, 0, 0, 0, time.UTC)
	ex := explorer.New(data, explorer.Options{
		WindowStart: cfg.Window.Start,
		WindowEnd:   cfg.Window.End,
		Now:         func() time.Time { return now },
	})

	s := NewServer(cfg, ex)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, ts *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

type viewBody struct {
	Snapshot string `json:"snapshot"`
	State    struct {
		Range struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"range"`
		Tags map[string]string `json:"tags"`
	} `json:"state"`
	View struct {
		Locations []struct {
			Key        string `json:"key"`
			EventCount int    `json:"event_count"`
		} `json:"locations"`
		TotalEvents int    `json:"total_events"`
		Empty       bool   `json:"empty"`
		Summary     string `json:"summary"`
	} `json:"view"`
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, body := get(t, ts, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestViewDefaultsAndFilters(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := get(t, ts, "/api/view")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v viewBody
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, "snap-1", v.Snapshot)
	assert.Equal(t, "2025-09-01", v.State.Range.From)
	assert.Equal(t, "2025-09-15", v.State.Range.To)
	assert.Equal(t, 3, v.View.TotalEvents)
	assert.Len(t, v.View.Locations, 2)

	resp, body = get(t, ts, "/api/view?from=2025-09-01&to=2025-12-31&required=Jazz&forbidden=LiveMusic")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v = viewBody{}
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, map[string]string{"Jazz": "required", "LiveMusic": "forbidden"}, v.State.Tags)
	assert.Equal(t, 2, v.View.TotalEvents)
	assert.Equal(t, "Showing 2 events at 2 locations.", v.View.Summary)

	resp, body = get(t, ts, "/api/view?selected=Nope")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v = viewBody{}
	require.NoError(t, json.Unmarshal(body, &v))
	assert.True(t, v.View.Empty)
	assert.Equal(t, "No events match the current filters.", v.View.Summary)

	resp, _ = get(t, ts, "/api/view?from=2025-13-01")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPopup(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := get(t, ts, "/api/locations/"+blueRoom.String()+"/popup?selected=Jazz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p struct {
		Name    string `json:"name"`
		Entries []struct {
			ID   int  `json:"id"`
			Open bool `json:"open"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "Blue Room", p.Name)
	require.Len(t, p.Entries, 2)
	assert.True(t, p.Entries[0].Open)

	resp, _ = get(t, ts, "/api/locations/"+gallery.String()+"/popup?selected=Jazz")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, ts, "/api/locations/nowhere/popup")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTags(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := get(t, ts, "/api/tags?forbidden=LiveMusic&q=ar")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []struct {
		Tag   string `json:"tag"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "LiveMusic", rows[0].Tag)
	assert.Equal(t, "forbidden", rows[0].State)
	assert.Equal(t, "Art", rows[1].Tag)
}

func TestCalendar(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := get(t, ts, "/api/calendar.ics?selected=Art")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	assert.Contains(t, string(body), "event-2-0@")
	assert.NotContains(t, string(body), "event-1-0@")
}

func TestBasicAuth(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}
	})

	resp, _ := get(t, ts, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health stays open")

	resp, _ = get(t, ts, "/api/view")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/view", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "s3cret")
	authed, err := ts.Client().Do(req)
	require.NoError(t, err)
	authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)
}

func TestRateLimit(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 1}
	})

	resp, _ := get(t, ts, "/api/meta")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, ts, "/api/meta")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = get(t, ts, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "only /api is limited")
}

func TestStaticAndNotFound(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := get(t, ts, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `data-ready`)

	resp, body = get(t, ts, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), `"error"`)
}

func TestPreview(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "preview.png")
	_, ts := newTestServer(t, func(c *config.Config) { c.Capture.Output = out })

	resp, _ := get(t, ts, "/preview.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, os.WriteFile(out, []byte("\x89PNG\r\n\x1a\n"), 0o644))
	resp, body := get(t, ts, "/preview.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "\x89PNG\r\n\x1a\n", string(body))
}

func TestMetaAndSwap(t *testing.T) {
	s, ts := newTestServer(t, nil)

	resp, body := get(t, ts, "/api/meta")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var meta struct {
		Snapshot string `json:"snapshot"`
		Window   struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"window"`
	}
	require.NoError(t, json.Unmarshal(body, &meta))
	assert.Equal(t, "snap-1", meta.Snapshot)
	assert.Equal(t, "2025-09-01", meta.Window.From)
	assert.Equal(t, "2025-12-31", meta.Window.To)

	s.Swap(dataset("snap-2", ev(9, gallery, "2025-09-03", "Art")))

	_, body = get(t, ts, "/api/view")
	var v viewBody
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, "snap-2", v.Snapshot)
	assert.Equal(t, 1, v.View.TotalEvents)
}
