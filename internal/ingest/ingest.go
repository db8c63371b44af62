// Package ingest turns the raw event, location and tag-config feeds into the
// canonical, immutable Dataset the filter engine works on.
package ingest

import (
	"html"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"eventmap/internal/civiltime"
	appLog "eventmap/internal/log"
	"eventmap/internal/model"
	"eventmap/internal/tagindex"
)

// Options configures a single ingestion run.
type Options struct {
	// Zone resolves listing dates and times. Nil means civiltime.Eastern.
	Zone civiltime.Zone
	// WindowStart / WindowEnd bound the application. Events with no
	// occurrence overlapping [WindowStart, WindowEnd] are dropped. A zero
	// value leaves that side open.
	WindowStart time.Time
	WindowEnd   time.Time
	// Palette is cycled over tags without a configured color.
	Palette []model.Color
}

// WindowFor converts a civil window to the instants Options expects: start of
// the first day through the last millisecond of the last day.
func WindowFor(start, end civiltime.Date, z civiltime.Zone) (time.Time, time.Time) {
	var s, e time.Time
	if !start.IsZero() {
		s = civiltime.StartOfDay(start, z)
	}
	if !end.IsZero() {
		e = civiltime.EndOfDay(end, z)
	}
	return s, e
}

// Report counts what an ingestion run kept and dropped.
type Report struct {
	Records          int `json:"records"`
	Kept             int `json:"kept"`
	MissingName      int `json:"missing_name"`
	MissingCoords    int `json:"missing_coords"`
	BadOccurrences   int `json:"bad_occurrences"`
	NoOccurrences    int `json:"no_occurrences"`
	OutsideWindow    int `json:"outside_window"`
	Locations        int `json:"locations"`
	LocationsSkipped int `json:"locations_skipped"`
}

// Dropped is the number of event records that did not make it into the
// dataset.
func (r Report) Dropped() int { return r.Records - r.Kept }

// Dataset is the result of one ingestion run. Nothing in it is mutated after
// Ingest returns, except through Rebuild.
type Dataset struct {
	// Events in ingestion order (ascending ID).
	Events     []*model.Event
	ByID       map[int]*model.Event
	ByLocation map[model.LocationKey][]*model.Event
	Locations  map[model.LocationKey]*model.Location

	// Tags is every tag carried by some event, sorted.
	Tags              []string
	TagColors         map[string]model.Color
	MarkerColors      map[string]model.Color
	DisplayNames      map[string]string
	GlobalFrequencies map[string]int

	Zone       civiltime.Zone
	Window     [2]time.Time
	SnapshotID string
	LoadedAt   time.Time
	Report     Report
}

// Ingest normalizes the three feeds. Bad records are dropped and counted in
// the report; it never fails as a whole.
func Ingest(raw []model.RawEventRecord, locs []model.RawLocation, cfg model.TagConfig, opts Options) (*Dataset, Report) {
	z := opts.Zone
	if z == nil {
		z = civiltime.Eastern
	}

	report := Report{Records: len(raw)}
	tags := NewTagNormalizer(cfg)
	events := make([]*model.Event, 0, len(raw))

	for i, rec := range raw {
		ev, reason := buildEvent(i, rec, tags, z, opts)
		if ev == nil {
			switch reason {
			case dropMissingName:
				report.MissingName++
			case dropMissingCoords:
				report.MissingCoords++
			case dropBadOccurrences:
				report.BadOccurrences++
			case dropNoOccurrences:
				report.NoOccurrences++
			case dropOutsideWindow:
				report.OutsideWindow++
			}
			continue
		}
		events = append(events, ev)
	}
	report.Kept = len(events)

	locations, skipped := buildLocations(locs)
	report.Locations = len(locations)
	report.LocationsSkipped = skipped

	d := &Dataset{
		Events:       events,
		Locations:    locations,
		MarkerColors: cfg.MarkerColors,
		Zone:         z,
		Window:       [2]time.Time{opts.WindowStart, opts.WindowEnd},
		SnapshotID:   uuid.NewString(),
		LoadedAt:     time.Now(),
		Report:       report,
	}
	if d.MarkerColors == nil {
		d.MarkerColors = map[string]model.Color{}
	}
	d.Rebuild()
	d.TagColors = AssignColors(d.Tags, cfg.Colors, opts.Palette)

	appLog.Info("ingest: dataset built",
		"snapshot", d.SnapshotID,
		"records", report.Records,
		"events", report.Kept,
		"dropped", report.Dropped(),
		"missing_name", report.MissingName,
		"missing_coords", report.MissingCoords,
		"bad_occurrences", report.BadOccurrences,
		"no_occurrences", report.NoOccurrences,
		"outside_window", report.OutsideWindow,
		"locations", report.Locations,
		"tags", len(d.Tags),
	)
	return d, report
}

type dropReason int

const (
	kept dropReason = iota
	dropMissingName
	dropMissingCoords
	dropBadOccurrences
	dropNoOccurrences
	dropOutsideWindow
)

func buildEvent(id int, rec model.RawEventRecord, tags *TagNormalizer, z civiltime.Zone, opts Options) (*model.Event, dropReason) {
	name := cleanText(rec.Name)
	location := cleanText(rec.Location)
	sublocation := cleanText(rec.Sublocation)

	if name == "" {
		return nil, dropMissingName
	}
	if !rec.Lat.Valid || !rec.Lng.Valid {
		appLog.Debug("ingest: record without coordinates", "index", id, "name", name)
		return nil, dropMissingCoords
	}

	location = clearPlaceholder(location)
	sublocation = clearPlaceholder(sublocation)

	occs, err := ParseOccurrences(rec.Occurrences, z)
	if err != nil {
		appLog.Error("ingest: skipping record with unreadable occurrences", err, "index", id, "name", name)
		return nil, dropBadOccurrences
	}
	if len(occs) == 0 {
		return nil, dropNoOccurrences
	}
	if !overlapsWindow(occs, opts.WindowStart, opts.WindowEnd) {
		return nil, dropOutsideWindow
	}

	return &model.Event{
		ID:          id,
		Name:        name,
		Location:    location,
		Sublocation: sublocation,
		URL:         strings.TrimSpace(rec.URL),
		Description: cleanText(rec.Description),
		Emoji:       strings.TrimSpace(rec.Emoji),
		Hashtags:    tags.Normalize(rec.Hashtags),
		Occurrences: occs,
		LocationKey: model.NewLocationKey(rec.Lat.Value, rec.Lng.Value),
	}, kept
}

func overlapsWindow(occs []model.Occurrence, start, end time.Time) bool {
	for _, occ := range occs {
		if !end.IsZero() && occ.Start.After(end) {
			continue
		}
		if !start.IsZero() && occ.End.Before(start) {
			continue
		}
		return true
	}
	return false
}

// cleanText decodes HTML entities left by the scraper and brings the text to
// NFC so visually identical names compare equal.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(norm.NFC.String(html.UnescapeString(s)))
}

func clearPlaceholder(s string) string {
	if strings.HasPrefix(s, "None") || strings.HasPrefix(s, "N/A") {
		return ""
	}
	return s
}

func buildLocations(raw []model.RawLocation) (map[model.LocationKey]*model.Location, int) {
	out := make(map[model.LocationKey]*model.Location, len(raw))
	skipped := 0
	for _, r := range raw {
		if !r.Lat.Valid || !r.Lng.Valid {
			skipped++
			continue
		}
		key := model.NewLocationKey(r.Lat.Value, r.Lng.Value)
		if _, dup := out[key]; dup {
			skipped++
			continue
		}
		loc := &model.Location{
			Key:            key,
			Name:           cleanText(r.Location),
			Address:        cleanText(r.Address),
			Emoji:          strings.TrimSpace(r.Emoji),
			AlternateNames: []string(r.AlternateNames),
		}
		if r.MarkerColor != nil && !r.MarkerColor.IsZero() {
			c := *r.MarkerColor
			loc.MarkerColor = &c
		}
		out[key] = loc
	}
	return out, skipped
}

// Rebuild recomputes the lookups derived from Events. Call it after
// replacing the Events slice.
func (d *Dataset) Rebuild() {
	d.ByID = make(map[int]*model.Event, len(d.Events))
	d.ByLocation = make(map[model.LocationKey][]*model.Event)

	seen := make(map[string]struct{})
	for _, ev := range d.Events {
		d.ByID[ev.ID] = ev
		if ev.LocationKey.Known() {
			d.ByLocation[ev.LocationKey] = append(d.ByLocation[ev.LocationKey], ev)
		}
		for _, tag := range ev.Hashtags {
			seen[tag] = struct{}{}
		}
	}

	d.Tags = make([]string, 0, len(seen))
	d.DisplayNames = make(map[string]string, len(seen))
	for tag := range seen {
		d.Tags = append(d.Tags, tag)
		d.DisplayNames[tag] = tagindex.DisplayName(tag)
	}
	sort.Strings(d.Tags)
	d.GlobalFrequencies = tagindex.Frequencies(d.Events)
}

// Location returns the venue for key, or nil when the locations feed has no
// row for it.
func (d *Dataset) Location(key model.LocationKey) *model.Location {
	return d.Locations[key]
}

// EventsAt returns the events placed at key in ingestion order.
func (d *Dataset) EventsAt(key model.LocationKey) []*model.Event {
	return d.ByLocation[key]
}
