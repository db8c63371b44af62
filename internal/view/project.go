// Package view turns a filtered event set into per-location render data for
// the map: marker icons, tooltips, lazily built popups and the summary line.
package view

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"

	"eventmap/internal/civiltime"
	"eventmap/internal/filter"
	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

// DefaultMaxMarkers bounds the markers rendered per pass.
const DefaultMaxMarkers = 500

// DefaultMarkerColor is used when neither the location nor its emoji has a
// color.
var DefaultMarkerColor = model.Solid("#757575")

// NoMatchesText is the summary when nothing matches.
const NoMatchesText = "No events match the current filters."

// SizeClass scales a marker relative to the others.
type SizeClass string

const (
	SizeNormal SizeClass = "normal"
	SizeLarge  SizeClass = "large"
	SizeMedium SizeClass = "medium"
	SizeSmall  SizeClass = "small"
)

// Options tunes Project.
type Options struct {
	MaxMarkers   int
	DefaultColor model.Color
}

// Input is everything Project reads. None of it is modified.
type Input struct {
	// Events is the filtered set.
	Events []*model.Event
	// Candidates are the events matching the date range alone; popups list
	// them so non-matching events at a venue stay reachable. Nil falls back
	// to Events.
	Candidates []*model.Event

	Locations    map[model.LocationKey]*model.Location
	States       filter.TagStates
	TagColors    map[string]model.Color
	MarkerColors map[string]model.Color
	DisplayNames map[string]string
	Zone         civiltime.Zone
	Options      Options
}

// Icon describes a marker.
type Icon struct {
	Color model.Color `json:"color"`
	CSS   string      `json:"css"`
	Emoji string      `json:"emoji,omitempty"`
	Size  SizeClass   `json:"size"`
}

// RenderLocation is one marker.
type RenderLocation struct {
	Key        model.LocationKey `json:"key"`
	Lat        float64           `json:"lat"`
	Lng        float64           `json:"lng"`
	Name       string            `json:"name"`
	Address    string            `json:"address,omitempty"`
	Icon       Icon              `json:"icon"`
	Prominence int               `json:"prominence"`
	Tooltip    string            `json:"tooltip"`
	EventCount int               `json:"event_count"`
	EventIDs   []int             `json:"event_ids"`

	popupOnce sync.Once
	popupFn   func() *Popup
	popup     *Popup
}

// Popup builds the popup content on first use.
func (r *RenderLocation) Popup() *Popup {
	r.popupOnce.Do(func() {
		if r.popupFn != nil {
			r.popup = r.popupFn()
		}
	})
	return r.popup
}

// Projection is the render-ready result of one filter pass.
type Projection struct {
	Locations []*RenderLocation `json:"locations"`
	// TotalEvents counts events at the rendered locations.
	TotalEvents int `json:"total_events"`
	// Dropped is the number of locations cut by the marker cap.
	Dropped int    `json:"dropped"`
	Empty   bool   `json:"empty"`
	Summary string `json:"summary"`

	byKey map[model.LocationKey]*RenderLocation
}

// Lookup returns the rendered location for key, or nil.
func (p *Projection) Lookup(key model.LocationKey) *RenderLocation {
	return p.byKey[key]
}

// Project groups the filtered events by location and computes marker
// attributes. Events at unknown locations are skipped. When more locations
// match than Options.MaxMarkers allows, the most prominent and busiest are
// kept and a warning is logged.
func Project(in Input) *Projection {
	z := in.Zone
	if z == nil {
		z = civiltime.Eastern
	}
	maxMarkers := in.Options.MaxMarkers
	if maxMarkers <= 0 {
		maxMarkers = DefaultMaxMarkers
	}
	defaultColor := in.Options.DefaultColor
	if defaultColor.IsZero() {
		defaultColor = DefaultMarkerColor
	}

	groups := groupByLocation(in.Events)
	candidates := in.Candidates
	if candidates == nil {
		candidates = in.Events
	}
	popupSource := groupByLocation(candidates)

	part := in.States.Partition()
	active := part.Active()
	scaled := len(active) > 1

	out := &Projection{byKey: make(map[model.LocationKey]*RenderLocation, len(groups))}
	rendered := make([]*RenderLocation, 0, len(groups))

	for key, events := range groups {
		loc := in.Locations[key]
		r := &RenderLocation{
			Key:        key,
			Lat:        key.Lat(),
			Lng:        key.Lng(),
			EventCount: len(events),
		}
		for _, ev := range events {
			r.EventIDs = append(r.EventIDs, ev.ID)
		}

		var emoji string
		if loc != nil {
			r.Name = loc.Name
			r.Address = loc.Address
			emoji = loc.Emoji
		}
		if r.Name == "" {
			r.Name = events[0].Location
		}

		size := SizeNormal
		if scaled {
			r.Prominence = prominence(events, active)
			size = sizeClass(r.Prominence, len(active))
		}
		color := markerColor(loc, in.MarkerColors, defaultColor)
		r.Icon = Icon{Color: color, CSS: color.CSS(), Emoji: emoji, Size: size}

		if len(events) > 1 {
			r.Tooltip = fmt.Sprintf("%d events here", len(events))
		} else {
			r.Tooltip = events[0].Name
		}

		popupIn := PopupInput{
			Key:          key,
			Location:     loc,
			Events:       popupSource[key],
			States:       in.States,
			TagColors:    in.TagColors,
			DisplayNames: in.DisplayNames,
			DefaultColor: defaultColor,
			Zone:         z,
		}
		if len(popupIn.Events) == 0 {
			popupIn.Events = events
		}
		r.popupFn = func() *Popup { return BuildPopup(popupIn) }

		rendered = append(rendered, r)
	}

	sort.Slice(rendered, func(i, j int) bool {
		a, b := rendered[i], rendered[j]
		if a.Prominence != b.Prominence {
			return a.Prominence > b.Prominence
		}
		if a.EventCount != b.EventCount {
			return a.EventCount > b.EventCount
		}
		return a.Key.Less(b.Key)
	})

	if len(rendered) > maxMarkers {
		out.Dropped = len(rendered) - maxMarkers
		appLog.Warn("view: marker cap reached, dropping locations",
			"locations", len(rendered),
			"max_markers", maxMarkers,
			"dropped", out.Dropped,
		)
		rendered = rendered[:maxMarkers]
	}

	for _, r := range rendered {
		out.byKey[r.Key] = r
		out.TotalEvents += r.EventCount
	}
	out.Locations = rendered
	out.Empty = len(rendered) == 0
	out.Summary = summary(out.TotalEvents, len(rendered))
	return out
}

func groupByLocation(events []*model.Event) map[model.LocationKey][]*model.Event {
	out := make(map[model.LocationKey][]*model.Event)
	for _, ev := range events {
		if !ev.LocationKey.Known() {
			continue
		}
		out[ev.LocationKey] = append(out[ev.LocationKey], ev)
	}
	return out
}

// prominence counts the active tags present in the union of the events'
// hashtags.
func prominence(events []*model.Event, active []string) int {
	n := 0
	for _, tag := range active {
		for _, ev := range events {
			if ev.HasTag(tag) {
				n++
				break
			}
		}
	}
	return n
}

func sizeClass(prominence, active int) SizeClass {
	switch {
	case prominence >= active:
		return SizeLarge
	case prominence >= 2:
		return SizeMedium
	default:
		return SizeSmall
	}
}

func markerColor(loc *model.Location, byEmoji map[string]model.Color, fallback model.Color) model.Color {
	if loc == nil {
		return fallback
	}
	if loc.MarkerColor != nil && !loc.MarkerColor.IsZero() {
		return *loc.MarkerColor
	}
	if c, ok := byEmoji[loc.Emoji]; ok && loc.Emoji != "" && !c.IsZero() {
		return c
	}
	return fallback
}

func summary(events, locations int) string {
	if events == 0 {
		return NoMatchesText
	}
	return fmt.Sprintf("Showing %s events at %s locations.", humanize.Comma(int64(events)), humanize.Comma(int64(locations)))
}
