// Package ics renders filtered events as an iCalendar feed so a selection
// made on the map can be subscribed to from a calendar app.
package ics

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventmap/internal/model"
)

// DefaultDomain qualifies generated UIDs.
const DefaultDomain = "eventmap.local"

// Options controls calendar-level properties.
type Options struct {
	// Name is shown by calendar apps as the subscription title.
	Name string
	// Domain is the right-hand side of every UID.
	Domain string
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

// UID returns the identifier of the n-th occurrence of ev. It only depends
// on the feed position, so re-exports after a reload update rather than
// duplicate entries.
func UID(ev *model.Event, n int, domain string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	return fmt.Sprintf("event-%d-%d@%s", ev.ID, n, domain)
}

// Export builds a VCALENDAR with one VEVENT per occurrence.
func Export(events []*model.Event, locations map[model.LocationKey]*model.Location, opts Options) string {
	return build(events, locations, opts).Serialize()
}

// Write streams the calendar to w.
func Write(w io.Writer, events []*model.Event, locations map[model.LocationKey]*model.Location, opts Options) error {
	_, err := io.WriteString(w, Export(events, locations, opts))
	return err
}

func build(events []*model.Event, locations map[model.LocationKey]*model.Location, opts Options) *ical.Calendar {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//eventmap//event map export//EN")
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, ev := range events {
		loc := locations[ev.LocationKey]
		for n, occ := range ev.Occurrences {
			vev := cal.AddEvent(UID(ev, n, opts.Domain))
			vev.SetDtStampTime(now)
			vev.SetStartAt(occ.Start.UTC())
			vev.SetEndAt(occ.End.UTC())
			vev.SetSummary(summary(ev))

			if desc := description(ev); desc != "" {
				vev.SetDescription(desc)
			}
			if strings.HasPrefix(ev.URL, "http://") || strings.HasPrefix(ev.URL, "https://") {
				vev.SetURL(ev.URL)
			}
			if where := locationText(ev, loc); where != "" {
				vev.SetLocation(where)
			}
			if ev.LocationKey.Known() {
				vev.SetProperty(ical.ComponentPropertyGeo, geo(ev.LocationKey))
			}
			if len(ev.Hashtags) > 0 {
				vev.SetProperty(ical.ComponentPropertyCategories, strings.Join(ev.Hashtags, ","))
			}
		}
	}
	return cal
}

func summary(ev *model.Event) string {
	if ev.Emoji == "" {
		return ev.Name
	}
	return ev.Emoji + " " + ev.Name
}

func description(ev *model.Event) string {
	parts := make([]string, 0, 2)
	if ev.Description != "" {
		parts = append(parts, ev.Description)
	}
	if ev.Sublocation != "" && !strings.HasPrefix(ev.Sublocation, "Error") {
		parts = append(parts, ev.Sublocation)
	}
	return strings.Join(parts, "\n\n")
}

func locationText(ev *model.Event, loc *model.Location) string {
	var parts []string
	switch {
	case loc != nil && loc.Name != "":
		parts = append(parts, loc.Name)
	case ev.Location != "":
		parts = append(parts, ev.Location)
	}
	if loc != nil && loc.Address != "" {
		parts = append(parts, loc.Address)
	}
	return strings.Join(parts, ", ")
}

func geo(k model.LocationKey) string {
	return strconv.FormatFloat(k.Lat(), 'f', -1, 64) + ";" + strconv.FormatFloat(k.Lng(), 'f', -1, 64)
}
