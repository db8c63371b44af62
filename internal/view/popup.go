package view

import (
	"net/url"
	"sort"
	"strings"

	"eventmap/internal/civiltime"
	"eventmap/internal/filter"
	"eventmap/internal/model"
	"eventmap/internal/tagindex"
)

const (
	// expandAllBelow opens every entry of an unfiltered popup with fewer
	// events than this.
	expandAllBelow = 4

	noEventsText = "No events at this location in the selected date range."
)

// Popup is the content shown when a marker is opened.
type Popup struct {
	Key      model.LocationKey `json:"key"`
	Name     string            `json:"name"`
	Address  string            `json:"address,omitempty"`
	Emoji    string            `json:"emoji,omitempty"`
	Entries  []PopupEntry      `json:"entries"`
	Matching int               `json:"matching"`
	Message  string            `json:"message,omitempty"`
}

// PopupEntry is one event inside a popup.
type PopupEntry struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Emoji       string     `json:"emoji,omitempty"`
	When        string     `json:"when"`
	Venue       string     `json:"venue,omitempty"`
	Sublocation string     `json:"sublocation,omitempty"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url,omitempty"`
	Tags        []PopupTag `json:"tags,omitempty"`
	Matches     bool       `json:"matches"`
	MatchedTags int        `json:"matched_tags"`
	Open        bool       `json:"open"`
}

// PopupTag is a clickable tag button inside an entry.
type PopupTag struct {
	Tag         string      `json:"tag"`
	DisplayName string      `json:"display_name"`
	Color       model.Color `json:"color"`
	State       string      `json:"state"`
}

// PopupInput is what BuildPopup needs about one location.
type PopupInput struct {
	Key      model.LocationKey
	Location *model.Location
	// Events are the date-matching events at the location, matching the tag
	// filter or not.
	Events       []*model.Event
	States       filter.TagStates
	TagColors    map[string]model.Color
	DisplayNames map[string]string
	DefaultColor model.Color
	Zone         civiltime.Zone
}

// BuildPopup orders the events at a location and decides which entries start
// expanded.
//
// Order: events matching the tag filter first, then (with active tags) by the
// number of active tags carried, then by first start, then by id. With any
// tag filter set, exactly the matching entries are open; otherwise all are
// open for small popups and only the first for larger ones.
func BuildPopup(in PopupInput) *Popup {
	z := in.Zone
	if z == nil {
		z = civiltime.Eastern
	}

	p := &Popup{Key: in.Key}
	if in.Location != nil {
		p.Name = in.Location.Name
		p.Address = in.Location.Address
		p.Emoji = in.Location.Emoji
	} else if len(in.Events) > 0 {
		p.Name = in.Events[0].Location
	}

	if len(in.Events) == 0 {
		p.Message = noEventsText
		return p
	}

	part := in.States.Partition()
	active := part.Active()
	anyFilter := len(active) > 0 || len(part.Forbidden) > 0

	type ranked struct {
		ev      *model.Event
		matches bool
		matched int
	}
	rows := make([]ranked, len(in.Events))
	for i, ev := range in.Events {
		r := ranked{ev: ev, matches: filter.MatchesTags(ev, part)}
		for _, tag := range active {
			if ev.HasTag(tag) {
				r.matched++
			}
		}
		rows[i] = r
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.matches != b.matches {
			return a.matches
		}
		if len(active) > 0 && a.matched != b.matched {
			return a.matched > b.matched
		}
		as, bs := a.ev.FirstStart(), b.ev.FirstStart()
		if !as.Equal(bs) {
			return as.Before(bs)
		}
		return a.ev.ID < b.ev.ID
	})

	expandAll := len(rows) < expandAllBelow
	p.Entries = make([]PopupEntry, 0, len(rows))
	for i, r := range rows {
		entry := PopupEntry{
			ID:          r.ev.ID,
			Name:        r.ev.Name,
			Emoji:       r.ev.Emoji,
			When:        FormatOccurrences(r.ev, z),
			Description: r.ev.Description,
			URL:         validURL(r.ev.URL),
			Matches:     r.matches,
			MatchedTags: r.matched,
		}
		if anyFilter {
			entry.Open = r.matches
		} else {
			entry.Open = expandAll || i == 0
		}
		if r.ev.Location != "" && r.ev.Location != p.Name {
			entry.Venue = r.ev.Location
		}
		if sub := r.ev.Sublocation; sub != "" && sub != p.Name && !strings.HasPrefix(sub, "Error") {
			entry.Sublocation = sub
		}
		for _, tag := range r.ev.Hashtags {
			entry.Tags = append(entry.Tags, popupTag(tag, in))
		}
		if r.matches {
			p.Matching++
		}
		p.Entries = append(p.Entries, entry)
	}
	return p
}

func popupTag(tag string, in PopupInput) PopupTag {
	name, ok := in.DisplayNames[tag]
	if !ok {
		name = tagindex.DisplayName(tag)
	}
	c, ok := in.TagColors[tag]
	if !ok {
		c = in.DefaultColor
	}
	return PopupTag{Tag: tag, DisplayName: name, Color: c, State: in.States.Get(tag).String()}
}

// validURL returns s when it is an absolute http(s) URL, else "".
func validURL(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	return s
}
