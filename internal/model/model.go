package model

import "time"

// Occurrence is one concrete dated instance of an event.
type Occurrence struct {
	// Start / End are absolute instants (UTC). End is never before Start.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// OriginalStartTime / OriginalEndTime keep the time-of-day text exactly as
	// listed. Empty means no time was given and Start/End carry the noon
	// default, so display code must not print a clock time for them.
	OriginalStartTime string `json:"original_start_time,omitempty"`
	OriginalEndTime   string `json:"original_end_time,omitempty"`
}

// HasStartTime reports whether the listing gave a start time.
func (o Occurrence) HasStartTime() bool { return hasText(o.OriginalStartTime) }

// HasEndTime reports whether the listing gave an end time.
func (o Occurrence) HasEndTime() bool { return hasText(o.OriginalEndTime) }

// Event is the canonical, normalized form of one listing. Events are built
// once per load and never mutated afterwards; filters only select subsets.
type Event struct {
	// ID is the record's index in the raw events feed. It is stable across
	// reloads of the same feed and has gaps where records were dropped.
	ID int `json:"id"`

	Name        string `json:"name"`
	Location    string `json:"location"`
	Sublocation string `json:"sublocation,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	Emoji       string `json:"emoji,omitempty"`

	// Hashtags are normalized tags without the leading '#'.
	Hashtags []string `json:"hashtags"`

	// Occurrences is non-empty and sorted by Start.
	Occurrences []Occurrence `json:"occurrences"`

	// LocationKey joins the event to its venue in the locations feed.
	LocationKey LocationKey `json:"location_key"`
}

// HasTag reports whether the event carries tag (exact match).
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Hashtags {
		if t == tag {
			return true
		}
	}
	return false
}

// FirstStart is the start of the earliest occurrence, or the zero time.
func (e *Event) FirstStart() time.Time {
	if len(e.Occurrences) == 0 {
		return time.Time{}
	}
	return e.Occurrences[0].Start
}

// Overlaps reports whether any occurrence intersects [start, end].
func (e *Event) Overlaps(start, end time.Time) bool {
	for _, occ := range e.Occurrences {
		if !occ.Start.After(end) && !occ.End.Before(start) {
			return true
		}
	}
	return false
}

// Location is a geocoded venue. Many events may share one location.
type Location struct {
	Key            LocationKey `json:"key"`
	Name           string      `json:"location"`
	Address        string      `json:"address,omitempty"`
	Emoji          string      `json:"emoji,omitempty"`
	AlternateNames []string    `json:"alternate_names,omitempty"`
	// MarkerColor overrides every other marker color rule when set.
	MarkerColor *Color `json:"marker_color,omitempty"`
}

// TagConfig drives hashtag cleanup and coloring.
type TagConfig struct {
	Exclude      []string          `json:"exclude"`
	Rewrite      map[string]string `json:"rewrite"`
	Colors       map[string]Color  `json:"colors"`
	MarkerColors map[string]Color  `json:"markerColors"`
}

func hasText(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}
