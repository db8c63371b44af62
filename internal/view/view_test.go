package view

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventmap/internal/civiltime"
	"eventmap/internal/filter"
	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

var z = civiltime.Eastern

func at(date string, hour, min int) time.Time {
	return civiltime.Resolve(civiltime.MustParseDate(date), hour, min, 0, z)
}

func occ(date, startText string, sh, sm int, endDate, endText string, eh, em int) model.Occurrence {
	return model.Occurrence{
		Start:             at(date, sh, sm),
		End:               at(endDate, eh, em),
		OriginalStartTime: startText,
		OriginalEndTime:   endText,
	}
}

func mkEvent(id int, key model.LocationKey, start time.Time, tags ...string) *model.Event {
	return &model.Event{
		ID:          id,
		Name:        fmt.Sprintf("event %d", id),
		Hashtags:    tags,
		LocationKey: key,
		Occurrences: []model.Occurrence{{Start: start, End: start}},
	}
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	t.Cleanup(func() { appLog.SetOutput(os.Stderr) })
	return &buf
}

func TestFormatOccurrences(t *testing.T) {
	tests := []struct {
		name string
		occs []model.Occurrence
		want string
	}{
		{"none", nil, NoDateText},
		{"start time only", []model.Occurrence{occ("2025-09-01", "7:00 PM", 19, 0, "2025-09-01", "", 19, 0)}, "Sep 1, 7pm"},
		{"same day range", []model.Occurrence{occ("2025-09-01", "7pm", 19, 0, "2025-09-01", "9:30pm", 21, 30)}, "Sep 1, 7pm–9:30pm"},
		{"date only", []model.Occurrence{occ("2025-09-01", "", 12, 0, "2025-09-01", "", 12, 0)}, "Sep 1"},
		{"multi day", []model.Occurrence{occ("2025-09-01", "7pm", 19, 0, "2025-09-03", "5pm", 17, 0)}, "Sep 1, 7pm – Sep 3, 5pm"},
		{"multi day without times", []model.Occurrence{occ("2025-09-01", "", 12, 0, "2025-09-03", "", 12, 0)}, "Sep 1 – Sep 3"},
		{"midnight and noon", []model.Occurrence{occ("2025-09-01", "12 AM", 0, 0, "2025-09-01", "12 PM", 12, 0)}, "Sep 1, 12am–12pm"},
		{
			"grouped by day",
			[]model.Occurrence{
				occ("2025-09-01", "7pm", 19, 0, "2025-09-01", "", 19, 0),
				occ("2025-09-01", "9pm", 21, 0, "2025-09-01", "", 21, 0),
				occ("2025-09-02", "", 12, 0, "2025-09-02", "", 12, 0),
				occ("2025-09-03", "6pm", 18, 0, "2025-09-03", "8pm", 20, 0),
			},
			"Sep 1: 7pm, 9pm; Sep 2; Sep 3: 6pm–8pm",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatOccurrences(&model.Event{Occurrences: tt.occs}, z))
		})
	}
}

func TestScenarioMarkerCap(t *testing.T) {
	buf := captureLog(t)

	events := make([]*model.Event, 0, 600)
	for i := 0; i < 600; i++ {
		key := model.NewLocationKey(40+float64(i)/1000, -73.9)
		events = append(events, mkEvent(i, key, at("2025-09-01", 19, 0)))
	}

	var p *Projection
	require.NotPanics(t, func() {
		p = Project(Input{Events: events, Options: Options{MaxMarkers: 500}})
	})

	assert.Len(t, p.Locations, 500)
	assert.Equal(t, 100, p.Dropped)
	assert.Equal(t, 500, p.TotalEvents)
	assert.False(t, p.Empty)
	assert.Contains(t, buf.String(), "[WARN] view: marker cap reached")
	assert.Contains(t, buf.String(), "dropped=100")
	assert.Equal(t, "Showing 500 events at 500 locations.", p.Summary)
}

func TestProjectGroupingAndAttributes(t *testing.T) {
	venueA := model.NewLocationKey(40.7, -73.9)
	venueB := model.NewLocationKey(40.8, -73.95)
	venueC := model.NewLocationKey(40.9, -74.0)

	orange := model.Gradient("#f80", "#f00")
	locations := map[model.LocationKey]*model.Location{
		venueA: {Key: venueA, Name: "Blue Room", Address: "1 Main St", Emoji: "🎷"},
		venueB: {Key: venueB, Name: "Park", Emoji: "🌳", MarkerColor: &orange},
	}
	markerColors := map[string]model.Color{"🎷": model.Solid("#123456"), "🌳": model.Solid("#00ff00")}

	events := []*model.Event{
		mkEvent(1, venueA, at("2025-09-01", 19, 0), "Jazz"),
		mkEvent(2, venueA, at("2025-09-02", 19, 0), "Jazz", "Outdoor"),
		mkEvent(3, venueB, at("2025-09-03", 12, 0), "Outdoor"),
		mkEvent(4, venueC, at("2025-09-04", 12, 0), "Jazz"),
		mkEvent(5, model.LocationKey{}, at("2025-09-04", 12, 0), "Jazz"),
	}
	events[3].Location = "Somewhere"

	t.Run("uniform with one active tag", func(t *testing.T) {
		p := Project(Input{Events: events, Locations: locations, MarkerColors: markerColors,
			States: filter.TagStates{"Jazz": filter.Selected}})
		require.Len(t, p.Locations, 3, "unknown location skipped")

		a := p.Lookup(venueA)
		require.NotNil(t, a)
		assert.Equal(t, "Blue Room", a.Name)
		assert.Equal(t, "2 events here", a.Tooltip)
		assert.Equal(t, SizeNormal, a.Icon.Size)
		assert.Equal(t, 0, a.Prominence)
		assert.Equal(t, model.Solid("#123456"), a.Icon.Color, "emoji marker color")
		assert.Equal(t, "🎷", a.Icon.Emoji)
		assert.Equal(t, []int{1, 2}, a.EventIDs)

		b := p.Lookup(venueB)
		assert.Equal(t, orange, b.Icon.Color, "location override wins")
		assert.Equal(t, "linear-gradient(to bottom, #f80, #f00)", b.Icon.CSS)
		assert.Equal(t, "event 3", b.Tooltip)

		c := p.Lookup(venueC)
		assert.Equal(t, DefaultMarkerColor, c.Icon.Color)
		assert.Equal(t, "Somewhere", c.Name, "falls back to the event's venue text")

		assert.Nil(t, p.Lookup(model.NewLocationKey(1, 1)))
		assert.Equal(t, venueA, p.Locations[0].Key, "busiest location first")
	})

	t.Run("prominence with several active tags", func(t *testing.T) {
		p := Project(Input{Events: events, Locations: locations,
			States: filter.TagStates{"Jazz": filter.Selected, "Outdoor": filter.Required, "Art": filter.Selected}})

		a := p.Lookup(venueA)
		assert.Equal(t, 2, a.Prominence)
		assert.Equal(t, SizeMedium, a.Icon.Size)
		assert.Equal(t, SizeSmall, p.Lookup(venueB).Icon.Size)
		assert.Equal(t, 1, p.Lookup(venueB).Prominence)
		assert.Equal(t, venueA, p.Locations[0].Key)

		p = Project(Input{Events: events, Locations: locations,
			States: filter.TagStates{"Jazz": filter.Selected, "Outdoor": filter.Selected}})
		assert.Equal(t, SizeLarge, p.Lookup(venueA).Icon.Size)
	})

	t.Run("empty", func(t *testing.T) {
		p := Project(Input{Locations: locations})
		assert.True(t, p.Empty)
		assert.Empty(t, p.Locations)
		assert.Equal(t, NoMatchesText, p.Summary)
	})
}

func TestSummaryUsesThousandsSeparators(t *testing.T) {
	assert.Equal(t, "Showing 1,234 events at 56 locations.", summary(1234, 56))
}

func TestPopupOrderingAndOpenState(t *testing.T) {
	venue := model.NewLocationKey(40.7, -73.9)
	loc := &model.Location{Key: venue, Name: "Blue Room", Address: "1 Main St", Emoji: "🎷"}

	early := mkEvent(1, venue, at("2025-09-01", 12, 0), "Art")
	jazz := mkEvent(2, venue, at("2025-09-05", 19, 0), "Jazz")
	both := mkEvent(3, venue, at("2025-09-09", 19, 0), "Jazz", "Outdoor")
	late := mkEvent(4, venue, at("2025-09-10", 19, 0))
	candidates := []*model.Event{early, jazz, both, late}

	order := func(p *Popup) []int {
		var ids []int
		for _, e := range p.Entries {
			ids = append(ids, e.ID)
		}
		return ids
	}
	open := func(p *Popup) []bool {
		var out []bool
		for _, e := range p.Entries {
			out = append(out, e.Open)
		}
		return out
	}

	t.Run("active tags", func(t *testing.T) {
		p := BuildPopup(PopupInput{Key: venue, Location: loc, Events: candidates,
			States: filter.TagStates{"Jazz": filter.Selected, "Outdoor": filter.Selected}})
		assert.Equal(t, []int{3, 2, 1, 4}, order(p))
		assert.Equal(t, []bool{true, true, false, false}, open(p))
		assert.Equal(t, 2, p.Matching)
		assert.Equal(t, 2, p.Entries[0].MatchedTags)
		assert.Equal(t, "Blue Room", p.Name)
	})

	t.Run("forbidden only", func(t *testing.T) {
		p := BuildPopup(PopupInput{Key: venue, Location: loc, Events: candidates,
			States: filter.TagStates{"Jazz": filter.Forbidden}})
		assert.Equal(t, []int{1, 4, 2, 3}, order(p))
		assert.Equal(t, []bool{true, true, false, false}, open(p))
	})

	t.Run("no filter, large popup", func(t *testing.T) {
		p := BuildPopup(PopupInput{Key: venue, Location: loc, Events: candidates})
		assert.Equal(t, []int{1, 2, 3, 4}, order(p))
		assert.Equal(t, []bool{true, false, false, false}, open(p))
	})

	t.Run("no filter, small popup", func(t *testing.T) {
		p := BuildPopup(PopupInput{Key: venue, Location: loc, Events: candidates[:3]})
		assert.Equal(t, []bool{true, true, true}, open(p))
	})

	t.Run("no events", func(t *testing.T) {
		p := BuildPopup(PopupInput{Key: venue, Location: loc})
		assert.Empty(t, p.Entries)
		assert.NotEmpty(t, p.Message)
	})
}

func TestPopupEntryDetails(t *testing.T) {
	venue := model.NewLocationKey(40.7, -73.9)
	loc := &model.Location{Key: venue, Name: "Blue Room"}

	ev := mkEvent(1, venue, at("2025-09-01", 19, 0), "LiveMusic")
	ev.Location = "Blue Room Annex"
	ev.Sublocation = "Error: not found"
	ev.URL = "javascript:alert(1)"
	ev.Occurrences[0].OriginalStartTime = "7pm"

	other := mkEvent(2, venue, at("2025-09-02", 19, 0))
	other.Location = "Blue Room"
	other.Sublocation = "Back Bar"
	other.URL = "https://example.org/e/2"

	p := BuildPopup(PopupInput{
		Key: venue, Location: loc, Events: []*model.Event{ev, other},
		TagColors:    map[string]model.Color{"LiveMusic": model.Solid("#abc")},
		States:       filter.TagStates{"LiveMusic": filter.Selected},
		DefaultColor: DefaultMarkerColor,
	})
	require.Len(t, p.Entries, 2)

	first := p.Entries[0]
	assert.Equal(t, "Sep 1, 7pm", first.When)
	assert.Equal(t, "Blue Room Annex", first.Venue)
	assert.Empty(t, first.Sublocation, "error placeholders are hidden")
	assert.Empty(t, first.URL, "only http(s) links are kept")
	require.Len(t, first.Tags, 1)
	assert.Equal(t, PopupTag{Tag: "LiveMusic", DisplayName: "Live Music", Color: model.Solid("#abc"), State: "selected"}, first.Tags[0])

	second := p.Entries[1]
	assert.Empty(t, second.Venue, "same as the location name")
	assert.Equal(t, "Back Bar", second.Sublocation)
	assert.Equal(t, "https://example.org/e/2", second.URL)
	assert.Equal(t, "Sep 2", second.When)
}

func TestRenderLocationPopupIsLazy(t *testing.T) {
	venue := model.NewLocationKey(40.7, -73.9)
	matching := mkEvent(1, venue, at("2025-09-01", 19, 0), "Jazz")
	other := mkEvent(2, venue, at("2025-09-02", 19, 0), "Art")

	p := Project(Input{
		Events:     []*model.Event{matching},
		Candidates: []*model.Event{matching, other},
		States:     filter.TagStates{"Jazz": filter.Selected},
	})
	r := p.Lookup(venue)
	require.NotNil(t, r)
	assert.Nil(t, r.popup)

	popup := r.Popup()
	require.NotNil(t, popup)
	assert.Len(t, popup.Entries, 2, "popups list every date-matching event at the venue")
	assert.Same(t, popup, r.Popup())
}
