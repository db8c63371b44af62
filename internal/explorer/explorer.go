// Package explorer owns the interactive state of one map session: the date
// range, the tag states and the tag search. Every mutation goes through it,
// and it hands out filtered events, projections, ranked tags and calendar
// exports computed from that state.
package explorer

import (
	"io"
	"maps"
	"time"

	"eventmap/internal/civiltime"
	"eventmap/internal/filter"
	"eventmap/internal/ics"
	"eventmap/internal/ingest"
	appLog "eventmap/internal/log"
	"eventmap/internal/model"
	"eventmap/internal/tagindex"
	"eventmap/internal/view"
)

// DefaultSpanDays is the length of the initial date range.
const DefaultSpanDays = 14

// Options configures an Explorer.
type Options struct {
	// WindowStart / WindowEnd bound every date range. Zero values fall back
	// to the dataset's ingestion window.
	WindowStart civiltime.Date
	WindowEnd   civiltime.Date
	// DefaultSpan is the initial range length in days.
	DefaultSpan int
	// Now is the clock used for the initial range; nil means time.Now.
	Now func() time.Time

	View     view.Options
	MaxTags  int
	Calendar ics.Options
}

// State is the user-controlled part of a session.
type State struct {
	Range  filter.DateRange `json:"range"`
	Tags   filter.TagStates `json:"tags"`
	Search string           `json:"search,omitempty"`
}

// TagRow is one entry of the filter panel.
type TagRow struct {
	tagindex.Ranked
	State filter.TagState `json:"state"`
	Color model.Color     `json:"color"`
}

// Explorer is not safe for concurrent use; callers serialize access.
type Explorer struct {
	data   *ingest.Dataset
	opts   Options
	zone   civiltime.Zone
	engine *filter.Engine
	state  State

	// cached results, reset by every state change
	filtered   []*model.Event
	projection *view.Projection
}

// New creates an Explorer over data with the initial date range: today when
// it falls inside the window, the window start otherwise, spanning
// DefaultSpan days but never past the window end.
func New(data *ingest.Dataset, opts Options) *Explorer {
	if opts.DefaultSpan <= 0 {
		opts.DefaultSpan = DefaultSpanDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	z := data.Zone
	if z == nil {
		z = civiltime.Eastern
	}
	if opts.WindowStart.IsZero() && !data.Window[0].IsZero() {
		opts.WindowStart = civiltime.DateOf(data.Window[0], z)
	}
	if opts.WindowEnd.IsZero() && !data.Window[1].IsZero() {
		opts.WindowEnd = civiltime.DateOf(data.Window[1], z)
	}

	e := &Explorer{
		data:   data,
		opts:   opts,
		zone:   z,
		engine: filter.NewEngine(data.Events, z),
	}
	e.state = State{Range: e.DefaultRange(), Tags: filter.TagStates{}}
	e.engine.SetDateRange(e.state.Range)
	return e
}

// DefaultRange is the range a fresh session starts with.
func (e *Explorer) DefaultRange() filter.DateRange {
	today := civiltime.DateOf(e.opts.Now(), e.zone)
	start := today
	if e.outsideWindow(today) && !e.opts.WindowStart.IsZero() {
		start = e.opts.WindowStart
	}
	end := start.AddDays(e.opts.DefaultSpan)
	if !e.opts.WindowEnd.IsZero() && end.After(e.opts.WindowEnd) {
		end = e.opts.WindowEnd
	}
	return filter.DateRange{From: start, To: end}
}

func (e *Explorer) outsideWindow(d civiltime.Date) bool {
	if !e.opts.WindowStart.IsZero() && d.Before(e.opts.WindowStart) {
		return true
	}
	return !e.opts.WindowEnd.IsZero() && d.After(e.opts.WindowEnd)
}

// Clamp restricts r to the window. Open bounds become the window bounds and
// an inverted range collapses onto its start.
func (e *Explorer) Clamp(r filter.DateRange) filter.DateRange {
	ws, we := e.opts.WindowStart, e.opts.WindowEnd
	if !ws.IsZero() && (r.From.IsZero() || r.From.Before(ws)) {
		r.From = ws
	}
	if !we.IsZero() && (r.To.IsZero() || r.To.After(we)) {
		r.To = we
	}
	if !we.IsZero() && r.From.After(we) {
		r.From = we
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		r.To = r.From
	}
	return r
}

// State returns a copy of the current state.
func (e *Explorer) State() State {
	s := e.state
	s.Tags = e.state.Tags.Clone()
	return s
}

// Dataset returns the data the Explorer works on.
func (e *Explorer) Dataset() *ingest.Dataset { return e.data }

// Window returns the effective window bounds.
func (e *Explorer) Window() (civiltime.Date, civiltime.Date) {
	return e.opts.WindowStart, e.opts.WindowEnd
}

// SetDateRange replaces the date range, clamped to the window, and returns
// the range actually applied.
func (e *Explorer) SetDateRange(r filter.DateRange) filter.DateRange {
	r = e.Clamp(r)
	if r != e.state.Range {
		e.state.Range = r
		e.engine.SetDateRange(r)
		e.invalidate()
	}
	return r
}

// SetTagState sets one tag's state.
func (e *Explorer) SetTagState(tag string, st filter.TagState) {
	if e.state.Tags.Get(tag) == st {
		return
	}
	e.state.Tags.Set(tag, st)
	e.invalidate()
}

// ToggleTag switches a tag between unselected and selected. Any other state
// goes back to unselected.
func (e *Explorer) ToggleTag(tag string) filter.TagState {
	next := filter.Selected
	if e.state.Tags.Get(tag) != filter.Unselected {
		next = filter.Unselected
	}
	e.SetTagState(tag, next)
	return next
}

// CycleTag advances a tag through unselected, selected, required and
// forbidden.
func (e *Explorer) CycleTag(tag string) filter.TagState {
	next := e.state.Tags.Get(tag).Cycle()
	e.SetTagState(tag, next)
	return next
}

// ReplaceTags swaps in a whole set of tag states.
func (e *Explorer) ReplaceTags(states filter.TagStates) {
	next := states.Clone()
	if maps.Equal(next, e.state.Tags) {
		return
	}
	e.state.Tags = next
	e.invalidate()
}

// SetSearch sets the filter-panel search text. It only affects Tags.
func (e *Explorer) SetSearch(q string) { e.state.Search = q }

// Apply replaces the whole state at once.
func (e *Explorer) Apply(s State) {
	e.ReplaceTags(s.Tags)
	e.SetSearch(s.Search)
	e.SetDateRange(s.Range)
}

// Reset clears tags and search and restores the initial date range.
func (e *Explorer) Reset() {
	e.state = State{Range: e.DefaultRange(), Tags: filter.TagStates{}}
	e.engine.SetDateRange(e.state.Range)
	e.invalidate()
}

// Swap replaces the dataset after a reload. The state is kept, with the date
// range clamped to the new window.
func (e *Explorer) Swap(data *ingest.Dataset) {
	prev := e.data
	e.data = data
	if data.Zone != nil {
		e.zone = data.Zone
	}
	e.engine = filter.NewEngine(data.Events, e.zone)
	e.state.Range = e.Clamp(e.state.Range)
	e.engine.SetDateRange(e.state.Range)
	e.invalidate()

	appLog.Info("explorer: dataset swapped",
		"previous", snapshotID(prev),
		"snapshot", data.SnapshotID,
		"events", len(data.Events),
	)
}

func snapshotID(d *ingest.Dataset) string {
	if d == nil {
		return ""
	}
	return d.SnapshotID
}

func (e *Explorer) invalidate() {
	e.filtered = nil
	e.projection = nil
}

// Filtered returns the events passing the date range and tag states.
func (e *Explorer) Filtered() []*model.Event {
	if e.filtered == nil {
		e.filtered = e.engine.Apply(e.state.Tags)
		if e.filtered == nil {
			e.filtered = []*model.Event{}
		}
	}
	return e.filtered
}

// View projects the filtered events onto map markers. The projection is
// reused until the state changes, so popups built from it stay cached.
func (e *Explorer) View() *view.Projection {
	if e.projection == nil {
		e.projection = view.Project(view.Input{
			Events:       e.Filtered(),
			Candidates:   e.engine.Candidates(),
			Locations:    e.data.Locations,
			States:       e.state.Tags,
			TagColors:    e.data.TagColors,
			MarkerColors: e.data.MarkerColors,
			DisplayNames: e.data.DisplayNames,
			Zone:         e.zone,
			Options:      e.opts.View,
		})
	}
	return e.projection
}

// Popup returns the popup of a rendered location.
func (e *Explorer) Popup(key model.LocationKey) (*view.Popup, bool) {
	r := e.View().Lookup(key)
	if r == nil {
		return nil, false
	}
	return r.Popup(), true
}

// Tags ranks the dataset's tags for the filter panel: tags with a state
// first, then by frequency among the filtered events, then by overall
// frequency. Tags with a state always survive the search.
func (e *Explorer) Tags() []TagRow {
	states := e.state.Tags
	ranked := tagindex.Rank(e.data.Tags, tagindex.RankOptions{
		Priority:     func(tag string) int { return states.Get(tag).Priority() },
		Pinned:       func(tag string) bool { return states.Get(tag) != filter.Unselected },
		Current:      tagindex.Frequencies(e.Filtered()),
		Global:       e.data.GlobalFrequencies,
		Search:       e.state.Search,
		Limit:        e.opts.MaxTags,
		DisplayNames: e.data.DisplayNames,
	})

	rows := make([]TagRow, len(ranked))
	for i, r := range ranked {
		rows[i] = TagRow{Ranked: r, State: states.Get(r.Tag), Color: e.data.TagColors[r.Tag]}
	}
	return rows
}

// Export writes the filtered events as an iCalendar feed.
func (e *Explorer) Export(w io.Writer) error {
	return ics.Write(w, e.Filtered(), e.data.Locations, e.opts.Calendar)
}
