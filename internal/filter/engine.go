package filter

import (
	"time"

	"eventmap/internal/civiltime"
	appLog "eventmap/internal/log"
	"eventmap/internal/model"
	"eventmap/internal/tagindex"
)

// Engine filters a fixed event set. It keeps the date-matching candidates
// and their tag index between calls; the index is rebuilt only when the date
// range changes, never when tag states change. Not safe for concurrent use.
type Engine struct {
	events []*model.Event
	zone   civiltime.Zone

	rng        DateRange
	start, end time.Time
	candidates []*model.Event
	byID       map[int]*model.Event
	index      tagindex.Index
	rebuilds   int
}

// NewEngine prepares an engine over events with an open date range.
func NewEngine(events []*model.Event, z civiltime.Zone) *Engine {
	if z == nil {
		z = civiltime.Eastern
	}
	e := &Engine{events: events, zone: z}
	e.rebuild()
	return e
}

// SetDateRange narrows the candidate set. It reports whether anything was
// recomputed.
func (e *Engine) SetDateRange(r DateRange) bool {
	if r == e.rng && e.index != nil {
		return false
	}
	e.rng = r
	e.rebuild()
	return true
}

func (e *Engine) rebuild() {
	e.start, e.end = e.rng.Bounds(e.zone)

	candidates := make([]*model.Event, 0, len(e.events))
	for _, ev := range e.events {
		if e.rng.IsZero() || OverlapsRange(ev, e.start, e.end) {
			candidates = append(candidates, ev)
		}
	}
	e.candidates = candidates

	e.byID = make(map[int]*model.Event, len(e.candidates))
	for _, ev := range e.candidates {
		e.byID[ev.ID] = ev
	}
	e.index = tagindex.Build(e.candidates)
	e.rebuilds++

	appLog.Debug("filter: candidates rebuilt",
		"range", e.rng.String(),
		"candidates", len(e.candidates),
		"tags", len(e.index),
	)
}

// DateRange returns the current range.
func (e *Engine) DateRange() DateRange { return e.rng }

// Candidates returns the events matching the date range alone.
func (e *Engine) Candidates() []*model.Event { return e.candidates }

// Index returns the tag index over Candidates.
func (e *Engine) Index() tagindex.Index { return e.index }

// Rebuilds counts index rebuilds since construction.
func (e *Engine) Rebuilds() int { return e.rebuilds }

// Apply returns the candidates matching states, in ascending id order.
//
// With required or selected tags set, the index narrows the set first:
// required tags are intersected pairwise (stopping as soon as the
// intersection is empty), otherwise selected tags are unioned. Forbidden
// tags and the date predicate are then checked on the reduced set. Without
// tag filters the candidates are only checked against forbidden tags.
func (e *Engine) Apply(states TagStates) []*model.Event {
	p := states.Partition()

	if !p.HasTagFilter() {
		if len(p.Forbidden) == 0 {
			return append([]*model.Event(nil), e.candidates...)
		}
		var out []*model.Event
		for _, ev := range e.candidates {
			if !carriesAny(ev, p.Forbidden) {
				out = append(out, ev)
			}
		}
		return out
	}

	var ids tagindex.IDSet
	if len(p.Required) > 0 {
		ids = e.index.Lookup(p.Required[0])
		for _, tag := range p.Required[1:] {
			if len(ids) == 0 {
				break
			}
			ids = tagindex.Intersect(ids, e.index.Lookup(tag))
		}
	} else {
		sets := make([]tagindex.IDSet, 0, len(p.Selected))
		for _, tag := range p.Selected {
			sets = append(sets, e.index.Lookup(tag))
		}
		ids = tagindex.Union(sets...)
	}
	if len(ids) == 0 {
		return nil
	}

	out := make([]*model.Event, 0, len(ids))
	for _, id := range ids {
		ev, ok := e.byID[id]
		if !ok {
			continue
		}
		if carriesAny(ev, p.Forbidden) {
			continue
		}
		if !OverlapsRange(ev, e.start, e.end) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func carriesAny(ev *model.Event, tags []string) bool {
	for _, tag := range tags {
		if ev.HasTag(tag) {
			return true
		}
	}
	return false
}
