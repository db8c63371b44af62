// Package filter evaluates the tag-state expression and the date-range
// predicate over the canonical event set.
package filter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"eventmap/internal/civiltime"
	"eventmap/internal/model"
)

// TagState is a tag's role in the filter expression.
type TagState int

const (
	Unselected TagState = iota
	Selected
	Required
	Forbidden
)

var stateNames = [...]string{"unselected", "selected", "required", "forbidden"}

func (s TagState) String() string {
	if s < Unselected || s > Forbidden {
		return fmt.Sprintf("TagState(%d)", int(s))
	}
	return stateNames[s]
}

// ParseTagState reads the lowercase name of a state.
func ParseTagState(s string) (TagState, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range stateNames {
		if s == name {
			return TagState(i), nil
		}
	}
	return Unselected, fmt.Errorf("filter: unknown tag state %q", s)
}

func (s TagState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *TagState) UnmarshalText(b []byte) error {
	parsed, err := ParseTagState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Cycle advances unselected -> selected -> required -> forbidden -> unselected.
func (s TagState) Cycle() TagState {
	if s >= Forbidden || s < Unselected {
		return Unselected
	}
	return s + 1
}

// Active reports whether the state narrows results positively.
func (s TagState) Active() bool { return s == Selected || s == Required }

// Priority orders states in the filter panel: required, selected,
// forbidden, then unselected.
func (s TagState) Priority() int {
	switch s {
	case Required:
		return 0
	case Selected:
		return 1
	case Forbidden:
		return 2
	default:
		return 3
	}
}

// TagStates holds the non-unselected states; a missing tag is unselected.
type TagStates map[string]TagState

// Get returns the state of tag.
func (s TagStates) Get(tag string) TagState { return s[tag] }

// Set records st for tag, removing the entry for Unselected.
func (s TagStates) Set(tag string, st TagState) {
	if st == Unselected {
		delete(s, tag)
		return
	}
	s[tag] = st
}

// Clone returns an independent copy.
func (s TagStates) Clone() TagStates {
	out := make(TagStates, len(s))
	for tag, st := range s {
		if st != Unselected {
			out[tag] = st
		}
	}
	return out
}

// Partition splits the tags by state. Each list is sorted.
type Partition struct {
	Required  []string
	Selected  []string
	Forbidden []string
}

// Partition groups the active and forbidden tags.
func (s TagStates) Partition() Partition {
	var p Partition
	for tag, st := range s {
		switch st {
		case Required:
			p.Required = append(p.Required, tag)
		case Selected:
			p.Selected = append(p.Selected, tag)
		case Forbidden:
			p.Forbidden = append(p.Forbidden, tag)
		}
	}
	sort.Strings(p.Required)
	sort.Strings(p.Selected)
	sort.Strings(p.Forbidden)
	return p
}

// HasTagFilter reports whether any required or selected tag is set.
func (p Partition) HasTagFilter() bool {
	return len(p.Required) > 0 || len(p.Selected) > 0
}

// Active returns the required and selected tags together.
func (p Partition) Active() []string {
	out := make([]string, 0, len(p.Required)+len(p.Selected))
	out = append(out, p.Required...)
	return append(out, p.Selected...)
}

// MatchesTags evaluates the tag expression for one event. A forbidden tag
// always excludes. When required tags are set the event must carry all of
// them and the selected group is ignored; otherwise it must carry at least
// one selected tag. With no active tags every event matches.
func MatchesTags(ev *model.Event, p Partition) bool {
	for _, tag := range p.Forbidden {
		if ev.HasTag(tag) {
			return false
		}
	}
	if len(p.Required) > 0 {
		for _, tag := range p.Required {
			if !ev.HasTag(tag) {
				return false
			}
		}
		return true
	}
	if len(p.Selected) > 0 {
		for _, tag := range p.Selected {
			if ev.HasTag(tag) {
				return true
			}
		}
		return false
	}
	return true
}

// DateRange is an inclusive range of civil days. A zero bound is open.
type DateRange struct {
	From civiltime.Date `json:"from"`
	To   civiltime.Date `json:"to"`
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

// Bounds returns the instants covering the range: start of From through
// 23:59:59.999 on To. Open sides are the zero time.
func (r DateRange) Bounds(z civiltime.Zone) (start, end time.Time) {
	if !r.From.IsZero() {
		start = civiltime.StartOfDay(r.From, z)
	}
	if !r.To.IsZero() {
		end = civiltime.EndOfDay(r.To, z)
	}
	return start, end
}

func (r DateRange) String() string {
	return r.From.String() + ".." + r.To.String()
}

// OverlapsRange reports whether some occurrence of ev satisfies
// occ.Start <= end && occ.End >= start. Zero bounds are open; an event
// without occurrences never passes.
func OverlapsRange(ev *model.Event, start, end time.Time) bool {
	for _, occ := range ev.Occurrences {
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

// Filter is the one-shot form of the engine: events passing both the date
// range and the tag expression, in input order.
func Filter(events []*model.Event, r DateRange, states TagStates, z civiltime.Zone) []*model.Event {
	start, end := r.Bounds(z)
	p := states.Partition()

	var out []*model.Event
	for _, ev := range events {
		if !OverlapsRange(ev, start, end) {
			continue
		}
		if MatchesTags(ev, p) {
			out = append(out, ev)
		}
	}
	return out
}
