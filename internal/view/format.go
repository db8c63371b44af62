package view

import (
	"strings"
	"time"

	"eventmap/internal/civiltime"
	"eventmap/internal/model"
)

// NoDateText is shown for events without usable occurrences.
const NoDateText = "Date/Time N/A"

// FormatOccurrences renders an event's schedule compactly, e.g.
// "Sep 1, 7pm", "Sep 1, 7pm–9pm", "Sep 1, 7pm – Sep 3" or, for several
// occurrences, "Sep 1: 7pm, 9pm; Sep 2". Clock times are only printed when
// the listing gave them.
func FormatOccurrences(ev *model.Event, z civiltime.Zone) string {
	if ev == nil || len(ev.Occurrences) == 0 {
		return NoDateText
	}
	if len(ev.Occurrences) == 1 {
		return formatSingle(ev.Occurrences[0], z)
	}

	type group struct {
		date  civiltime.Date
		label string
		times []string
	}
	var groups []*group
	byDate := make(map[civiltime.Date]*group)

	for _, occ := range ev.Occurrences {
		d := civiltime.DateOf(occ.Start, z)
		g, ok := byDate[d]
		if !ok {
			g = &group{date: d, label: formatDay(occ.Start, z)}
			byDate[d] = g
			groups = append(groups, g)
		}

		var text string
		startClock := formatClock(occ.Start, z)
		switch {
		case occ.HasStartTime() && occ.HasEndTime() && civiltime.DateOf(occ.End, z) == d:
			text = startClock
			if endClock := formatClock(occ.End, z); endClock != startClock {
				text += "–" + endClock
			}
		case occ.HasStartTime():
			text = startClock
		}
		if text != "" && !contains(g.times, text) {
			g.times = append(g.times, text)
		}
	}

	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		if len(g.times) == 0 {
			parts = append(parts, g.label)
			continue
		}
		parts = append(parts, g.label+": "+strings.Join(g.times, ", "))
	}
	return strings.Join(parts, "; ")
}

func formatSingle(occ model.Occurrence, z civiltime.Zone) string {
	startDay := formatDay(occ.Start, z)
	endDay := formatDay(occ.End, z)

	var startClock, endClock string
	if occ.HasStartTime() {
		startClock = formatClock(occ.Start, z)
	}
	if occ.HasEndTime() {
		endClock = formatClock(occ.End, z)
	}

	if civiltime.DateOf(occ.Start, z) == civiltime.DateOf(occ.End, z) {
		switch {
		case startClock != "" && endClock != "" && startClock != endClock:
			return startDay + ", " + startClock + "–" + endClock
		case startClock != "":
			return startDay + ", " + startClock
		default:
			return startDay
		}
	}

	var b strings.Builder
	b.WriteString(startDay)
	if startClock != "" {
		b.WriteString(", ")
		b.WriteString(startClock)
	}
	b.WriteString(" – ")
	b.WriteString(endDay)
	if endClock != "" {
		b.WriteString(", ")
		b.WriteString(endClock)
	}
	return b.String()
}

func formatDay(t time.Time, z civiltime.Zone) string {
	return civiltime.In(t, z).Format("Jan 2")
}

// formatClock prints "7pm" on the hour and "7:30pm" otherwise.
func formatClock(t time.Time, z civiltime.Zone) string {
	local := civiltime.In(t, z)
	if local.Minute() == 0 {
		return local.Format("3pm")
	}
	return local.Format("3:04pm")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
