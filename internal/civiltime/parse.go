package civiltime

import (
	"strconv"
	"strings"
	"time"
)

// DefaultHour is used when a listing gives a date but no usable time. Noon
// keeps date-only events from sorting as midnight and looking already past.
const DefaultHour = 12

// ParseClock reads a free-form clock time such as "4:00 PM", "4pm", "16:00",
// "16:00:00" or "7:30 p.m.". ok is false for empty or malformed input.
func ParseClock(s string) (hour, min int, ok bool) {
	lc := strings.ToLower(strings.TrimSpace(s))
	if lc == "" {
		return 0, 0, false
	}
	lc = strings.ReplaceAll(lc, ".", "")

	modifier := ""
	switch {
	case strings.Contains(lc, "pm"):
		modifier = "pm"
	case strings.Contains(lc, "am"):
		modifier = "am"
	}
	lc = strings.TrimSpace(strings.NewReplacer("am", "", "pm", "").Replace(lc))
	if lc == "" {
		return 0, 0, false
	}

	parts := strings.Split(lc, ":")
	if len(parts) > 3 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	if len(parts) > 1 {
		min, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, false
		}
	}

	switch modifier {
	case "pm":
		// "16:00 PM" shows up in scraped listings; keep the 24h reading.
		if hour < 1 || hour > 23 {
			return 0, 0, false
		}
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
	}

	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, false
	}
	return hour, min, true
}

// ParseCivilDateTime resolves a listing's date and time strings to an
// absolute instant in UTC. A missing or malformed time falls back to
// DefaultHour; a malformed date yields ok == false.
func ParseCivilDateTime(dateStr, timeStr string, z Zone) (time.Time, bool) {
	d, err := ParseDate(dateStr)
	if err != nil {
		return time.Time{}, false
	}
	hour, min, ok := ParseClock(timeStr)
	if !ok {
		hour, min = DefaultHour, 0
	}
	return Resolve(d, hour, min, 0, z), true
}

// Resolve converts a civil date and clock time in zone z to a UTC instant.
func Resolve(d Date, hour, min, nsec int, z Zone) time.Time {
	name, off := z.CivilOffset(d.Year, d.Month, d.Day, hour, min)
	return time.Date(d.Year, d.Month, d.Day, hour, min, 0, nsec, time.FixedZone(name, off)).UTC()
}

// StartOfDay is 00:00 on d in z.
func StartOfDay(d Date, z Zone) time.Time {
	return Resolve(d, 0, 0, 0, z)
}

// EndOfDay is 23:59:59.999 on d in z, the inclusive upper bound used by
// date-range filters.
func EndOfDay(d Date, z Zone) time.Time {
	return Resolve(d, 23, 59, 0, z).Add(59*time.Second + 999*time.Millisecond)
}
