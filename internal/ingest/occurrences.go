package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"eventmap/internal/civiltime"
	"eventmap/internal/model"
)

// ParseOccurrences decodes the occurrences field of a raw record. The field
// is either a JSON string holding the list or the list itself; each entry is
// a [start_date, start_time, end_date, end_time] tuple. Tuples without a
// usable start date are dropped. The returned slice is sorted by Start.
//
// An error is returned only when the JSON itself cannot be read.
func ParseOccurrences(raw json.RawMessage, z civiltime.Zone) ([]model.Occurrence, error) {
	list, err := decodeTupleList(raw)
	if err != nil {
		return nil, err
	}

	occs := make([]model.Occurrence, 0, len(list))
	for _, item := range list {
		var cells []json.RawMessage
		if err := json.Unmarshal(item, &cells); err != nil {
			continue
		}
		tuple := make([]string, 4)
		for i := 0; i < len(cells) && i < 4; i++ {
			tuple[i] = cellString(cells[i])
		}
		if occ, ok := resolveOccurrence(tuple[0], tuple[1], tuple[2], tuple[3], z); ok {
			occs = append(occs, occ)
		}
	}

	sort.SliceStable(occs, func(i, j int) bool {
		return occs[i].Start.Before(occs[j].Start)
	})
	return occs, nil
}

func decodeTupleList(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("occurrences: %w", err)
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			return nil, nil
		}
		raw = json.RawMessage(inner)
	}

	if raw[0] != '[' {
		// Valid JSON that is not a list carries no occurrences.
		if !json.Valid(raw) {
			return nil, fmt.Errorf("occurrences: invalid JSON %q", truncate(string(raw), 60))
		}
		return nil, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("occurrences: %w", err)
	}
	return list, nil
}

// cellString reads a tuple cell that may be a string, a number or null.
func cellString(b json.RawMessage) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// resolveOccurrence applies the defaulting rules: a missing end date or end
// time takes the start's. An end that lands before the start on the same
// day is read as running past midnight; any other backwards end collapses
// onto the start.
func resolveOccurrence(startDate, startTime, endDate, endTime string, z civiltime.Zone) (model.Occurrence, bool) {
	start, ok := civiltime.ParseCivilDateTime(startDate, startTime, z)
	if !ok {
		return model.Occurrence{}, false
	}

	effEndDate := endDate
	if effEndDate == "" {
		effEndDate = startDate
	}
	effEndTime := endTime
	if effEndTime == "" {
		effEndTime = startTime
	}

	end, ok := civiltime.ParseCivilDateTime(effEndDate, effEndTime, z)
	if !ok {
		end = start
	}

	if end.Before(start) {
		end = start
		if _, _, clockOK := civiltime.ParseClock(endTime); clockOK && sameDate(startDate, effEndDate) {
			d, _ := civiltime.ParseDate(startDate)
			if rolled, ok := civiltime.ParseCivilDateTime(d.AddDays(1).String(), endTime, z); ok && !rolled.Before(start) {
				end = rolled
			}
		}
	}

	return model.Occurrence{
		Start:             start,
		End:               end,
		OriginalStartTime: startTime,
		OriginalEndTime:   endTime,
	}, true
}

func sameDate(a, b string) bool {
	da, errA := civiltime.ParseDate(a)
	db, errB := civiltime.ParseDate(b)
	return errA == nil && errB == nil && da == db
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
