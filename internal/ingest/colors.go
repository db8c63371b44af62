package ingest

import (
	"sort"

	"golang.org/x/text/cases"

	"eventmap/internal/model"
)

// AssignColors gives every tag a color. Configured colors are used as-is
// (matched case-insensitively); the remaining tags, in sorted order, cycle
// through palette. Configured entries for tags that no event carries are
// kept so the legend stays stable across reloads.
func AssignColors(tags []string, configured map[string]model.Color, palette []model.Color) map[string]model.Color {
	fold := cases.Fold()

	out := make(map[string]model.Color, len(tags)+len(configured))
	byFold := make(map[string]model.Color, len(configured))
	for tag, c := range configured {
		if c.IsZero() {
			continue
		}
		out[tag] = c
		byFold[fold.String(tag)] = c
	}

	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)

	next := 0
	for _, tag := range sorted {
		if _, ok := out[tag]; ok {
			continue
		}
		if c, ok := byFold[fold.String(tag)]; ok {
			out[tag] = c
			continue
		}
		if len(palette) == 0 {
			continue
		}
		out[tag] = palette[next%len(palette)]
		next++
	}
	return out
}
