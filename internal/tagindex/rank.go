package tagindex

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultRankLimit is how many tags the filter panel shows.
const DefaultRankLimit = 100

var (
	lowerThenUpper = regexp.MustCompile(`([a-z\d])([A-Z])`)
	acronymThenCap = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
)

// DisplayName splits camel-cased tags into words: "LiveMusic" becomes
// "Live Music" and "HTMLContent" becomes "HTML Content". A leading '#' is
// dropped; existing spaces are kept.
func DisplayName(tag string) string {
	tag = strings.TrimPrefix(tag, "#")
	if tag == "" {
		return ""
	}
	parts := strings.Split(tag, " ")
	for i, p := range parts {
		p = lowerThenUpper.ReplaceAllString(p, "$1 $2")
		parts[i] = acronymThenCap.ReplaceAllString(p, "$1 $2")
	}
	return strings.Join(parts, " ")
}

// RankOptions drives Rank.
type RankOptions struct {
	// Priority groups tags before frequency ordering; lower sorts first.
	// Nil treats every tag alike.
	Priority func(tag string) int
	// Pinned tags survive the search filter (typically the active ones).
	Pinned func(tag string) bool
	// Current is the frequency table of the currently filtered events,
	// Global the one of the whole dataset.
	Current map[string]int
	Global  map[string]int
	// Search keeps tags whose display name contains it, case-insensitively.
	Search string
	// Limit caps the result; <= 0 means DefaultRankLimit.
	Limit int
	// DisplayNames overrides DisplayName for specific tags.
	DisplayNames map[string]string
}

// Ranked is one row of the filter panel.
type Ranked struct {
	Tag         string `json:"tag"`
	DisplayName string `json:"display_name"`
	Current     int    `json:"current"`
	Global      int    `json:"global"`
}

// Rank orders tags for display: by priority, then current frequency
// descending, then global frequency descending, then alphabetically.
func Rank(tags []string, opts RankOptions) []Ranked {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultRankLimit
	}
	search := strings.ToLower(strings.TrimSpace(opts.Search))

	type row struct {
		Ranked
		priority int
	}
	rows := make([]row, 0, len(tags))
	for _, tag := range tags {
		name, ok := opts.DisplayNames[tag]
		if !ok {
			name = DisplayName(tag)
		}
		pinned := opts.Pinned != nil && opts.Pinned(tag)
		if search != "" && !pinned && !strings.Contains(strings.ToLower(name), search) {
			continue
		}
		r := row{Ranked: Ranked{
			Tag:         tag,
			DisplayName: name,
			Current:     opts.Current[tag],
			Global:      opts.Global[tag],
		}}
		if opts.Priority != nil {
			r.priority = opts.Priority(tag)
		}
		rows = append(rows, r)
	}

	col := collate.New(language.English)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.Current != b.Current {
			return a.Current > b.Current
		}
		if a.Global != b.Global {
			return a.Global > b.Global
		}
		if c := col.CompareString(a.Tag, b.Tag); c != 0 {
			return c < 0
		}
		return a.Tag < b.Tag
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]Ranked, len(rows))
	for i, r := range rows {
		out[i] = r.Ranked
	}
	return out
}
