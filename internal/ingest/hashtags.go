package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"eventmap/internal/model"
)

// TagNormalizer cleans free-text hashtag lists. It remembers the first
// spelling seen for every case-folded tag so that "#jazz" and "#Jazz" in
// different records index as the same tag. Not safe for concurrent use.
type TagNormalizer struct {
	fold     cases.Caser
	exclude  map[string]struct{}
	rewrite  map[string]string
	spelling map[string]string
}

// NewTagNormalizer prepares the exclude and rewrite tables from cfg. Rewrite
// targets are registered first so their spelling wins.
func NewTagNormalizer(cfg model.TagConfig) *TagNormalizer {
	n := &TagNormalizer{
		fold:     cases.Fold(),
		exclude:  make(map[string]struct{}, len(cfg.Exclude)),
		rewrite:  make(map[string]string, len(cfg.Rewrite)),
		spelling: make(map[string]string),
	}
	for _, tag := range cfg.Exclude {
		if tag = cleanTag(tag); tag != "" {
			n.exclude[n.fold.String(tag)] = struct{}{}
		}
	}
	for alias, canonical := range cfg.Rewrite {
		alias, canonical = cleanTag(alias), cleanTag(canonical)
		if alias == "" || canonical == "" {
			continue
		}
		n.rewrite[n.fold.String(alias)] = canonical
		n.spelling[n.fold.String(canonical)] = canonical
	}
	return n
}

// Normalize splits text on commas and whitespace, strips '#', applies the
// rewrite table, drops excluded tags and removes case-insensitive
// duplicates, keeping first-seen order.
func (n *TagNormalizer) Normalize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	var out []string
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tag := cleanTag(f)
		if tag == "" {
			continue
		}
		key := n.fold.String(tag)
		if canonical, ok := n.rewrite[key]; ok {
			tag = canonical
			key = n.fold.String(tag)
		}
		if _, drop := n.exclude[key]; drop {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if first, ok := n.spelling[key]; ok {
			tag = first
		} else {
			n.spelling[key] = tag
		}
		out = append(out, tag)
	}
	return out
}

func cleanTag(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "#", ""))
}
