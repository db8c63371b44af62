// Package tagindex maps hashtags to the events carrying them and derives the
// frequency tables used to rank tags in the filter panel.
package tagindex

import (
	"slices"
	"sort"

	"eventmap/internal/model"
)

// IDSet is an ascending, duplicate-free list of event ids.
type IDSet []int

// Contains reports whether id is in the set.
func (s IDSet) Contains(id int) bool {
	i := sort.SearchInts(s, id)
	return i < len(s) && s[i] == id
}

// Intersect returns the ids present in both sets.
func Intersect(a, b IDSet) IDSet {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	out := make(IDSet, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// Union returns the ids present in any of the sets.
func Union(sets ...IDSet) IDSet {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	if n == 0 {
		return nil
	}
	out := make(IDSet, 0, n)
	for _, s := range sets {
		out = append(out, s...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Index maps a tag to the ids of the events carrying it.
type Index map[string]IDSet

// Build indexes events in one pass. The result is only valid for this exact
// event slice; rebuild it whenever the candidate set changes.
func Build(events []*model.Event) Index {
	ix := make(Index)
	unsorted := make(map[string]bool)
	for _, ev := range events {
		for _, tag := range ev.Hashtags {
			ids := ix[tag]
			if n := len(ids); n > 0 && ids[n-1] >= ev.ID {
				unsorted[tag] = true
			}
			ix[tag] = append(ids, ev.ID)
		}
	}
	for tag := range unsorted {
		ids := ix[tag]
		slices.Sort(ids)
		ix[tag] = slices.Compact(ids)
	}
	return ix
}

// Lookup returns the ids carrying tag, or nil.
func (ix Index) Lookup(tag string) IDSet {
	return ix[tag]
}

// Tags returns the indexed tags in sorted order.
func (ix Index) Tags() []string {
	tags := make([]string, 0, len(ix))
	for tag := range ix {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Frequencies counts, per tag, the distinct known locations among events
// carrying it. A venue running fifty instances of one series counts once.
func Frequencies(events []*model.Event) map[string]int {
	seen := make(map[string]map[model.LocationKey]struct{})
	for _, ev := range events {
		if !ev.LocationKey.Known() {
			continue
		}
		for _, tag := range ev.Hashtags {
			set, ok := seen[tag]
			if !ok {
				set = make(map[model.LocationKey]struct{})
				seen[tag] = set
			}
			set[ev.LocationKey] = struct{}{}
		}
	}

	freq := make(map[string]int, len(seen))
	for tag, set := range seen {
		freq[tag] = len(set)
	}
	return freq
}
