package library

import (
	"sort"

	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// DefaultMaxEntries caps each collection
const DefaultMaxEntries = 5

// Merge combines the local snapshot with the server list into one
// collection of at most max entries, newest first, with unique IDs.
//
// For every remote entry the local copy wins when one exists, matched by ID
// or, failing that, by non-empty title, since server entries may not share
// the client's ID scheme. Local copies can carry cached audio the server
// list omits. Local entries the server does not know are appended. Sorting
// happens after the local-wins pass and truncation last, so the newest
// entries survive whichever side they came from.
func Merge(local, remote []types.LibraryEntry, max int) []types.LibraryEntry {
	if max <= 0 {
		max = DefaultMaxEntries
	}

	byID := make(map[string]int, len(local))
	byTitle := make(map[string]int, len(local))
	for i, e := range local {
		if e.ID != "" {
			if _, ok := byID[e.ID]; !ok {
				byID[e.ID] = i
			}
		}
		if e.Title != "" {
			if _, ok := byTitle[e.Title]; !ok {
				byTitle[e.Title] = i
			}
		}
	}

	used := make([]bool, len(local))
	seen := make(map[string]bool, len(local)+len(remote))
	merged := make([]types.LibraryEntry, 0, len(local)+len(remote))

	add := func(e types.LibraryEntry) {
		if e.ID != "" {
			if seen[e.ID] {
				return
			}
			seen[e.ID] = true
		}
		merged = append(merged, e)
	}

	for _, re := range remote {
		if re.ID != "" && seen[re.ID] {
			continue
		}
		pick := re
		if i, ok := byID[re.ID]; ok && re.ID != "" {
			pick = local[i]
			used[i] = true
		} else if i, ok := byTitle[re.Title]; ok && re.Title != "" && !used[i] {
			pick = local[i]
			used[i] = true
		}
		add(pick)
	}

	for i, le := range local {
		if used[i] {
			continue
		}
		add(le)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date)
	})

	if len(merged) > max {
		merged = merged[:max]
	}
	return merged
}
