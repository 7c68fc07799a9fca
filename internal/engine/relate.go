package engine

import (
	"github.com/rcliao/memory-engine/internal/model"
)

// relate finds the entries e should link to. The first pass takes every
// entry sharing an entity (type and name) with e; the second takes entries
// sharing at least minShared distinct keywords. Candidates are kept in scan
// order and the result is cut at limit. There is no ranking.
func relate(e *model.Entry, table []*model.Entry, limit, minShared int) []string {
	if limit <= 0 {
		return nil
	}

	entities := make(map[string]bool, len(e.Metadata.Entities))
	for _, ent := range e.Metadata.Entities {
		entities[ent.Key()] = true
	}
	keywords := make(map[string]bool, len(e.Metadata.Keywords))
	for _, kw := range e.Metadata.Keywords {
		keywords[kw] = true
	}

	var related []string
	seen := make(map[string]bool)
	add := func(id string) {
		seen[id] = true
		related = append(related, id)
	}

	if len(entities) > 0 {
		for _, other := range table {
			if other.ID == e.ID {
				continue
			}
			for _, ent := range other.Metadata.Entities {
				if entities[ent.Key()] {
					add(other.ID)
					break
				}
			}
		}
	}

	if len(keywords) >= minShared {
		for _, other := range table {
			if other.ID == e.ID || seen[other.ID] {
				continue
			}
			if sharedKeywords(keywords, other.Metadata.Keywords) >= minShared {
				add(other.ID)
			}
		}
	}

	if len(related) > limit {
		related = related[:limit]
	}
	return related
}

func sharedKeywords(set map[string]bool, kws []string) int {
	n := 0
	counted := make(map[string]bool, len(kws))
	for _, kw := range kws {
		if set[kw] && !counted[kw] {
			counted[kw] = true
			n++
		}
	}
	return n
}
