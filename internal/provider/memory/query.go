package memory

import (
	"maps"
	"sort"
	"time"

	"github.com/tazhibayda/feed-service/internal/provider"
)

type record struct {
	data map[string]any
	seq  uint64
}

func matches(data map[string]any, filters []provider.Filter) bool {
	for _, f := range filters {
		if data[f.Field] != f.Value {
			return false
		}
	}
	return true
}

// less orders two field values. Documents missing the field sort first.
func less(a, b any) (lt bool, comparable bool) {
	if a != nil && b == nil {
		return false, true
	}
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Before(y), !x.Equal(y)
		}
	case string:
		if y, ok := b.(string); ok {
			return x < y, x != y
		}
	case int:
		if y, ok := b.(int); ok {
			return x < y, x != y
		}
	case int64:
		if y, ok := b.(int64); ok {
			return x < y, x != y
		}
	case float64:
		if y, ok := b.(float64); ok {
			return x < y, x != y
		}
	case nil:
		return b != nil, b != nil
	}
	return false, false
}

func run(col map[string]*record, q provider.Query) []provider.Document {
	type hit struct {
		id string
		r  *record
	}
	hits := make([]hit, 0, len(col))
	for id, r := range col {
		if matches(r.data, q.Filters) {
			hits = append(hits, hit{id, r})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if q.OrderBy != "" {
			lt, ok := less(a.r.data[q.OrderBy], b.r.data[q.OrderBy])
			if ok {
				if q.Descending {
					return !lt
				}
				return lt
			}
		}
		// insertion order breaks ties, in the same direction as the sort
		if q.Descending {
			return a.r.seq > b.r.seq
		}
		return a.r.seq < b.r.seq
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	out := make([]provider.Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, provider.Document{ID: h.id, Data: maps.Clone(h.r.data)})
	}
	return out
}
