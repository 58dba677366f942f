package inmemdb

import (
	"sort"
	"strings"
	"time"

	"github.com/trezcool/academia/core"
)

func containsFold(lowerSearch string, values ...string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), lowerSearch) {
			return true
		}
	}
	return false
}

// timeKey formats t so that keys sort like times.
func timeKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000")
}

// sortBy sorts items on the given orderings, by the default key (empty field) when there are none.
func sortBy[T any](items []T, ordering []core.DBOrdering, key func(item T, field string) string) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Ascending: true}}
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			ki, kj := key(items[i], ord.Field), key(items[j], ord.Field)
			if ki == kj {
				continue
			}
			if ord.Ascending {
				return ki < kj
			}
			return ki > kj
		}
		return false
	})
}
