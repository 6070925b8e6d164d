package feed

import (
	"sort"

	"drudge/models"

	"github.com/samber/lo"
)

// ZoneSequence is the display order of placement zones
var ZoneSequence = []string{"Headline", "topLeft", "column1", "column2", "column3"}

// OrderKey is the zone's index in ZoneSequence, or -1 when the zone is unknown.
// Unknown zones therefore sort ahead of "Headline".
func OrderKey(zone string) int {
	return lo.IndexOf(ZoneSequence, zone)
}

// Order returns a stably sorted copy of entries, compared by OrderKey only
func Order(entries []models.ArticleEntry) []models.ArticleEntry {
	ordered := make([]models.ArticleEntry, len(entries))
	copy(ordered, entries)

	sort.SliceStable(ordered, func(i, j int) bool {
		return OrderKey(ordered[i].PageLocation) < OrderKey(ordered[j].PageLocation)
	})

	return ordered
}
