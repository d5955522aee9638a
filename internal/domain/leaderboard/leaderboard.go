// Package leaderboard ranks aggregated totals.
package leaderboard

import (
	"sort"

	"github.com/okian/pitchboard/internal/domain/model"
)

// Totals is the read side of aggregated per-startup sums.
type Totals interface {
	Keys() []string
	Total(startupID string) float64
}

// Build ranks totals by descending value. Equal totals keep their input
// order. Ranks are 1-based positions; names missing from the lookup render
// as model.UnknownStartupName.
func Build(totals Totals, names map[string]string) []model.Entry {
	keys := totals.Keys()
	entries := make([]model.Entry, 0, len(keys))
	for _, id := range keys {
		name, ok := names[id]
		if !ok {
			name = model.UnknownStartupName
		}
		entries = append(entries, model.Entry{StartupID: id, Name: name, Total: totals.Total(id)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Total > entries[j].Total
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Result wraps a ranked leaderboard into the persisted result shape.
func Result(metric model.Metric, entries []model.Entry) model.Result {
	if entries == nil {
		entries = []model.Entry{}
	}
	return model.Result{
		Title:       metric.Title(),
		Metric:      metric,
		Leaderboard: entries,
	}
}
