package feed

import (
	"log/slog"
	"time"
)

type Filterer struct {
	now func() time.Time
}

func NewFilterer() *Filterer {
	return &Filterer{now: time.Now}
}

// Run keeps items published on or after MinDate whose title matches one of
// the patterns. Items with missing or unparseable dates count as published
// now and therefore pass the recency check. A wildcard pattern set skips
// relevance filtering entirely.
func (f *Filterer) Run(items []Item, runConfig *RunConfig) []Item {
	now := f.now()
	matcher := NewMatcher(runConfig.Patterns)

	filtered := make([]Item, 0, len(items))
	stale, irrelevant := 0, 0
	for _, item := range items {
		if !runConfig.MinDate.IsZero() && item.PublishedTime(now).Before(runConfig.MinDate) {
			stale++
			continue
		}

		if !matcher.MatchAll() {
			pattern, ok := matcher.Match(item.Title)
			if !ok {
				irrelevant++
				continue
			}
			slog.Debug("Item matched pattern", "title", item.Title, "pattern", pattern)
		}

		filtered = append(filtered, item)
	}

	slog.Debug("Items filtered",
		"total", len(items),
		"kept", len(filtered),
		"stale", stale,
		"irrelevant", irrelevant)

	return filtered
}
