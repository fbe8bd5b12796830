package feed

import (
	"testing"
	"time"
)

func newTestFilterer(now time.Time) *Filterer {
	return &Filterer{now: func() time.Time { return now }}
}

func TestFilterer_Recency(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	filterer := newTestFilterer(now)

	items := []Item{
		{Title: "Old", Link: "https://example.com/old", PublishedAt: "2023-01-01T00:00:00Z"},
		{Title: "New", Link: "https://example.com/new", PublishedAt: "2024-05-01T00:00:00Z"},
		{Title: "Undated", Link: "https://example.com/undated"},
		{Title: "Garbage date", Link: "https://example.com/garbage", PublishedAt: "yesterday-ish"},
	}

	result := filterer.Run(items, &RunConfig{
		MinDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Patterns: []string{WildcardPattern},
	})

	if len(result) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(result))
	}
	for _, item := range result {
		if item.Title == "Old" {
			t.Error("Item older than min date should be dropped")
		}
	}
}

func TestFilterer_Relevance(t *testing.T) {
	filterer := newTestFilterer(time.Now())

	items := []Item{
		{Title: "Comunicado sobre Discernimentos", Link: "https://x/y"},
		{Title: "Weather Report", Link: "https://example.com/weather"},
		{Title: "DISCERNIMENTO", Link: "https://example.com/typo"},
	}

	result := filterer.Run(items, &RunConfig{Patterns: []string{"discernimentos"}})

	if len(result) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(result))
	}
	if result[0].Link != "https://x/y" || result[1].Link != "https://example.com/typo" {
		t.Errorf("Unexpected items %+v", result)
	}
}

func TestFilterer_WildcardKeepsEverything(t *testing.T) {
	filterer := newTestFilterer(time.Now())

	items := []Item{
		{Title: "Anything", Link: "https://example.com/a"},
		{Title: "Else", Link: "https://example.com/b"},
	}

	result := filterer.Run(items, &RunConfig{Patterns: []string{"foo", " * "}})
	if len(result) != 2 {
		t.Errorf("Expected 2 items, got %d", len(result))
	}
}
