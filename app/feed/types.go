package feed

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Item is one entry taken from a feed. Nothing identifies it within a run
// except its Link.
type Item struct {
	Title       string
	Link        string
	PublishedAt string // raw value from the feed, may be empty or unparseable
	Summary     string
}

// PublishedTime parses the raw date, falling back to now when it is missing
// or unparseable.
func (i Item) PublishedTime(now time.Time) time.Time {
	raw := strings.TrimSpace(i.PublishedAt)
	if raw == "" {
		return now
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil || t.IsZero() {
		return now
	}
	return t
}

const (
	WildcardPattern = "*"

	MinBatchSize      = 1
	MaxBatchSize      = 10
	MinMaxConcurrency = 1
	MaxMaxConcurrency = 10

	DefaultBatchSize      = 5
	DefaultMaxConcurrency = 3
)

// RunConfig is re-read at the start of every pipeline run.
type RunConfig struct {
	MinDate        time.Time `yaml:"min_date"`
	Patterns       []string  `yaml:"patterns"`
	FeedURLs       []string  `yaml:"feeds"`
	BatchSize      int       `yaml:"batch_size"`
	MaxConcurrency int       `yaml:"max_concurrency"`

	// Keywords make the content validator accept a page regardless of length.
	Keywords []string `yaml:"keywords"`

	Notify NotifyConfig `yaml:"notify"`
}

type NotifyConfig struct {
	Recipients    []string `yaml:"recipients"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

// Clamp bounds batch size and concurrency to [1,10], substituting defaults
// for unset values.
func (rc *RunConfig) Clamp() {
	if rc.BatchSize == 0 {
		rc.BatchSize = DefaultBatchSize
	}
	if rc.MaxConcurrency == 0 {
		rc.MaxConcurrency = DefaultMaxConcurrency
	}
	rc.BatchSize = min(max(rc.BatchSize, MinBatchSize), MaxBatchSize)
	rc.MaxConcurrency = min(max(rc.MaxConcurrency, MinMaxConcurrency), MaxMaxConcurrency)
}
