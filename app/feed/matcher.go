package feed

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// SimilarityThreshold is exclusive: a title matches a pattern when their
// similarity is strictly greater.
const SimilarityThreshold = 0.7

// Normalize folds case, composes to NFC and collapses whitespace.
func Normalize(s string) string {
	s = norm.NFC.String(cases.Fold().String(s))
	return strings.Join(strings.Fields(s), " ")
}

// EditDistance is the Levenshtein distance over runes.
func EditDistance(a, b string) int {
	return EditDistanceCapped(a, b, -1)
}

// EditDistanceCapped stops as soon as every cell in the current row exceeds
// limit and returns limit+1. A negative limit disables the cutoff.
func EditDistanceCapped(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return capped(len(ra), limit)
	}
	if limit >= 0 && len(ra)-len(rb) > limit {
		return limit + 1
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, curr[j])
		}
		if limit >= 0 && rowMin > limit {
			return limit + 1
		}
		prev, curr = curr, prev
	}

	return capped(prev[len(rb)], limit)
}

func capped(d, limit int) int {
	if limit >= 0 && d > limit {
		return limit + 1
	}
	return d
}

// Similarity is 1 - distance/maxLen, 1.0 for two empty strings.
func Similarity(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(EditDistance(a, b))/float64(longest)
}

// Matches reports whether pattern is a substring of title or similar enough
// to it. Both are expected to be normalized.
func Matches(title, pattern string) bool {
	if pattern == "" {
		return false
	}
	if strings.Contains(title, pattern) {
		return true
	}

	longest := max(len([]rune(title)), len([]rune(pattern)))
	// A match needs distance < 0.3*longest, so anything above the ceiling
	// is a miss whatever its exact value.
	limit := int(math.Ceil((1 - SimilarityThreshold) * float64(longest)))
	d := EditDistanceCapped(title, pattern, limit)
	return 1.0-float64(d)/float64(longest) > SimilarityThreshold
}

// Matcher holds a normalized pattern set.
type Matcher struct {
	patterns []string
	all      bool
}

func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == WildcardPattern {
			m.all = true
			continue
		}
		if p = Normalize(p); p != "" {
			m.patterns = append(m.patterns, p)
		}
	}
	return m
}

// MatchAll reports whether relevance filtering is disabled.
func (m *Matcher) MatchAll() bool {
	return m.all
}

// Match returns the first pattern the title matches.
func (m *Matcher) Match(title string) (string, bool) {
	if m.all {
		return WildcardPattern, true
	}
	normalized := Normalize(title)
	for _, p := range m.patterns {
		if Matches(normalized, p) {
			return p, true
		}
	}
	return "", false
}
