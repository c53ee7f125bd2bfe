package analysis

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultCategory is returned when no category keyword matches the call.
const DefaultCategory = "other"

// Categorizer assigns a call category by counting configured keywords in the
// transcript. The category with the most keyword hits wins; equal scores
// resolve to the lexicographically smaller category name so the result does
// not depend on map iteration order.
type Categorizer struct {
	logger     *logrus.Entry
	categories map[string][]string
}

// NewCategorizer creates a categorizer over category -> keyword lists.
func NewCategorizer(logger *logrus.Logger, categories map[string][]string) *Categorizer {
	normalized := make(map[string][]string, len(categories))
	for category, keywords := range categories {
		lowered := make([]string, len(keywords))
		for i, kw := range keywords {
			lowered[i] = strings.ToLower(kw)
		}
		normalized[category] = lowered
	}

	return &Categorizer{
		logger:     logger.WithField("component", "categorizer"),
		categories: normalized,
	}
}

// Categorize scores every category against the transcript words and returns
// the best match, or DefaultCategory when nothing matches.
func (c *Categorizer) Categorize(text string) string {
	if len(c.categories) == 0 {
		return DefaultCategory
	}

	keywordSets := make(map[string]map[string]bool, len(c.categories))
	for category, keywords := range c.categories {
		set := make(map[string]bool, len(keywords))
		for _, kw := range keywords {
			set[kw] = true
		}
		keywordSets[category] = set
	}

	scores := make(map[string]int, len(c.categories))
	for _, word := range strings.Fields(strings.ToLower(text)) {
		for category, set := range keywordSets {
			if set[normalizeWord(word)] {
				scores[category]++
			}
		}
	}

	names := make([]string, 0, len(scores))
	for category := range scores {
		names = append(names, category)
	}
	sort.Strings(names)

	best := DefaultCategory
	bestScore := 0
	for _, category := range names {
		if scores[category] > bestScore {
			best = category
			bestScore = scores[category]
		}
	}

	c.logger.WithFields(logrus.Fields{
		"category": best,
		"score":    bestScore,
	}).Info("Call categorized")

	return best
}
