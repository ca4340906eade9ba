// Package bookmatch resolves model-produced book names against the actual
// catalog. Model output rarely matches catalog names byte for byte, so after
// an exact-match short circuit the resolver falls back to Ratcliff-Obershelp
// similarity over lowercased names.
package bookmatch

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/kart-io/logger"
)

// DefaultThreshold is the minimum similarity ratio to accept a fuzzy match.
const DefaultThreshold = 0.6

// Matcher resolves free-form book names to catalog entries.
type Matcher struct {
	threshold float64
	metric    *metrics.SorensenDice
}

// New creates a matcher. A non-positive threshold uses DefaultThreshold.
func New(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{
		threshold: threshold,
		metric:    metrics.NewSorensenDice(),
	}
}

// Resolve maps name to the closest catalog entry. It returns the resolved
// name and true on a match, or "" and false when name is empty, the catalog
// is empty, or no candidate reaches the threshold. An exact catalog hit is
// returned without scoring. When several candidates tie, the first in
// catalog order wins.
func (m *Matcher) Resolve(name string, catalog []string) (string, bool) {
	if name == "" || len(catalog) == 0 {
		return "", false
	}

	for _, book := range catalog {
		if book == name {
			return book, true
		}
	}

	nameLower := strings.ToLower(name)
	var best string
	bestRatio := 0.0
	for _, book := range catalog {
		ratio := strutil.Similarity(nameLower, strings.ToLower(book), m.metric)
		if ratio > bestRatio {
			bestRatio = ratio
			best = book
		}
	}

	if bestRatio >= m.threshold {
		logger.Debugw("fuzzy matched book name",
			"name", name, "match", best, "similarity", bestRatio)
		return best, true
	}

	logger.Debugw("no book match above threshold",
		"name", name, "best_similarity", bestRatio, "threshold", m.threshold)
	return "", false
}
