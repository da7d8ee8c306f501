package catalog

import (
	"sort"
	"strings"
)

// SearchOptions filters and bounds a Manager.Search call.
type SearchOptions struct {
	// Sources limits the search to these source names ("" for local). If
	// empty, every registered source is searched.
	Sources []string
	// Tags requires at least one matching tag.
	Tags []string
	// MinRelevance drops results scoring below this threshold (0.0-1.0).
	MinRelevance float64
	// MaxResults caps the number of results returned, 0 for unbounded.
	MaxResults int
}

// ComputeKeywordRelevance scores result against query by weighted substring
// matches on name (weight 3) and description (weight 2), adapted from
// runtime/registry's ComputeKeywordRelevance.
func ComputeKeywordRelevance(query string, result SearchResult) float64 {
	if query == "" {
		return 0
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}

	var score, max float64
	name := strings.ToLower(result.Name)
	desc := strings.ToLower(result.Description)
	for _, term := range terms {
		max += 3
		if strings.Contains(name, term) {
			score += 3
		}
		max += 2
		if strings.Contains(desc, term) {
			score += 2
		}
	}
	for _, tag := range result.Tags {
		tagLower := strings.ToLower(tag)
		for _, term := range terms {
			max++
			if strings.Contains(tagLower, term) {
				score++
			}
		}
	}
	if max == 0 {
		return 0
	}
	return score / max
}

// filterAndRank applies opts' Tags/MinRelevance filters, sorts by
// descending relevance, and truncates to MaxResults.
func filterAndRank(results []SearchResult, opts SearchOptions) []SearchResult {
	filtered := results[:0:0]
	for _, r := range results {
		if opts.MinRelevance > 0 && r.RelevanceScore < opts.MinRelevance {
			continue
		}
		if len(opts.Tags) > 0 && !hasMatchingTag(r.Tags, opts.Tags) {
			continue
		}
		filtered = append(filtered, r)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].RelevanceScore > filtered[j].RelevanceScore
	})
	if opts.MaxResults > 0 && len(filtered) > opts.MaxResults {
		filtered = filtered[:opts.MaxResults]
	}
	return filtered
}

func hasMatchingTag(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
