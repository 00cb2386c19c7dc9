// Package filter narrows a batch of papers before ranking: a cheap keyword
// match first, then a per-paper relevance verdict from a language model.
package filter

import (
	"strings"

	"github.com/hoanghai1803/paperfeed/internal/models"
)

// Keywords matches papers whose title or abstract contains any keyword.
// Matching is case-sensitive substring search.
type Keywords []string

// Match reports whether p mentions any keyword.
func (k Keywords) Match(p models.Paper) bool {
	for _, kw := range k {
		if kw == "" {
			continue
		}
		if strings.Contains(p.Title, kw) || strings.Contains(p.Abstract, kw) {
			return true
		}
	}
	return false
}

// Filter returns the matching papers in input order.
func (k Keywords) Filter(papers []models.Paper) []models.Paper {
	var kept []models.Paper
	for _, p := range papers {
		if k.Match(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
