// Package score computes relevance scores for search candidates. Two modes
// exist: the bounded organization/location mode used by the classification
// pipeline, and the legacy unbounded keyword mode used only for relative
// ranking in the plain keyword path.
package score

import (
	"strings"

	"orgsearch/internal/domain"
	"orgsearch/internal/search"
)

// URL substrings that indicate job boards or profile pages rather than an
// organization's own site. Each hit costs 0.3.
var penaltyTerms = []string{
	"linkedin.com",
	"indeed.com",
	"ziprecruiter.com",
	"jobs",
	"careers",
}

const (
	domainMatchBonus  = 0.6
	orgTLDBonus       = 0.2
	locationBonus     = 0.4
	penaltyPerHit     = 0.3
	whitelistBonus    = 0.5
	significantMinLen = 4 // words must be strictly longer than this
)

// SplitQuery splits a query of the conventional form
// "<Organization Name> - <Location>" on the first dash. The dash is a soft
// delimiter; without one the whole query is the organization name.
func SplitQuery(query string) (org, location string) {
	before, after, found := strings.Cut(query, "-")
	org = strings.ToLower(strings.TrimSpace(before))
	if found {
		location = strings.ToLower(strings.TrimSpace(after))
	}
	return org, location
}

// SignificantWords returns the organization words long enough to be
// meaningful for domain matching.
func SignificantWords(org string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(org)) {
		if len(w) > significantMinLen {
			out = append(out, w)
		}
	}
	return out
}

// Relevance computes the bounded [0,1] score for a candidate. Any internal
// failure yields 0.0; scoring never aborts the pipeline for one candidate.
func Relevance(query string, cand search.Candidate, whitelisted bool) (s float64) {
	defer func() {
		if recover() != nil {
			s = 0
		}
	}()

	rawURL := strings.ToLower(cand.URL)
	org, location := SplitQuery(query)

	base := domain.BaseDomain(rawURL)
	matched := false
	for _, w := range SignificantWords(org) {
		if strings.Contains(base, w) {
			matched = true
			break
		}
	}
	if matched {
		s += domainMatchBonus
		if strings.HasSuffix(base, ".org") {
			s += orgTLDBonus
		}
	}

	if location != "" {
		haystack := rawURL + " " + strings.ToLower(cand.Title)
		for _, loc := range strings.Split(location, ",") {
			if loc = strings.TrimSpace(loc); loc != "" && strings.Contains(haystack, loc) {
				s += locationBonus
				break
			}
		}
	}

	for _, term := range penaltyTerms {
		if strings.Contains(rawURL, term) {
			s -= penaltyPerHit
		}
	}

	if whitelisted {
		s += whitelistBonus
	}

	return clamp01(s)
}

// KeywordScore is the legacy unbounded mode: +2 per keyword found in the
// host, +1 per keyword found anywhere in the URL. Used purely for relative
// ranking within one call; no clamping.
func KeywordScore(keywords []string, rawURL string) int {
	lower := strings.ToLower(rawURL)
	host := strings.ToLower(domain.Host(lower))
	total := 0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(host, kw) {
			total += 2
		}
		if strings.Contains(lower, kw) {
			total++
		}
	}
	return total
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
