// Package aggregate orchestrates the search pipeline: retrieve candidates
// from the provider chain, dedupe by domain, apply allow/deny filtering,
// classify (official site / whitelisted / other), score, sort, and truncate.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"orgsearch/internal/domain"
	"orgsearch/internal/official"
	"orgsearch/internal/ratelimit"
	"orgsearch/internal/score"
	"orgsearch/internal/search"
)

const (
	defaultLimit         = 10
	defaultFallbackFloor = 3
	defaultOfficialExtra = 2
)

// ScoredResult is a candidate enriched with classification and score.
type ScoredResult struct {
	search.Candidate
	Score          float64 `json:"score"`
	IsOfficial     bool    `json:"is_official"`
	WhitelistMatch bool    `json:"whitelist_match"`
}

// SkipReason records why a single candidate was dropped. Candidate-local
// problems never abort the pipeline; they accumulate here for observability.
type SkipReason struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Request carries the inputs of one aggregation call. The list slices are
// snapshotted at call start; later external mutation does not affect an
// in-flight call.
type Request struct {
	Query     string
	Whitelist []string
	Blacklist []string
	Limit     int
	MinScore  float64
}

// Aggregator runs the pipeline over an ordered provider chain. The first
// provider is primary; later ones are queried only when the accumulated
// result count stays under FallbackFloor.
type Aggregator struct {
	Providers []search.Provider
	Limiter   *ratelimit.Limiter

	// FallbackFloor is the result count under which the next provider is
	// also queried. Zero means 3.
	FallbackFloor int
	// OfficialExtra caps extra same-domain pages kept alongside the
	// official site. Zero means 2.
	OfficialExtra int
}

// Aggregate runs the full classification pipeline for one query and returns
// an ordered, capped result set. It fails only when every provider failed;
// individual bad candidates are skipped, never fatal.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) ([]ScoredResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	whitelist := append([]string(nil), req.Whitelist...)
	blacklist := append([]string(nil), req.Blacklist...)

	candidates, err := a.retrieve(ctx, req.Query, limit*2)
	if err != nil {
		return nil, err
	}

	org, _ := score.SplitQuery(req.Query)
	significant := score.SignificantWords(org)

	officialExtra := a.OfficialExtra
	if officialExtra <= 0 {
		officialExtra = defaultOfficialExtra
	}

	seen := map[string]struct{}{}
	officialDomain := ""
	extrasKept := 0
	var officialPages []ScoredResult
	var others []ScoredResult
	var skips []SkipReason

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			// All-or-nothing: no partial result set on cancellation.
			return nil, err
		}
		base := domain.BaseDomain(cand.URL)
		if base == "" {
			skips = append(skips, SkipReason{URL: cand.URL, Reason: "unparseable domain"})
			continue
		}
		if domain.MatchesAny(cand.URL, blacklist) {
			skips = append(skips, SkipReason{URL: cand.URL, Reason: "blacklisted"})
			continue
		}
		if _, dup := seen[base]; dup {
			if officialDomain != "" && base == officialDomain && extrasKept < officialExtra {
				extrasKept++
				officialPages = append(officialPages, ScoredResult{Candidate: cand})
				continue
			}
			skips = append(skips, SkipReason{URL: cand.URL, Reason: "duplicate domain"})
			continue
		}
		seen[base] = struct{}{}

		if officialDomain == "" && official.IsOfficial(base, org, significant) {
			officialDomain = base
			officialPages = append(officialPages, ScoredResult{Candidate: cand, IsOfficial: true})
			continue
		}
		others = append(others, ScoredResult{
			Candidate:      cand,
			WhitelistMatch: domain.MatchesAny(cand.URL, whitelist),
		})
	}

	for i := range officialPages {
		officialPages[i].Score = score.Relevance(req.Query, officialPages[i].Candidate, false)
	}
	for i := range others {
		others[i].Score = score.Relevance(req.Query, others[i].Candidate, others[i].WhitelistMatch)
	}

	sort.SliceStable(others, func(i, j int) bool {
		if others[i].WhitelistMatch != others[j].WhitelistMatch {
			return others[i].WhitelistMatch
		}
		return others[i].Score > others[j].Score
	})

	anyWhitelisted := false
	for _, r := range others {
		if r.WhitelistMatch {
			anyWhitelisted = true
			break
		}
	}
	// With a whitelist engaged and at least one official or whitelisted
	// candidate, only those fill the result set. With nothing matching at
	// all, fall back to score order rather than returning an empty set.
	restrict := len(whitelist) > 0 && (anyWhitelisted || len(officialPages) > 0)

	out := officialPages
	for _, r := range others {
		if len(out) >= limit {
			break
		}
		if restrict && !r.WhitelistMatch {
			continue
		}
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}

	if len(skips) > 0 {
		log.Debug().Str("query", req.Query).Int("skipped", len(skips)).Msg("aggregate: dropped candidates")
		for _, s := range skips {
			log.Debug().Str("url", s.URL).Str("reason", s.Reason).Msg("aggregate: skip")
		}
	}
	return out, nil
}

// KeywordSearch is the legacy plain-keyword path, kept for parity with bulk
// callers that have no organization/location context. It ranks by the
// unbounded keyword score, applies the lists and minScore, and falls back
// to unfiltered top results when nothing passes the filters.
func (a *Aggregator) KeywordSearch(ctx context.Context, req Request) ([]ScoredResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	candidates, err := a.retrieve(ctx, req.Query, limit*2)
	if err != nil {
		return nil, err
	}

	keywords := strings.Fields(strings.ToLower(req.Query))
	var out []ScoredResult
	for _, cand := range candidates {
		if !domain.Allowed(cand.URL, req.Whitelist, req.Blacklist) {
			continue
		}
		s := float64(score.KeywordScore(keywords, cand.URL))
		if s < req.MinScore {
			continue
		}
		out = append(out, ScoredResult{
			Candidate:      cand,
			Score:          s,
			WhitelistMatch: len(req.Whitelist) > 0 && domain.MatchesAny(cand.URL, req.Whitelist),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if len(out) == 0 && len(candidates) > 0 {
		log.Info().Str("query", req.Query).Msg("keyword search: no results passed filters, returning unfiltered")
		for _, cand := range candidates {
			if len(out) >= limit {
				break
			}
			out = append(out, ScoredResult{Candidate: cand})
		}
		return out, nil
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// retrieve queries the provider chain and merges the raw candidate groups.
// A failing provider yields an empty contribution; only total exhaustion of
// the chain is an error.
func (a *Aggregator) retrieve(ctx context.Context, query string, want int) ([]search.Candidate, error) {
	if len(a.Providers) == 0 {
		return nil, errors.New("no search providers configured")
	}
	floor := a.FallbackFloor
	if floor <= 0 {
		floor = defaultFallbackFloor
	}
	q := search.Sanitize(query)
	if q == "" {
		q = strings.TrimSpace(query)
	}

	var groups [][]search.Candidate
	total := 0
	failures := 0
	for i, p := range a.Providers {
		if i > 0 && total >= floor {
			break
		}
		if err := a.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		res, err := p.Search(ctx, q, want)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			log.Warn().Err(err).Str("provider", p.Name()).Msg("search provider unavailable")
			continue
		}
		groups = append(groups, res)
		total += len(res)
	}
	if failures == len(a.Providers) {
		return nil, fmt.Errorf("%w (%d tried)", search.ErrAllProvidersFailed, failures)
	}
	return MergeAndNormalize(groups), nil
}

// MergeAndNormalize merges candidate groups from multiple providers,
// canonicalizes URLs, trims obvious tracking parameters, and de-duplicates
// exact URLs. First seen wins, preserving provider-return order.
func MergeAndNormalize(groups [][]search.Candidate) []search.Candidate {
	seen := map[string]struct{}{}
	out := make([]search.Candidate, 0, 64)
	for _, g := range groups {
		for _, c := range g {
			if c.URL == "" {
				continue
			}
			u, err := url.Parse(c.URL)
			if err != nil {
				continue
			}
			normalizeURL(u)
			key := u.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			c.URL = key
			out = append(out, c)
		}
	}
	return out
}

func normalizeURL(u *url.URL) {
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	q := u.Query()
	// Remove common tracking params
	for _, p := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
}
