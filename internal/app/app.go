// Package app wires the pipeline into a long-running HTTP service: store,
// provider chain, aggregator, extractor, cache, and batch processor, plus
// the route handlers in http.go.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"orgsearch/internal/aggregate"
	"orgsearch/internal/batch"
	"orgsearch/internal/cache"
	"orgsearch/internal/domain"
	"orgsearch/internal/extract"
	"orgsearch/internal/ratelimit"
	"orgsearch/internal/search"
	"orgsearch/internal/store"
)

// App owns every long-lived component of the service.
type App struct {
	Cfg        Config
	Store      *store.Store
	Aggregator *aggregate.Aggregator
	Extractor  extract.Extractor
	Batch      *batch.Processor

	cache     *cache.Cache[[]aggregate.ScoredResult]
	pageCache *cache.Cache[extract.Extraction]
}

// New opens the store and assembles the component graph from cfg and the
// persisted settings.
func New(cfg Config) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	settings, err := st.GetSettings(context.Background())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	var providers []search.Provider
	if cfg.FileSearchPath != "" {
		providers = append(providers, &search.FileProvider{Path: cfg.FileSearchPath})
	}
	if cfg.SearxURL != "" {
		providers = append(providers, &search.SearxNG{
			BaseURL:    cfg.SearxURL,
			APIKey:     cfg.SearxKey,
			HTTPClient: httpClient,
			UserAgent:  cfg.SearxUA,
		})
	}
	providers = append(providers, &search.DuckDuckGo{
		HTTPClient: httpClient,
		UserAgent:  cfg.SearxUA,
		Backoff:    cfg.DuckDuckGoBackoff,
	})

	agg := &aggregate.Aggregator{
		Providers: providers,
		Limiter:   ratelimit.New(settings.SearchRateLimit, time.Minute),
	}

	var extractor extract.Extractor
	readerLimiter := ratelimit.New(settings.ReaderRateLimit, time.Minute)
	if cfg.ReaderBaseURL != "" {
		extractor = &extract.ReaderClient{
			BaseURL:    cfg.ReaderBaseURL,
			APIKey:     cfg.ReaderAPIKey,
			HTTPClient: httpClient,
			Limiter:    readerLimiter,
		}
	} else {
		extractor = &extract.LocalExtractor{
			HTTPClient: httpClient,
			Limiter:    readerLimiter,
		}
	}

	a := &App{
		Cfg:        cfg,
		Store:      st,
		Aggregator: agg,
		Extractor:  extractor,
		cache:      cache.New[[]aggregate.ScoredResult](cfg.CacheSize, cfg.CacheTTL),
		pageCache:  cache.New[extract.Extraction](cfg.CacheSize, cfg.CacheTTL),
	}
	a.Batch = &batch.Processor{Store: st, Runner: a, Scraper: a}
	return a, nil
}

// Close releases resources. In-flight bulk jobs are drained first.
func (a *App) Close() error {
	a.Batch.Wait()
	return a.Store.Close()
}

// SearchResponse is the outcome of one search, as journaled and returned
// over HTTP.
type SearchResponse struct {
	ProcessID        string                   `json:"process_id"`
	Query            string                   `json:"query"`
	Status           string                   `json:"status"`
	Results          []aggregate.ScoredResult `json:"results"`
	TotalResults     int                      `json:"total_results"`
	ScrapedResults   int                      `json:"scraped_results"`
	WhitelistMatches int                      `json:"whitelist_matches"`
}

// queryOutcome is the unjournaled result of one pipeline run.
type queryOutcome struct {
	Results          []aggregate.ScoredResult
	ScrapedResults   int
	WhitelistMatches int
}

// executeQuery runs aggregation and scraping for one query without touching
// the journal. The retrieval stage is bounded by SearchResultsLimit; the
// final result set is capped at MaxResultsPerQuery.
func (a *App) executeQuery(ctx context.Context, query string, whitelist, blacklist []string) (queryOutcome, error) {
	settings, err := a.Store.GetSettings(ctx)
	if err != nil {
		return queryOutcome{}, err
	}
	whitelist, blacklist, err = a.effectiveLists(ctx, whitelist, blacklist)
	if err != nil {
		return queryOutcome{}, err
	}

	results, err := a.aggregateCached(ctx, aggregate.Request{
		Query:     query,
		Whitelist: whitelist,
		Blacklist: blacklist,
		Limit:     settings.SearchResultsLimit,
		MinScore:  settings.MinScoreThreshold,
	})
	if err != nil {
		return queryOutcome{}, err
	}
	if len(results) > settings.MaxResultsPerQuery {
		results = results[:settings.MaxResultsPerQuery]
	}

	out := queryOutcome{Results: results}
	for _, r := range results {
		if out.ScrapedResults >= settings.ScrapeLimit {
			break
		}
		if _, scrapeErr := a.ScrapePage(ctx, r.URL); scrapeErr != nil {
			log.Warn().Err(scrapeErr).Str("url", r.URL).Msg("search: scrape skipped")
			continue
		}
		out.ScrapedResults++
	}
	for _, r := range results {
		if r.WhitelistMatch {
			out.WhitelistMatches++
		}
	}
	return out, nil
}

// RunSearch executes the pipeline for one standalone query and journals the
// run under a fresh process id. Bulk runs go through RunQuery instead, which
// leaves journaling to the batch processor's parent/child rows.
func (a *App) RunSearch(ctx context.Context, query string, whitelist, blacklist []string) (SearchResponse, error) {
	processID := uuid.NewString()
	if err := a.Store.LogSearch(ctx, store.SearchLog{
		ProcessID: processID, Query: query, Status: store.StatusStarted,
	}); err != nil {
		return SearchResponse{}, err
	}

	out, err := a.executeQuery(ctx, query, whitelist, blacklist)
	if err != nil {
		a.journalFailure(ctx, processID, query, err)
		return SearchResponse{}, err
	}

	resp := SearchResponse{
		ProcessID:        processID,
		Query:            query,
		Status:           store.StatusCompleted,
		Results:          out.Results,
		TotalResults:     len(out.Results),
		ScrapedResults:   out.ScrapedResults,
		WhitelistMatches: out.WhitelistMatches,
	}
	raw, _ := json.Marshal(out.Results)
	if err := a.Store.LogSearch(ctx, store.SearchLog{
		ProcessID:        processID,
		Query:            query,
		Status:           store.StatusCompleted,
		TotalResults:     resp.TotalResults,
		ScrapedResults:   resp.ScrapedResults,
		WhitelistMatches: resp.WhitelistMatches,
		Results:          string(raw),
	}); err != nil {
		log.Error().Err(err).Str("process_id", processID).Msg("search: journal write failed")
	}
	return resp, nil
}

// RunQuery adapts the pipeline to the batch runner contract. It does not
// journal; the batch processor owns the parent and child rows.
func (a *App) RunQuery(ctx context.Context, query string, whitelist, blacklist []string) (batch.QueryResult, error) {
	out, err := a.executeQuery(ctx, query, whitelist, blacklist)
	if err != nil {
		return batch.QueryResult{}, err
	}
	raw, _ := json.Marshal(out.Results)
	return batch.QueryResult{
		Results:          raw,
		TotalResults:     len(out.Results),
		ScrapedResults:   out.ScrapedResults,
		WhitelistMatches: out.WhitelistMatches,
	}, nil
}

// ScrapePage extracts one URL and persists the content. Repeated scrapes of
// the same URL within the cache TTL reuse the prior extraction. Returns the
// stored word count.
func (a *App) ScrapePage(ctx context.Context, url string) (int, error) {
	ext, hit := a.pageCache.Get(url)
	if !hit {
		ext = a.Extractor.Extract(ctx, url)
		if ext.Status == "success" {
			a.pageCache.Set(url, ext)
		}
	}
	if ext.Status != "success" {
		return 0, fmt.Errorf("extract %s: %s", url, ext.Error)
	}
	err := a.Store.StorePage(ctx, store.Page{
		URL:       url,
		Title:     ext.Metadata.Title,
		Content:   ext.Content,
		WordCount: ext.Metadata.WordCount,
		Method:    ext.Metadata.ExtractionMethod,
	})
	if err != nil {
		return 0, err
	}
	return ext.Metadata.WordCount, nil
}

// aggregateCached serves repeated identical queries from the bounded cache.
func (a *App) aggregateCached(ctx context.Context, req aggregate.Request) ([]aggregate.ScoredResult, error) {
	key := cacheKey(req)
	if hit, ok := a.cache.Get(key); ok {
		log.Debug().Str("query", req.Query).Msg("search: cache hit")
		out := make([]aggregate.ScoredResult, len(hit))
		copy(out, hit)
		return out, nil
	}
	results, err := a.Aggregator.Aggregate(ctx, req)
	if err != nil {
		return nil, err
	}
	a.cache.Set(key, results)
	return results, nil
}

func cacheKey(req aggregate.Request) string {
	wl := append([]string(nil), req.Whitelist...)
	bl := append([]string(nil), req.Blacklist...)
	sort.Strings(wl)
	sort.Strings(bl)
	return fmt.Sprintf("%s|%d|%s|%s", strings.ToLower(req.Query), req.Limit,
		strings.Join(wl, ","), strings.Join(bl, ","))
}

// effectiveLists merges request-supplied lists with the stored ones. The
// stored lists act as a baseline that per-request lists extend.
func (a *App) effectiveLists(ctx context.Context, whitelist, blacklist []string) ([]string, []string, error) {
	storedWL, err := a.Store.GetList(ctx, store.ListWhitelist)
	if err != nil {
		return nil, nil, err
	}
	storedBL, err := a.Store.GetList(ctx, store.ListBlacklist)
	if err != nil {
		return nil, nil, err
	}
	return mergeLists(storedWL, whitelist), mergeLists(storedBL, blacklist), nil
}

func mergeLists(base, extra []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(base)+len(extra))
	for _, l := range [][]string{base, extra} {
		for _, s := range l {
			s = domain.Normalize(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func (a *App) journalFailure(ctx context.Context, processID, query string, cause error) {
	if err := a.Store.LogSearch(ctx, store.SearchLog{
		ProcessID: processID, Query: query,
		Status: store.StatusFailed, Error: cause.Error(),
	}); err != nil {
		log.Error().Err(err).Str("process_id", processID).Msg("search: journal write failed")
	}
}
