// Package batch runs bulk search and bulk scrape jobs in the background.
// Each job writes a parent journal row up front, processes its items
// sequentially in a goroutine, upserts progress after every item, and
// finishes by marking the parent completed or failed. Callers poll the
// journal for status; nothing blocks on job completion.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"orgsearch/internal/store"
)

// Parent-row query markers. The journal stores these in place of a query
// string so listings can tell bulk runs from single searches.
const (
	bulkSearchMarker = "BULK_SEARCH"
	bulkScrapeMarker = "BULK_SCRAPE"
)

// QueryResult is what a single query inside a bulk run produced.
type QueryResult struct {
	Results          json.RawMessage
	TotalResults     int
	ScrapedResults   int
	WhitelistMatches int
}

// Runner executes one search query. The app layer implements this on top of
// the aggregation pipeline.
type Runner interface {
	RunQuery(ctx context.Context, query string, whitelist, blacklist []string) (QueryResult, error)
}

// Scraper extracts and persists one page. Returns the word count of the
// stored content.
type Scraper interface {
	ScrapePage(ctx context.Context, url string) (int, error)
}

// Item is one unit of a bulk search request. Per-item lists override the
// request-level ones when present.
type Item struct {
	Query     string   `json:"query"`
	Whitelist []string `json:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`
}

// Processor owns background job execution. Jobs survive the HTTP request
// that started them but not process restarts; an interrupted job stays in
// its last journal state.
type Processor struct {
	Store   *store.Store
	Runner  Runner
	Scraper Scraper

	// Base is the parent context for background jobs. Nil means Background.
	Base context.Context

	wg sync.WaitGroup
}

func (p *Processor) base() context.Context {
	if p.Base != nil {
		return p.Base
	}
	return context.Background()
}

// Wait blocks until all in-flight jobs finish. Used on shutdown and in
// tests.
func (p *Processor) Wait() { p.wg.Wait() }

// StartSearch journals a parent row and launches the bulk search job.
// It returns the parent process id immediately.
func (p *Processor) StartSearch(ctx context.Context, items []Item, whitelist, blacklist []string) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("no queries to process")
	}
	parentID := uuid.NewString()
	err := p.Store.LogSearch(ctx, store.SearchLog{
		ProcessID: parentID,
		Query:     bulkSearchMarker,
		Status:    store.StatusStarted,
	})
	if err != nil {
		return "", err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runSearch(p.base(), parentID, items, whitelist, blacklist)
	}()
	return parentID, nil
}

func (p *Processor) runSearch(ctx context.Context, parentID string, items []Item, whitelist, blacklist []string) {
	started := time.Now()
	completed, failed := 0, 0
	totals := QueryResult{}

	for i, item := range items {
		childID := fmt.Sprintf("%s_q%d", parentID, i+1)
		query := strings.TrimSpace(item.Query)
		if query == "" {
			failed++
			p.journalChild(ctx, childID, parentID, item.Query, store.SearchLog{
				Status: store.StatusFailed, Error: "empty query",
			})
			continue
		}

		wl := item.Whitelist
		if len(wl) == 0 {
			wl = whitelist
		}
		bl := item.Blacklist
		if len(bl) == 0 {
			bl = blacklist
		}

		p.journalChild(ctx, childID, parentID, query, store.SearchLog{Status: store.StatusProcessing})
		res, err := p.Runner.RunQuery(ctx, query, wl, bl)
		if err != nil {
			failed++
			p.journalChild(ctx, childID, parentID, query, store.SearchLog{
				Status: store.StatusFailed, Error: err.Error(),
			})
			log.Warn().Err(err).Str("process_id", childID).Str("query", query).Msg("bulk search: query failed")
		} else {
			completed++
			totals.TotalResults += res.TotalResults
			totals.ScrapedResults += res.ScrapedResults
			totals.WhitelistMatches += res.WhitelistMatches
			p.journalChild(ctx, childID, parentID, query, store.SearchLog{
				Status:           store.StatusCompleted,
				TotalResults:     res.TotalResults,
				ScrapedResults:   res.ScrapedResults,
				WhitelistMatches: res.WhitelistMatches,
				Results:          string(res.Results),
			})
		}

		p.journalParent(ctx, parentID, bulkSearchMarker, store.SearchLog{
			Status:           store.StatusProcessing,
			TotalResults:     totals.TotalResults,
			ScrapedResults:   totals.ScrapedResults,
			WhitelistMatches: totals.WhitelistMatches,
			TotalQueries:     len(items),
			CompletedQueries: completed,
			FailedQueries:    failed,
		})
		if ctx.Err() != nil {
			break
		}
	}

	final := store.StatusCompleted
	var errMsg string
	if failed == len(items) {
		final = store.StatusFailed
		errMsg = "all queries failed"
	}
	p.journalParent(ctx, parentID, bulkSearchMarker, store.SearchLog{
		Status:           final,
		TotalResults:     totals.TotalResults,
		ScrapedResults:   totals.ScrapedResults,
		WhitelistMatches: totals.WhitelistMatches,
		TotalQueries:     len(items),
		CompletedQueries: completed,
		FailedQueries:    failed,
		Error:            errMsg,
	})
	log.Info().Str("process_id", parentID).
		Int("queries", len(items)).Int("completed", completed).Int("failed", failed).
		Dur("elapsed", time.Since(started)).Msg("bulk search finished")
}

// StartScrape journals a parent row and launches the bulk scrape job.
func (p *Processor) StartScrape(ctx context.Context, urls []string) (string, error) {
	urls = dedupeNonEmpty(urls)
	if len(urls) == 0 {
		return "", fmt.Errorf("no urls to scrape")
	}
	parentID := uuid.NewString()
	err := p.Store.LogSearch(ctx, store.SearchLog{
		ProcessID: parentID,
		Query:     bulkScrapeMarker,
		Status:    store.StatusStarted,
	})
	if err != nil {
		return "", err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runScrape(p.base(), parentID, urls)
	}()
	return parentID, nil
}

func (p *Processor) runScrape(ctx context.Context, parentID string, urls []string) {
	scraped, failed := 0, 0
	for i, u := range urls {
		childID := fmt.Sprintf("%s_u%d", parentID, i+1)
		_, err := p.Scraper.ScrapePage(ctx, u)
		status := store.StatusCompleted
		errMsg := ""
		if err != nil {
			failed++
			status = store.StatusFailed
			errMsg = err.Error()
			log.Warn().Err(err).Str("url", u).Msg("bulk scrape: page failed")
		} else {
			scraped++
		}
		if logErr := p.Store.LogScrape(ctx, store.ScrapeLog{
			ProcessID: childID,
			ParentID:  parentID,
			URL:       u,
			Status:    status,
			Error:     errMsg,
		}); logErr != nil {
			log.Error().Err(logErr).Str("url", u).Msg("bulk scrape: journal write failed")
		}

		p.journalParent(ctx, parentID, bulkScrapeMarker, store.SearchLog{
			Status:           store.StatusProcessing,
			TotalResults:     len(urls),
			ScrapedResults:   scraped,
			TotalQueries:     len(urls),
			CompletedQueries: scraped,
			FailedQueries:    failed,
		})
		if ctx.Err() != nil {
			break
		}
	}

	final := store.StatusCompleted
	var errMsg string
	if failed == len(urls) {
		final = store.StatusFailed
		errMsg = "all pages failed"
	}
	p.journalParent(ctx, parentID, bulkScrapeMarker, store.SearchLog{
		Status:           final,
		TotalResults:     len(urls),
		ScrapedResults:   scraped,
		TotalQueries:     len(urls),
		CompletedQueries: scraped,
		FailedQueries:    failed,
		Error:            errMsg,
	})
}

// Status describes a bulk run: the parent row plus its per-query children.
type Status struct {
	store.SearchLog
	Queries []store.SearchLog `json:"queries,omitempty"`
}

// GetStatus fetches the journal state of a bulk run.
func (p *Processor) GetStatus(ctx context.Context, processID string) (Status, error) {
	parent, err := p.Store.GetSearchLog(ctx, processID)
	if err != nil {
		return Status{}, err
	}
	children, err := p.Store.GetChildLogs(ctx, processID)
	if err != nil {
		return Status{}, err
	}
	return Status{SearchLog: parent, Queries: children}, nil
}

func (p *Processor) journalChild(ctx context.Context, id, parentID, query string, l store.SearchLog) {
	l.ProcessID = id
	l.ParentID = parentID
	l.Query = query
	if err := p.Store.LogSearch(ctx, l); err != nil {
		log.Error().Err(err).Str("process_id", id).Msg("bulk: journal write failed")
	}
}

func (p *Processor) journalParent(ctx context.Context, id, marker string, l store.SearchLog) {
	l.ProcessID = id
	l.Query = marker
	if err := p.Store.LogSearch(ctx, l); err != nil {
		log.Error().Err(err).Str("process_id", id).Msg("bulk: journal write failed")
	}
}

func dedupeNonEmpty(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
