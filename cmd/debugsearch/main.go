// Command debugsearch runs the aggregation pipeline once from the command
// line and prints the scored results. Useful for tuning lists and inspecting
// provider behavior without the HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"orgsearch/internal/aggregate"
	"orgsearch/internal/search"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		query      string
		searxURL   string
		searxKey   string
		searchFile string
		whitelist  string
		blacklist  string
		limit      int
		verbose    bool
	)
	flag.StringVar(&query, "q", "", "Query, e.g. 'Example Health Center - Springfield, IL'")
	flag.StringVar(&searxURL, "searx.url", os.Getenv("SEARX_URL"), "SearxNG base URL")
	flag.StringVar(&searxKey, "searx.key", os.Getenv("SEARX_KEY"), "SearxNG API key (optional)")
	flag.StringVar(&searchFile, "search.file", os.Getenv("SEARCH_FILE"), "Path to JSON file for offline file-based search provider")
	flag.StringVar(&whitelist, "whitelist", "", "Comma-separated whitelist domains")
	flag.StringVar(&blacklist, "blacklist", "", "Comma-separated blacklist domains")
	flag.IntVar(&limit, "limit", 10, "Max results")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "usage: debugsearch -q 'Organization Name - City, ST' [flags]")
		os.Exit(2)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	var providers []search.Provider
	if searchFile != "" {
		providers = append(providers, &search.FileProvider{Path: searchFile})
	}
	if searxURL != "" {
		providers = append(providers, &search.SearxNG{
			BaseURL: searxURL, APIKey: searxKey, HTTPClient: httpClient,
		})
	}
	providers = append(providers, &search.DuckDuckGo{HTTPClient: httpClient})

	a := &aggregate.Aggregator{Providers: providers}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	results, err := a.Aggregate(ctx, aggregate.Request{
		Query:     query,
		Whitelist: splitList(whitelist),
		Blacklist: splitList(blacklist),
		Limit:     limit,
	})
	if err != nil {
		log.Error().Err(err).Msg("aggregate failed")
		os.Exit(1)
	}

	for i, r := range results {
		flags := ""
		if r.IsOfficial {
			flags += " [official]"
		}
		if r.WhitelistMatch {
			flags += " [whitelisted]"
		}
		fmt.Printf("%2d. %.2f %s%s\n    %s\n", i+1, r.Score, r.URL, flags, r.Title)
	}
	if len(results) == 0 {
		fmt.Println("no results")
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
