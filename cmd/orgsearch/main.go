package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"orgsearch/internal/app"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		listen     string
		token      string
		dbPath     string
		searxURL   string
		searxKey   string
		searxUA    string
		searchFile string
		readerURL  string
		readerKey  string
		cacheSize  int
		cacheTTL   time.Duration
		configPath string
		verbose    bool
	)

	flag.StringVar(&listen, "listen", ":8080", "HTTP listen address")
	flag.StringVar(&token, "token", os.Getenv("API_TOKEN"), "API token required in the X-Token header (empty disables auth)")
	flag.StringVar(&dbPath, "db", envOr("DB_PATH", "orgsearch.db"), "Path to the SQLite database file")
	flag.StringVar(&searxURL, "searx.url", os.Getenv("SEARX_URL"), "SearxNG base URL")
	flag.StringVar(&searxKey, "searx.key", os.Getenv("SEARX_KEY"), "SearxNG API key (optional)")
	flag.StringVar(&searxUA, "searx.ua", "orgsearch/1.0", "Custom User-Agent for outbound search requests")
	flag.StringVar(&searchFile, "search.file", os.Getenv("SEARCH_FILE"), "Path to JSON file for offline file-based search provider")
	flag.StringVar(&readerURL, "reader.url", os.Getenv("READER_URL"), "Reader API base URL for content extraction (empty uses local extraction)")
	flag.StringVar(&readerKey, "reader.key", os.Getenv("READER_KEY"), "Reader API key")
	flag.IntVar(&cacheSize, "cache.size", 0, "Max entries in the search result cache (0 uses default)")
	flag.DurationVar(&cacheTTL, "cache.ttl", 0, "TTL for cached search results (0 uses default)")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "Path to YAML or JSON config file")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := app.Config{
		Listen:         listen,
		APIToken:       token,
		DBPath:         dbPath,
		SearxURL:       searxURL,
		SearxKey:       searxKey,
		SearxUA:        searxUA,
		FileSearchPath: searchFile,
		ReaderBaseURL:  readerURL,
		ReaderAPIKey:   readerKey,
		CacheSize:      cacheSize,
		CacheTTL:       cacheTTL,
		Verbose:        verbose,
	}

	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Error().Err(err).Str("path", configPath).Msg("config file load failed")
			os.Exit(1)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	if err := app.ValidateConfig(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func run(cfg app.Config) error {
	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	srv := app.NewServer(a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
