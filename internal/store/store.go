// Package store persists operational state in SQLite: search and scrape
// process logs, scraped page content, the domain allow/deny lists, and the
// single settings row. The embedded driver keeps the binary self-contained;
// no external SQLite installation is needed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Process status values shared by search and scrape logs.
const (
	StatusStarted    = "started"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusError      = "error"
)

// List kinds for the lists table.
const (
	ListWhitelist = "whitelist"
	ListBlacklist = "blacklist"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("store: not found")

// SearchLog is one row of the search process journal. Bulk runs write a
// parent row plus one child row per query, linked by ParentID; the query
// progress counters are meaningful only on parent rows.
type SearchLog struct {
	ProcessID        string    `json:"process_id"`
	ParentID         string    `json:"parent_id,omitempty"`
	Query            string    `json:"query"`
	Status           string    `json:"status"`
	TotalResults     int       `json:"total_results"`
	ScrapedResults   int       `json:"scraped_results"`
	WhitelistMatches int       `json:"whitelist_matches"`
	TotalQueries     int       `json:"total_queries,omitempty"`
	CompletedQueries int       `json:"completed_queries,omitempty"`
	FailedQueries    int       `json:"failed_queries,omitempty"`
	Results          string    `json:"results,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ScrapeLog records one content-extraction attempt.
type ScrapeLog struct {
	ProcessID string    `json:"process_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Page is persisted extracted content.
type Page struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	WordCount int       `json:"word_count"`
	Method    string    `json:"method"`
	CreatedAt time.Time `json:"created_at"`
}

// Settings is the single runtime-tunable configuration row.
type Settings struct {
	MaxResultsPerQuery int     `json:"max_results_per_query"`
	SearchResultsLimit int     `json:"search_results_limit"`
	ScrapeLimit        int     `json:"scrape_limit"`
	MinScoreThreshold  float64 `json:"min_score_threshold"`
	ReaderRateLimit    int     `json:"reader_rate_limit"`
	SearchRateLimit    int     `json:"search_rate_limit"`
}

// DefaultSettings returns the values inserted on first open.
func DefaultSettings() Settings {
	return Settings{
		MaxResultsPerQuery: 10,
		SearchResultsLimit: 20,
		ScrapeLimit:        2,
		MinScoreThreshold:  0.2,
		ReaderRateLimit:    20,
		SearchRateLimit:    20,
	}
}

// Store wraps the SQLite handle. Safe for concurrent use; SQLite serializes
// writers internally and WAL keeps readers unblocked.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS search_logs (
			process_id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL DEFAULT '',
			query TEXT NOT NULL,
			status TEXT NOT NULL,
			total_results INTEGER NOT NULL DEFAULT 0,
			scraped_results INTEGER NOT NULL DEFAULT 0,
			whitelist_matches INTEGER NOT NULL DEFAULT 0,
			total_queries INTEGER NOT NULL DEFAULT 0,
			completed_queries INTEGER NOT NULL DEFAULT 0,
			failed_queries INTEGER NOT NULL DEFAULT 0,
			results TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_logs_parent ON search_logs(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_search_logs_created ON search_logs(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS scrape_logs (
			process_id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scrape_logs_created ON scrape_logs(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS scraped_pages (
			url TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			word_count INTEGER NOT NULL DEFAULT 0,
			method TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lists (
			kind TEXT NOT NULL,
			url TEXT NOT NULL,
			PRIMARY KEY (kind, url)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			max_results_per_query INTEGER NOT NULL,
			search_results_limit INTEGER NOT NULL,
			scrape_limit INTEGER NOT NULL,
			min_score_threshold REAL NOT NULL,
			reader_rate_limit INTEGER NOT NULL,
			search_rate_limit INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	d := DefaultSettings()
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO settings
		 (id, max_results_per_query, search_results_limit, scrape_limit, min_score_threshold, reader_rate_limit, search_rate_limit)
		 VALUES (1, ?, ?, ?, ?, ?, ?)`,
		d.MaxResultsPerQuery, d.SearchResultsLimit, d.ScrapeLimit, d.MinScoreThreshold, d.ReaderRateLimit, d.SearchRateLimit,
	)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// LogSearch inserts or replaces the journal row for l.ProcessID. Repeated
// calls with the same id act as progress updates.
func (s *Store) LogSearch(ctx context.Context, l SearchLog) error {
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_logs
		 (process_id, parent_id, query, status, total_results, scraped_results, whitelist_matches,
		  total_queries, completed_queries, failed_queries, results, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(process_id) DO UPDATE SET
		   status = excluded.status,
		   total_results = excluded.total_results,
		   scraped_results = excluded.scraped_results,
		   whitelist_matches = excluded.whitelist_matches,
		   total_queries = excluded.total_queries,
		   completed_queries = excluded.completed_queries,
		   failed_queries = excluded.failed_queries,
		   results = excluded.results,
		   error = excluded.error,
		   updated_at = excluded.updated_at`,
		l.ProcessID, l.ParentID, l.Query, l.Status,
		l.TotalResults, l.ScrapedResults, l.WhitelistMatches,
		l.TotalQueries, l.CompletedQueries, l.FailedQueries,
		l.Results, l.Error, formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("log search %s: %w", l.ProcessID, err)
	}
	return nil
}

// GetSearchLog fetches one journal row by process id.
func (s *Store) GetSearchLog(ctx context.Context, processID string) (SearchLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+searchLogColumns+` FROM search_logs WHERE process_id = ?`, processID)
	return scanSearchLog(row)
}

// GetChildLogs returns the per-query rows of a bulk run, oldest first.
func (s *Store) GetChildLogs(ctx context.Context, parentID string) ([]SearchLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+searchLogColumns+` FROM search_logs
		 WHERE parent_id = ? ORDER BY created_at ASC, process_id ASC`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SearchLog
	for rows.Next() {
		l, err := scanSearchLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListSearchLogs returns one page of top-level journal rows, newest first,
// plus the total top-level count.
func (s *Store) ListSearchLogs(ctx context.Context, page, perPage int) ([]SearchLog, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_logs WHERE parent_id = ''`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+searchLogColumns+` FROM search_logs WHERE parent_id = ''
		 ORDER BY created_at DESC, process_id DESC LIMIT ? OFFSET ?`,
		perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []SearchLog
	for rows.Next() {
		l, err := scanSearchLog(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

const searchLogColumns = `process_id, parent_id, query, status, total_results, scraped_results,
	whitelist_matches, total_queries, completed_queries, failed_queries, results, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSearchLog(r rowScanner) (SearchLog, error) {
	var l SearchLog
	var createdAt, updatedAt string
	err := r.Scan(&l.ProcessID, &l.ParentID, &l.Query, &l.Status,
		&l.TotalResults, &l.ScrapedResults, &l.WhitelistMatches,
		&l.TotalQueries, &l.CompletedQueries, &l.FailedQueries,
		&l.Results, &l.Error, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SearchLog{}, ErrNotFound
	}
	if err != nil {
		return SearchLog{}, err
	}
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return l, nil
}

// Timestamps are stored as RFC3339 text. The fallback layout keeps rows
// written by other SQLite tooling readable.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// LogScrape inserts or replaces a scrape journal row.
func (s *Store) LogScrape(ctx context.Context, l ScrapeLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_logs (process_id, parent_id, url, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(process_id) DO UPDATE SET
		   status = excluded.status, error = excluded.error`,
		l.ProcessID, l.ParentID, l.URL, l.Status, l.Error, formatTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("log scrape %s: %w", l.ProcessID, err)
	}
	return nil
}

// ListScrapeLogs returns one page of scrape rows, newest first, plus the
// total count.
func (s *Store) ListScrapeLogs(ctx context.Context, page, perPage int) ([]ScrapeLog, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scrape_logs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT process_id, parent_id, url, status, error, created_at
		 FROM scrape_logs ORDER BY created_at DESC, process_id DESC LIMIT ? OFFSET ?`,
		perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []ScrapeLog
	for rows.Next() {
		var l ScrapeLog
		var createdAt string
		if err := rows.Scan(&l.ProcessID, &l.ParentID, &l.URL, &l.Status, &l.Error, &createdAt); err != nil {
			return nil, 0, err
		}
		l.CreatedAt = parseTime(createdAt)
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// StorePage upserts extracted page content keyed by URL.
func (s *Store) StorePage(ctx context.Context, p Page) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scraped_pages (url, title, content, word_count, method, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		   title = excluded.title, content = excluded.content,
		   word_count = excluded.word_count, method = excluded.method,
		   created_at = excluded.created_at`,
		p.URL, p.Title, p.Content, p.WordCount, p.Method, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("store page %s: %w", p.URL, err)
	}
	return nil
}

// GetPage fetches stored content for a URL.
func (s *Store) GetPage(ctx context.Context, url string) (Page, error) {
	var p Page
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT url, title, content, word_count, method, created_at FROM scraped_pages WHERE url = ?`, url).
		Scan(&p.URL, &p.Title, &p.Content, &p.WordCount, &p.Method, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, err
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

// GetList returns the stored domains of one list kind, sorted by insertion.
func (s *Store) GetList(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM lists WHERE kind = ? ORDER BY rowid ASC`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ReplaceList atomically replaces the contents of one list kind.
func (s *Store) ReplaceList(ctx context.Context, kind string, urls []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE kind = ?`, kind); err != nil {
		return err
	}
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO lists (kind, url) VALUES (?, ?)`, kind, u); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetSettings returns the single settings row.
func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	var st Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT max_results_per_query, search_results_limit, scrape_limit, min_score_threshold, reader_rate_limit, search_rate_limit
		 FROM settings WHERE id = 1`).
		Scan(&st.MaxResultsPerQuery, &st.SearchResultsLimit, &st.ScrapeLimit,
			&st.MinScoreThreshold, &st.ReaderRateLimit, &st.SearchRateLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	return st, err
}

// UpdateSettings overwrites the settings row. Non-positive integer fields
// and out-of-range thresholds are rejected.
func (s *Store) UpdateSettings(ctx context.Context, st Settings) error {
	if st.MaxResultsPerQuery < 1 || st.SearchResultsLimit < 1 || st.ScrapeLimit < 0 {
		return errors.New("store: limits must be positive")
	}
	if st.MinScoreThreshold < 0 || st.MinScoreThreshold > 1 {
		return errors.New("store: min score threshold must be within [0, 1]")
	}
	if st.ReaderRateLimit < 1 || st.SearchRateLimit < 1 {
		return errors.New("store: rate limits must be positive")
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE settings SET
		   max_results_per_query = ?, search_results_limit = ?, scrape_limit = ?,
		   min_score_threshold = ?, reader_rate_limit = ?, search_rate_limit = ?
		 WHERE id = 1`,
		st.MaxResultsPerQuery, st.SearchResultsLimit, st.ScrapeLimit,
		st.MinScoreThreshold, st.ReaderRateLimit, st.SearchRateLimit)
	return err
}
