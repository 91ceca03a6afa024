package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSearchLog_UpsertAndFetch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	l := SearchLog{ProcessID: "p1", Query: "Example Health Center - Springfield, IL", Status: StatusStarted}
	if err := s.LogSearch(ctx, l); err != nil {
		t.Fatalf("log: %v", err)
	}
	l.Status = StatusCompleted
	l.TotalResults = 5
	l.Results = `[{"url":"https://examplehealth.org/"}]`
	if err := s.LogSearch(ctx, l); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetSearchLog(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted || got.TotalResults != 5 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Results != l.Results {
		t.Fatalf("results not persisted: %q", got.Results)
	}

	if _, err := s.GetSearchLog(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchLog_ParentChildren(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.LogSearch(ctx, SearchLog{ProcessID: "bulk1", Query: "BULK_SEARCH", Status: StatusProcessing}); err != nil {
		t.Fatalf("parent: %v", err)
	}
	for i, q := range []string{"alpha", "beta"} {
		l := SearchLog{ProcessID: "bulk1_q" + string(rune('1'+i)), ParentID: "bulk1", Query: q, Status: StatusCompleted}
		if err := s.LogSearch(ctx, l); err != nil {
			t.Fatalf("child: %v", err)
		}
	}

	children, err := s.GetChildLogs(ctx, "bulk1")
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 2 || children[0].Query != "alpha" {
		t.Fatalf("unexpected children: %+v", children)
	}

	// Child rows stay out of the top-level listing.
	logs, total, err := s.ListSearchLogs(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(logs) != 1 || logs[0].ProcessID != "bulk1" {
		t.Fatalf("unexpected listing: total=%d logs=%+v", total, logs)
	}
}

func TestListSearchLogs_Pagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.LogSearch(ctx, SearchLog{ProcessID: id, Query: "q " + id, Status: StatusCompleted}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	logs, total, err := s.ListSearchLogs(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d", total)
	}
	if len(logs) != 1 {
		t.Fatalf("page 2 should hold the remaining row, got %d", len(logs))
	}
}

func TestScrapeLogsAndPages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.LogScrape(ctx, ScrapeLog{ProcessID: "sc1", URL: "https://examplehealth.org/", Status: StatusCompleted}); err != nil {
		t.Fatalf("scrape log: %v", err)
	}
	logs, total, err := s.ListScrapeLogs(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(logs) != 1 || logs[0].URL != "https://examplehealth.org/" {
		t.Fatalf("unexpected scrape logs: %+v", logs)
	}

	p := Page{URL: "https://examplehealth.org/", Title: "Home", Content: "Welcome.", WordCount: 1, Method: "local_html"}
	if err := s.StorePage(ctx, p); err != nil {
		t.Fatalf("store page: %v", err)
	}
	p.Content = "Welcome back."
	if err := s.StorePage(ctx, p); err != nil {
		t.Fatalf("upsert page: %v", err)
	}
	got, err := s.GetPage(ctx, p.URL)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if got.Content != "Welcome back." {
		t.Fatalf("content = %q", got.Content)
	}
}

func TestLists_ReplaceRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if got, err := s.GetList(ctx, ListWhitelist); err != nil || len(got) != 0 {
		t.Fatalf("fresh list: %v %v", got, err)
	}
	if err := s.ReplaceList(ctx, ListWhitelist, []string{"a.org", "b.org", "", "a.org"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := s.GetList(ctx, ListWhitelist)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0] != "a.org" || got[1] != "b.org" {
		t.Fatalf("unexpected list: %v", got)
	}

	if err := s.ReplaceList(ctx, ListWhitelist, []string{"c.org"}); err != nil {
		t.Fatalf("replace again: %v", err)
	}
	got, _ = s.GetList(ctx, ListWhitelist)
	if len(got) != 1 || got[0] != "c.org" {
		t.Fatalf("replace should drop prior entries: %v", got)
	}

	// Kinds do not bleed into each other.
	if err := s.ReplaceList(ctx, ListBlacklist, []string{"bad.com"}); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	got, _ = s.GetList(ctx, ListWhitelist)
	if len(got) != 1 {
		t.Fatalf("whitelist affected by blacklist write: %v", got)
	}
}

func TestSettings_DefaultsAndUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("defaults not inserted: %+v", got)
	}

	got.ScrapeLimit = 5
	got.MinScoreThreshold = 0.4
	if err := s.UpdateSettings(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.ScrapeLimit != 5 || again.MinScoreThreshold != 0.4 {
		t.Fatalf("update lost: %+v", again)
	}

	bad := again
	bad.MinScoreThreshold = 1.5
	if err := s.UpdateSettings(ctx, bad); err == nil {
		t.Fatal("out-of-range threshold accepted")
	}
	bad = again
	bad.SearchRateLimit = 0
	if err := s.UpdateSettings(ctx, bad); err == nil {
		t.Fatal("zero rate limit accepted")
	}
}
