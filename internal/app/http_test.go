package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"orgsearch/internal/extract"
	"orgsearch/internal/store"
)

type stubExtractor struct {
	failFor map[string]bool
}

func (s *stubExtractor) Extract(_ context.Context, url string) extract.Extraction {
	if s.failFor[url] {
		return extract.Extraction{Status: "error", URL: url, Error: "unreachable"}
	}
	return extract.Extraction{
		Status:  "success",
		URL:     url,
		Content: "Extracted content.",
		Metadata: extract.Metadata{
			Title: "Stub", URL: url, WordCount: 2, SentenceCount: 1,
			ExtractionMethod: "local_html",
		},
	}
}

func newTestServer(t *testing.T, token string) (*Server, *App) {
	t.Helper()
	dir := t.TempDir()

	fixture := filepath.Join(dir, "results.json")
	results := `[
		{"url": "https://examplehealth.org/", "title": "Example Health Center"},
		{"url": "https://examplehealth.org/about", "title": "About"},
		{"url": "https://somewhere.com/", "title": "Somewhere"},
		{"url": "https://linkedin.com/company/example", "title": "Example on LinkedIn"}
	]`
	if err := os.WriteFile(fixture, []byte(results), 0o644); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	a, err := New(Config{
		Listen:         ":0",
		APIToken:       token,
		DBPath:         filepath.Join(dir, "test.db"),
		FileSearchPath: fixture,
		CacheSize:      16,
		CacheTTL:       time.Minute,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	a.Extractor = &stubExtractor{failFor: map[string]bool{}}
	return NewServer(a), a
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("X-Token", token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth_TokenRequired(t *testing.T) {
	s, _ := newTestServer(t, "secret")

	rec := doJSON(t, s.Handler(), http.MethodGet, "/whitelist", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing token: status %d", rec.Code)
	}
	rec = doJSON(t, s.Handler(), http.MethodGet, "/whitelist", "wrong", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong token: status %d", rec.Code)
	}
	rec = doJSON(t, s.Handler(), http.MethodGet, "/whitelist", "secret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status %d", rec.Code)
	}

	// Health stays open.
	rec = doJSON(t, s.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}
}

func TestListRoundtrip(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := doJSON(t, s.Handler(), http.MethodPost, "/whitelist", "",
		listPayload{URLs: []string{"ExampleHealth.org", "www.other.org", "examplehealth.org"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("post: status %d body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/whitelist", "", nil)
	var got listPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.URLs) != 3 {
		t.Fatalf("unexpected list: %v", got.URLs)
	}
}

func TestSettings_PartialUpdate(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := doJSON(t, s.Handler(), http.MethodGet, "/settings", "", nil)
	var got store.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != store.DefaultSettings() {
		t.Fatalf("defaults: %+v", got)
	}

	rec = doJSON(t, s.Handler(), http.MethodPost, "/settings", "",
		map[string]any{"scrape_limit": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, s.Handler(), http.MethodGet, "/settings", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ScrapeLimit != 1 {
		t.Fatalf("scrape limit = %d", got.ScrapeLimit)
	}
	if got.SearchResultsLimit != store.DefaultSettings().SearchResultsLimit {
		t.Fatalf("untouched field changed: %+v", got)
	}

	rec = doJSON(t, s.Handler(), http.MethodPost, "/settings", "",
		map[string]any{"min_score_threshold": 2.0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid threshold accepted: %d", rec.Code)
	}
}

func TestSearch_EndToEnd(t *testing.T) {
	s, a := newTestServer(t, "")

	rec := doJSON(t, s.Handler(), http.MethodPost, "/search", "",
		searchRequest{Query: "Example Health Center - Springfield, IL"})
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status %d body %s", rec.Code, rec.Body)
	}
	var resp SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ProcessID == "" || resp.Status != store.StatusCompleted {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.TotalResults == 0 {
		t.Fatal("no results")
	}
	if !resp.Results[0].IsOfficial || resp.Results[0].URL != "https://examplehealth.org/" {
		t.Fatalf("official site not ranked first: %+v", resp.Results[0])
	}
	if resp.ScrapedResults != 2 {
		t.Fatalf("scraped = %d, want the configured limit of 2", resp.ScrapedResults)
	}

	// Pages from the scrape pass got persisted.
	page, err := a.Store.GetPage(context.Background(), "https://examplehealth.org/")
	if err != nil {
		t.Fatalf("page not stored: %v", err)
	}
	if page.Content != "Extracted content." {
		t.Fatalf("page content = %q", page.Content)
	}

	// The run was journaled.
	rec = doJSON(t, s.Handler(), http.MethodGet, "/logs/"+resp.ProcessID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("log fetch: status %d", rec.Code)
	}

	rec = doJSON(t, s.Handler(), http.MethodPost, "/search", "", searchRequest{Query: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank query accepted: %d", rec.Code)
	}
}

func TestScrapeEndpoint(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := doJSON(t, s.Handler(), http.MethodPost, "/scrape", "",
		scrapeRequest{URL: "https://examplehealth.org/about"})
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape: status %d", rec.Code)
	}
	var ext extract.Extraction
	if err := json.Unmarshal(rec.Body.Bytes(), &ext); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ext.Status != "success" {
		t.Fatalf("extraction: %+v", ext)
	}

	rec = doJSON(t, s.Handler(), http.MethodPost, "/scrape", "",
		scrapeRequest{URL: "ftp://nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad scheme accepted: %d", rec.Code)
	}
}

func TestBulkSearch_Lifecycle(t *testing.T) {
	s, a := newTestServer(t, "")

	body := `{"queries":[{"query":"Example Health Center - Springfield, IL"},{"query":"Somewhere Org - Chicago, IL"}]}`
	req := httptest.NewRequest(http.MethodPost, "/bulk-search", strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("bulk start: status %d body %s", rr.Code, rr.Body)
	}
	var started map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id := started["process_id"]
	if id == "" {
		t.Fatal("no process id")
	}

	a.Batch.Wait()

	rec := doJSON(t, s.Handler(), http.MethodGet, "/bulk-search/"+id, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status fetch: %d", rec.Code)
	}
	var st struct {
		Status  string            `json:"status"`
		Queries []store.SearchLog `json:"queries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != store.StatusCompleted {
		t.Fatalf("parent status = %q", st.Status)
	}
	if len(st.Queries) != 2 {
		t.Fatalf("children = %d", len(st.Queries))
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/bulk-search/does-not-exist", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing id: status %d", rec.Code)
	}
}

func TestBulkSearchTemplate(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := doJSON(t, s.Handler(), http.MethodGet, "/bulk-search/template", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("template: status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "query,whitelist,blacklist") {
		t.Fatalf("unexpected template: %q", rec.Body.String())
	}
}

func TestBulkScrapeUpload(t *testing.T) {
	s, a := newTestServer(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "urls.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fmt.Fprint(fw, "url\nhttps://examplehealth.org/\nhttps://somewhere.com/\n")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/bulk-scrape/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload: status %d body %s", rec.Code, rec.Body)
	}

	a.Batch.Wait()

	_, total, err := a.Store.ListScrapeLogs(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("scrape logs: %v", err)
	}
	if total != 2 {
		t.Fatalf("scrape log rows = %d, want 2", total)
	}
}

func TestLogsListing(t *testing.T) {
	s, _ := newTestServer(t, "")

	for i := 0; i < 3; i++ {
		rec := doJSON(t, s.Handler(), http.MethodPost, "/search", "",
			searchRequest{Query: fmt.Sprintf("Query %d - Town", i)})
		if rec.Code != http.StatusOK {
			t.Fatalf("search %d: status %d", i, rec.Code)
		}
	}
	rec := doJSON(t, s.Handler(), http.MethodGet, "/logs?page=1&per_page=2", "", nil)
	var got struct {
		Logs  []store.SearchLog `json:"logs"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 3 || len(got.Logs) != 2 {
		t.Fatalf("total=%d page=%d", got.Total, len(got.Logs))
	}
}
