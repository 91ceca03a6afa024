package search

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

const ddgFixture = `<html><body>
<div class="result">
  <a class="result__a" href="https://examplehealth.org/">Example Health</a>
  <div class="result__snippet">Official site of Example Health.</div>
</div>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fother.com%2Fpage">Other</a>
  <div class="result__snippet">A wrapped redirect link.</div>
</div>
<div class="result">
  <a class="result__a" href="">empty</a>
</div>
</body></html>`

func TestDuckDuckGo_Search_ParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("kl") == "" {
			t.Errorf("missing region parameter")
		}
		io.WriteString(w, ddgFixture)
	}))
	defer srv.Close()

	d := &DuckDuckGo{BaseURL: srv.URL, HTTPClient: srv.Client()}
	got, err := d.Search(context.Background(), "Example Health, Springfield", 10)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].URL != "https://examplehealth.org/" {
		t.Fatalf("unexpected first url: %q", got[0].URL)
	}
	if got[0].Snippet != "Official site of Example Health." {
		t.Fatalf("unexpected snippet: %q", got[0].Snippet)
	}
	// Redirect links are unwrapped to their target.
	if got[1].URL != "https://other.com/page" {
		t.Fatalf("redirect not unwrapped: %q", got[1].URL)
	}
}

func TestDuckDuckGo_Search_TriesNextRegion(t *testing.T) {
	var regions []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		regions = append(regions, r.URL.Query().Get("kl"))
		if len(regions) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, ddgFixture)
	}))
	defer srv.Close()

	d := &DuckDuckGo{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Regions:    []string{"us-en", "wt-wt"},
		Backoff:    time.Millisecond,
	}
	got, err := d.Search(context.Background(), "query", 10)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected results from the second region")
	}
	if len(regions) != 2 || regions[0] != "us-en" || regions[1] != "wt-wt" {
		t.Fatalf("unexpected region order: %v", regions)
	}
}

func TestResolveDDGLink(t *testing.T) {
	enc := url.QueryEscape("https://target.example/page?x=1")
	if got := resolveDDGLink("//duckduckgo.com/l/?uddg=" + enc); got != "https://target.example/page?x=1" {
		t.Fatalf("unwrapped = %q", got)
	}
	if got := resolveDDGLink("https://plain.example/"); got != "https://plain.example/" {
		t.Fatalf("plain link changed: %q", got)
	}
	if got := resolveDDGLink("//duckduckgo.com/l/?other=x"); got != "" {
		t.Fatalf("expected empty for missing uddg, got %q", got)
	}
}
