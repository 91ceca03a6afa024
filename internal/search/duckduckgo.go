package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DuckDuckGo implements Provider against the DuckDuckGo HTML endpoint.
// It is the fallback provider: no API key, but stricter rate limits, so it
// retries across an ordered region list with a uniform backoff instead of
// per-region ad-hoc sleep loops.
type DuckDuckGo struct {
	BaseURL    string // defaults to the public HTML endpoint
	HTTPClient *http.Client
	UserAgent  string
	// Regions tried in order until one yields results. Empty means the
	// default list.
	Regions []string
	// Backoff between region attempts. Zero means 2s.
	Backoff time.Duration
}

const ddgDefaultBase = "https://html.duckduckgo.com/html/"

var ddgDefaultRegions = []string{"us-en", "wt-wt", "uk-en"}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 10
	}
	// DuckDuckGo copes better with commas replaced by spaces.
	query = strings.TrimSpace(strings.ReplaceAll(query, ",", " "))

	regions := d.Regions
	if len(regions) == 0 {
		regions = ddgDefaultRegions
	}
	backoff := d.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var lastErr error
	for i, region := range regions {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		out, err := d.searchRegion(ctx, query, region, limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (d *DuckDuckGo) searchRegion(ctx context.Context, query, region string, limit int) ([]Candidate, error) {
	base := d.BaseURL
	if base == "" {
		base = ddgDefaultBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("kl", region)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}
	hc := d.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("duckduckgo rate limited (region %s)", region)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("duckduckgo status: %d", resp.StatusCode)
	}

	node, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}
	raw := parseDDGResults(node)
	out := make([]Candidate, 0, len(raw))
	for _, r := range raw {
		c, ok := Coerce(r, d.Name())
		if !ok {
			continue
		}
		out = append(out, c)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// parseDDGResults walks the HTML results page collecting result__a anchors
// and their sibling result__snippet text.
func parseDDGResults(root *html.Node) []Candidate {
	var out []Candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			href := attr(n, "href")
			if u := resolveDDGLink(href); u != "" {
				out = append(out, Candidate{URL: u, Title: textContent(n)})
			}
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") && len(out) > 0 {
			if out[len(out)-1].Snippet == "" {
				out[len(out)-1].Snippet = strings.TrimSpace(textContent(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// resolveDDGLink unwraps DuckDuckGo's redirect links (/l/?uddg=<encoded>)
// to the target URL. Plain links pass through.
func resolveDDGLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return ""
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
