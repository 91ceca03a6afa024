// Package extract turns result URLs into page content. The primary path is
// a hosted reader API; a local HTML extractor serves as the fallback when no
// reader is configured. Extraction failures are reported in-band: Extract
// never panics and the pipeline treats an error status as a per-URL outcome,
// not a fatal condition.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"orgsearch/internal/ratelimit"
)

// Metadata describes an extracted page.
type Metadata struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	URL              string `json:"url"`
	WordCount        int    `json:"word_count"`
	SentenceCount    int    `json:"sentence_count"`
	Language         string `json:"language,omitempty"`
	Author           string `json:"author,omitempty"`
	PublishedDate    string `json:"published_date,omitempty"`
	ExtractionMethod string `json:"extraction_method"`
}

// Extraction is the outcome of one extraction attempt.
type Extraction struct {
	Status   string   `json:"status"` // "success" or "error"
	URL      string   `json:"url"`
	Content  string   `json:"content,omitempty"`
	Error    string   `json:"error,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// Extractor is the content-extraction collaborator invoked by the caller
// after aggregation.
type Extractor interface {
	Extract(ctx context.Context, url string) Extraction
}

// ReaderClient calls a Jina-style reader API: GET <base>/<encoded-url>
// returning a JSON envelope with the page content and metadata.
type ReaderClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter
}

type readerEnvelope struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   *struct {
		Content       string `json:"content"`
		Title         string `json:"title"`
		Description   string `json:"description"`
		Language      string `json:"language"`
		Author        string `json:"author"`
		PublishedDate string `json:"published_date"`
	} `json:"data"`
}

func (c *ReaderClient) Extract(ctx context.Context, rawURL string) Extraction {
	fail := func(msg string) Extraction {
		return Extraction{Status: "error", URL: rawURL, Error: msg}
	}
	if c.BaseURL == "" {
		return fail("reader base URL not configured")
	}
	if err := c.Limiter.Wait(ctx); err != nil {
		return fail(err.Error())
	}

	api := strings.TrimRight(c.BaseURL, "/") + "/" + url.QueryEscape(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
	if err != nil {
		return fail(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fail(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Sprintf("reader API returned status code %d", resp.StatusCode))
	}

	var env readerEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fail(fmt.Sprintf("decode reader response: %v", err))
	}
	if env.Code != http.StatusOK {
		msg := env.Status
		if msg == "" {
			msg = "unknown error"
		}
		return fail(fmt.Sprintf("reader API error: %s", msg))
	}
	if env.Data == nil {
		return fail("unexpected reader response format")
	}

	content := env.Data.Content
	return Extraction{
		Status:  "success",
		URL:     rawURL,
		Content: content,
		Metadata: Metadata{
			Title:            env.Data.Title,
			Description:      env.Data.Description,
			URL:              rawURL,
			WordCount:        wordCount(content),
			SentenceCount:    sentenceCount(content),
			Language:         env.Data.Language,
			Author:           env.Data.Author,
			PublishedDate:    env.Data.PublishedDate,
			ExtractionMethod: "reader_api",
		},
	}
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func sentenceCount(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return strings.Count(s, ".") + 1
}
