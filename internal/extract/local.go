package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"orgsearch/internal/ratelimit"
)

const (
	localUserAgent = "orgsearch/1.0 (+https://orgsearch.invalid)"
	localBodyLimit = 4 << 20
	localRetries   = 2
)

// LocalExtractor fetches pages directly and strips them down to text with
// FromHTML. It is the extractor of last resort when no reader API is
// configured.
type LocalExtractor struct {
	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter
}

func (e *LocalExtractor) Extract(ctx context.Context, rawURL string) Extraction {
	fail := func(msg string) Extraction {
		return Extraction{Status: "error", URL: rawURL, Error: msg}
	}
	if err := e.Limiter.Wait(ctx); err != nil {
		return fail(err.Error())
	}
	body, err := e.fetch(ctx, rawURL)
	if err != nil {
		return fail(err.Error())
	}
	title, text := FromHTML(body)
	return Extraction{
		Status:  "success",
		URL:     rawURL,
		Content: text,
		Metadata: Metadata{
			Title:            title,
			URL:              rawURL,
			WordCount:        wordCount(text),
			SentenceCount:    sentenceCount(text),
			ExtractionMethod: "local_html",
		},
	}
}

// fetch retries transient upstream failures with a short linear backoff.
func (e *LocalExtractor) fetch(ctx context.Context, rawURL string) (string, error) {
	hc := e.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	var lastErr error
	for attempt := 0; attempt <= localRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", localUserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		resp, err := hc.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
		}
		ct := resp.Header.Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") {
			resp.Body.Close()
			return "", fmt.Errorf("fetch %s: unsupported content type %q", rawURL, ct)
		}
		b, err := io.ReadAll(io.LimitReader(resp.Body, localBodyLimit))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return string(b), nil
	}
	return "", lastErr
}
