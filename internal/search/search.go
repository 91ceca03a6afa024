package search

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// Candidate is a single raw result tuple returned by a search provider.
// URL is the only required field; Title falls back to the URL and Snippet
// to the empty string at the provider boundary.
type Candidate struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Provider is the uniform interface over external search backends.
// Implementations return an empty slice, not an error, when a query simply
// has no results; an error means the provider is unavailable for this call.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
	Name() string
}

// ErrAllProvidersFailed is returned when every configured provider failed
// for one aggregation call.
var ErrAllProvidersFailed = errors.New("all search providers failed")

const maxQueryLen = 150

// Sanitize strips a query down to letters, digits, spaces and dashes,
// collapses whitespace runs, and caps the length.
func Sanitize(query string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range query {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	s := strings.TrimSpace(b.String())
	if len(s) > maxQueryLen {
		s = strings.TrimSpace(s[:maxQueryLen])
	}
	return s
}

// Coerce validates a raw candidate at the provider boundary. Malformed
// entries are rejected here rather than deep in scoring logic.
func Coerce(c Candidate, source string) (Candidate, bool) {
	c.URL = strings.TrimSpace(c.URL)
	if c.URL == "" || len(c.URL) > 2000 {
		return Candidate{}, false
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		return Candidate{}, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Candidate{}, false
	}
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		c.Title = c.URL
	}
	c.Snippet = strings.TrimSpace(c.Snippet)
	if c.Source == "" {
		c.Source = source
	}
	return c, true
}
