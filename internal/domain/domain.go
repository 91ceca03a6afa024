package domain

import (
	"net/url"
	"strings"
)

// Normalize lower-cases a host and strips a single leading "www." label.
func Normalize(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}

// Host extracts the host from a full URL, or returns the input itself when
// it already looks like a bare host. Returns "" for unparseable input.
func Host(urlOrDomain string) string {
	s := strings.TrimSpace(urlOrDomain)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Hostname() == "" {
			return ""
		}
		return u.Hostname()
	}
	// Bare host, possibly with a path, query, or port attached.
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if h, _, ok := strings.Cut(s, ":"); ok && h != "" {
		s = h
	}
	return s
}

// BaseDomain returns the registrable domain (second-level label plus TLD)
// of a URL or bare host, lower-cased and www-stripped. Empty string on
// unparseable input.
func BaseDomain(urlOrDomain string) string {
	h := Normalize(Host(urlOrDomain))
	if h == "" {
		return ""
	}
	parts := strings.Split(h, ".")
	if len(parts) <= 2 {
		return h
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// Matches reports whether a URL or host matches a domain pattern,
// subdomains included. The check is symmetric so that a bare registrable
// domain on either side matches the other side's subdomains.
func Matches(urlOrDomain, pattern string) bool {
	host := Normalize(Host(urlOrDomain))
	pat := Normalize(Host(pattern))
	if host == "" || pat == "" {
		return false
	}
	if host == pat {
		return true
	}
	if strings.HasSuffix(host, "."+pat) {
		return true
	}
	return strings.HasSuffix(pat, "."+host)
}

// MatchesAny reports whether the URL or host matches any of the patterns.
func MatchesAny(urlOrDomain string, patterns []string) bool {
	for _, p := range patterns {
		if Matches(urlOrDomain, p) {
			return true
		}
	}
	return false
}

// Allowed applies allow/deny list rules to a URL. The blacklist is
// authoritative; an empty whitelist admits everything.
func Allowed(rawURL string, whitelist, blacklist []string) bool {
	if strings.TrimSpace(rawURL) == "" {
		return false
	}
	if MatchesAny(rawURL, blacklist) {
		return false
	}
	if len(whitelist) == 0 {
		return true
	}
	return MatchesAny(rawURL, whitelist)
}
