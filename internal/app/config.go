package app

import "time"

// Config is the resolved runtime configuration. Precedence: flags override
// environment, environment overrides the config file, the file overrides
// built-in defaults.
type Config struct {
	// Listen is the HTTP bind address, e.g. ":8080".
	Listen string
	// APIToken guards mutating endpoints via the X-Token header. Empty
	// disables auth.
	APIToken string
	// DBPath locates the SQLite database file.
	DBPath string

	// SearxURL is the base URL of a SearxNG instance used as the primary
	// provider. Empty skips it.
	SearxURL string
	SearxKey string
	SearxUA  string

	// FileSearchPath points at a JSON results file used as an offline
	// provider, mainly for tests and air-gapped runs.
	FileSearchPath string

	// ReaderBaseURL selects the hosted reader API for content extraction.
	// Empty falls back to direct local extraction.
	ReaderBaseURL string
	ReaderAPIKey  string

	// DuckDuckGoBackoff is the pause between region retries.
	DuckDuckGoBackoff time.Duration

	// CacheSize and CacheTTL bound the in-memory search result cache.
	CacheSize int
	CacheTTL  time.Duration

	Verbose      bool
	DebugVerbose bool
}
