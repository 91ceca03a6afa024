package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the single-file configuration schema. Nested sections map
// naturally to flags and environment variables.
type FileConfig struct {
	Listen string `yaml:"listen" json:"listen"`
	Token  string `yaml:"token" json:"token"`
	DB     string `yaml:"db" json:"db"`

	Searx struct {
		URL string `yaml:"url" json:"url"`
		Key string `yaml:"key" json:"key"`
		UA  string `yaml:"ua" json:"ua"`
	} `yaml:"searx" json:"searx"`

	Search struct {
		File string `yaml:"file" json:"file"`
	} `yaml:"search" json:"search"`

	Reader struct {
		URL string `yaml:"url" json:"url"`
		Key string `yaml:"key" json:"key"`
	} `yaml:"reader" json:"reader"`

	Cache struct {
		Size int           `yaml:"size" json:"size"`
		TTL  time.Duration `yaml:"ttl" json:"ttl"`
	} `yaml:"cache" json:"cache"`

	Verbose      bool `yaml:"verbose" json:"verbose"`
	DebugVerbose bool `yaml:"debugVerbose" json:"debugVerbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields
// still at their flag-parsing defaults. Flags should already have been
// parsed; explicit flags win over file values.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	const (
		listenDefault = ":8080"
		dbDefault     = "orgsearch.db"
	)
	if (cfg.Listen == "" || cfg.Listen == listenDefault) && fc.Listen != "" {
		cfg.Listen = fc.Listen
	}
	if cfg.APIToken == "" && fc.Token != "" {
		cfg.APIToken = fc.Token
	}
	if (cfg.DBPath == "" || cfg.DBPath == dbDefault) && fc.DB != "" {
		cfg.DBPath = fc.DB
	}
	if cfg.SearxURL == "" && fc.Searx.URL != "" {
		cfg.SearxURL = fc.Searx.URL
	}
	if cfg.SearxKey == "" && fc.Searx.Key != "" {
		cfg.SearxKey = fc.Searx.Key
	}
	if cfg.SearxUA == "" && fc.Searx.UA != "" {
		cfg.SearxUA = fc.Searx.UA
	}
	if cfg.FileSearchPath == "" && fc.Search.File != "" {
		cfg.FileSearchPath = fc.Search.File
	}
	if cfg.ReaderBaseURL == "" && fc.Reader.URL != "" {
		cfg.ReaderBaseURL = fc.Reader.URL
	}
	if cfg.ReaderAPIKey == "" && fc.Reader.Key != "" {
		cfg.ReaderAPIKey = fc.Reader.Key
	}
	if cfg.CacheSize == 0 && fc.Cache.Size > 0 {
		cfg.CacheSize = fc.Cache.Size
	}
	if cfg.CacheTTL == 0 && fc.Cache.TTL > 0 {
		cfg.CacheTTL = fc.Cache.TTL
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
	if !cfg.DebugVerbose && fc.DebugVerbose {
		cfg.DebugVerbose = true
	}
}

// ValidateConfig performs minimal schema validation for required settings.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Listen) == "" {
		return errors.New("config: listen address is required")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("config: db path is required")
	}
	if cfg.CacheSize < 0 || cfg.CacheTTL < 0 {
		return errors.New("config: negative cache limits are not allowed")
	}
	return nil
}
