package feed

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConfigCache reads the run configuration from a YAML file and remembers the
// last valid copy.
type ConfigCache struct {
	path  string
	cache *RunConfig
	mu    sync.RWMutex
}

func NewConfigCache(path string) *ConfigCache {
	return &ConfigCache{path: path}
}

// Run re-reads the file. A read or validation failure keeps the previously
// cached configuration and is returned to the caller.
func (cc *ConfigCache) Run() (*RunConfig, error) {
	runConfig, err := cc.parseConfig()
	if err != nil {
		return nil, err
	}

	if err := cc.validateConfig(runConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cc.path, err)
	}

	cc.mu.Lock()
	cc.cache = runConfig
	cc.mu.Unlock()

	slog.Debug("Configuration loaded",
		"path", cc.path,
		"feeds", len(runConfig.FeedURLs),
		"patterns", len(runConfig.Patterns),
		"batch_size", runConfig.BatchSize,
		"max_concurrency", runConfig.MaxConcurrency)

	return runConfig, nil
}

// GetConfig returns a copy of the last valid configuration.
func (cc *ConfigCache) GetConfig() (*RunConfig, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	if cc.cache == nil {
		return nil, fmt.Errorf("run configuration '%s' not loaded", cc.path)
	}
	configCopy := *cc.cache
	return &configCopy, nil
}

func (cc *ConfigCache) parseConfig() (*RunConfig, error) {
	data, err := os.ReadFile(cc.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var runConfig RunConfig
	if err := yaml.Unmarshal(data, &runConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	runConfig.Patterns = cleanList(runConfig.Patterns)
	runConfig.FeedURLs = cleanList(runConfig.FeedURLs)
	runConfig.Keywords = cleanList(runConfig.Keywords)
	runConfig.Notify.Recipients = cleanList(runConfig.Notify.Recipients)
	if len(runConfig.Patterns) == 0 {
		runConfig.Patterns = []string{WildcardPattern}
	}
	runConfig.Clamp()

	return &runConfig, nil
}

func (cc *ConfigCache) validateConfig(runConfig *RunConfig) error {
	if runConfig == nil {
		return fmt.Errorf("runConfig is nil")
	}

	if len(runConfig.FeedURLs) == 0 {
		return fmt.Errorf("at least one feed URL is required")
	}

	for i, feedURL := range runConfig.FeedURLs {
		if !IsHTTPURL(feedURL) {
			return fmt.Errorf("invalid feed URL at index %d: %s", i, feedURL)
		}
	}

	for i, recipient := range runConfig.Notify.Recipients {
		if !strings.Contains(recipient, "@") {
			return fmt.Errorf("invalid recipient at index %d: %s", i, recipient)
		}
	}

	return nil
}

// IsHTTPURL reports whether raw is an absolute http or https URL.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
