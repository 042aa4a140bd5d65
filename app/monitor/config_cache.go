package monitor

import (
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/mention-comb/app/query"
)

const (
	DefaultRefreshInterval = 900
	DefaultTimeout         = 30
	DefaultMaxItems        = 100
	DefaultMinRelevance    = 0.6
)

type ConfigCache struct {
	monitorsDir string
	cache       map[string]*Config
	mu          sync.RWMutex
}

func NewConfigCache(monitorsDir string) *ConfigCache {
	return &ConfigCache{
		monitorsDir: monitorsDir,
		cache:       make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.monitorsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.monitorsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "monitor", name, "enabled", config.Settings.Enabled, "sources", len(config.Sources))
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(name string) (*Config, error) {
	configFile := cc.getConfigFilePath(name)
	config, err := parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	config.Name = name

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	// A malformed query never matches; it is reported, not rejected.
	if config.SearchQuery != "" {
		if _, err := query.Compile(config.SearchQuery); err != nil {
			slog.Warn("Malformed search query will never match", "monitor", name, "query", config.SearchQuery, "error", err)
		}
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.Name] = config

	return config, nil
}

func (cc *ConfigCache) GetConfig(name string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[name]
	if !ok {
		return nil, fmt.Errorf("monitor config with name '%s' not found", name)
	}
	return config, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return maps.Clone(cc.cache)
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabled := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabled[k] = v
		}
	}
	return enabled
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// An explicit min_relevance of 0 keeps every discovery match.
	var explicit struct {
		Settings struct {
			MinRelevance *float64 `yaml:"min_relevance"`
		} `yaml:"settings"`
	}
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Settings.RefreshInterval == 0 {
		config.Settings.RefreshInterval = DefaultRefreshInterval
	}
	if config.Settings.MaxItems == 0 {
		config.Settings.MaxItems = DefaultMaxItems
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = DefaultTimeout
	}
	if explicit.Settings.MinRelevance == nil {
		config.Settings.MinRelevance = DefaultMinRelevance
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}
	if config.Name == "" {
		return fmt.Errorf("monitor name is required")
	}

	if config.MatchConfig().IsEmpty() && !config.HasDiscovery() {
		return fmt.Errorf("one of company_name, keywords, search_query or discovery_prompt is required")
	}

	if len(config.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	for i, source := range config.Sources {
		u, err := url.Parse(source.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid source URL at index %d: %q", i, source.URL)
		}
	}

	nonNegativeFields := map[string]int{
		"refresh interval": config.Settings.RefreshInterval,
		"max items":        config.Settings.MaxItems,
		"timeout":          config.Settings.Timeout,
	}
	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if config.Settings.MinRelevance < 0 || config.Settings.MinRelevance > 1 {
		return fmt.Errorf("min relevance must be between 0 and 1")
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(name string) string {
	return filepath.Join(cc.monitorsDir, name+".yml")
}
