package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Search backends understood by the search adapter.
const (
	SearchBackendDuckDuckGo = "duckduckgo"
	SearchBackendTavily     = "tavily"
	SearchBackendBrave      = "brave"
)

const (
	defaultPort          = 8000
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultMaxResults    = 3
	defaultCacheSize     = 100
	defaultSearchTimeout = 15 * time.Second
	defaultFetchTimeout  = 5 * time.Second
	defaultFetchDelay    = 500 * time.Millisecond
	defaultFetchMaxBytes = 2 << 20
	defaultTokenBudget   = 9000
	defaultWorkers       = 8
	defaultEncoding      = "o200k_base"
	defaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Search    SearchConfig    `yaml:"search"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ProvidersConfig catalogues configured upstream completion providers.
type ProvidersConfig struct {
	OpenAI ProviderConfig `yaml:"openai"`
}

// ProviderConfig captures authentication and routing info for a provider.
type ProviderConfig struct {
	APIKey  string            `yaml:"api_key"`
	BaseURL string            `yaml:"base_url"`
	Models  []ModelConfig     `yaml:"models"`
	Headers Headers           `yaml:"headers"`
	Aliases map[string]string `yaml:"aliases"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// ModelConfig describes a model exposed by a provider.
type ModelConfig struct {
	ID string `yaml:"id"`
}

// SearchConfig selects and tunes the web search backend.
type SearchConfig struct {
	Backend    string        `yaml:"backend"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	MaxResults int           `yaml:"max_results"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ExtractorConfig bounds article fetching.
type ExtractorConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	Delay     time.Duration `yaml:"delay"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

// RetrievalConfig controls content aggregation.
type RetrievalConfig struct {
	TokenBudget int    `yaml:"token_budget"`
	Workers     int    `yaml:"workers"`
	Encoding    string `yaml:"encoding"`
}

// Load reads YAML configuration from disk, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	return load(path, Config.Validate)
}

// LoadRetrieval is Load for commands that never call a completion provider:
// the providers section is not validated.
func LoadRetrieval(path string) (Config, error) {
	return load(path, Config.ValidateRetrieval)
}

func load(path string, validate func(Config) error) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	return parse(data, os.LookupEnv, validate)
}

// Parse decodes YAML bytes into a validated Config. lookupEnv resolves
// environment overrides; pass nil to ignore the environment.
func Parse(data []byte, lookupEnv func(string) (string, bool)) (Config, error) {
	return parse(data, lookupEnv, Config.Validate)
}

func parse(data []byte, lookupEnv func(string) (string, bool), validate func(Config) error) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if lookupEnv != nil {
		if err := cfg.applyEnv(lookupEnv); err != nil {
			return Config{}, err
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if strings.TrimSpace(c.Providers.OpenAI.BaseURL) == "" {
		c.Providers.OpenAI.BaseURL = defaultOpenAIBaseURL
	}
	if c.Search.Backend == "" {
		c.Search.Backend = SearchBackendDuckDuckGo
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = defaultMaxResults
	}
	if c.Search.CacheSize == 0 {
		c.Search.CacheSize = defaultCacheSize
	}
	if c.Search.Timeout == 0 {
		c.Search.Timeout = defaultSearchTimeout
	}
	if c.Extractor.Timeout == 0 {
		c.Extractor.Timeout = defaultFetchTimeout
	}
	if c.Extractor.Delay == 0 {
		c.Extractor.Delay = defaultFetchDelay
	}
	if c.Extractor.MaxBytes == 0 {
		c.Extractor.MaxBytes = defaultFetchMaxBytes
	}
	if c.Extractor.UserAgent == "" {
		c.Extractor.UserAgent = defaultUserAgent
	}
	if c.Retrieval.TokenBudget == 0 {
		c.Retrieval.TokenBudget = defaultTokenBudget
	}
	if c.Retrieval.Workers == 0 {
		c.Retrieval.Workers = defaultWorkers
	}
	if c.Retrieval.Encoding == "" {
		c.Retrieval.Encoding = defaultEncoding
	}
}

func (c *Config) applyEnv(lookupEnv func(string) (string, bool)) error {
	if v, ok := lookupEnv("OPENAI_API_KEY"); ok && v != "" {
		c.Providers.OpenAI.APIKey = v
	}
	if v, ok := lookupEnv("OPENAI_BASE_URL"); ok && v != "" {
		c.Providers.OpenAI.BaseURL = v
	}
	if v, ok := lookupEnv("SEARCH_API_KEY"); ok && v != "" {
		c.Search.APIKey = v
	}
	if v, ok := lookupEnv("MAX_SEARCH_RESULTS"); ok && v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("MAX_SEARCH_RESULTS: %w", err)
		}
		c.Search.MaxResults = n
	}
	if v, ok := lookupEnv("TOKEN_BUDGET"); ok && v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("TOKEN_BUDGET: %w", err)
		}
		c.Retrieval.TokenBudget = n
	}
	return nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	if err := validateProvider("openai", c.Providers.OpenAI); err != nil {
		return err
	}

	return c.ValidateRetrieval()
}

// ValidateRetrieval checks the search, extractor and retrieval sections.
func (c Config) ValidateRetrieval() error {
	switch c.Search.Backend {
	case SearchBackendDuckDuckGo:
	case SearchBackendTavily, SearchBackendBrave:
		if strings.TrimSpace(c.Search.APIKey) == "" {
			return fmt.Errorf("search backend %s: api_key must be provided", c.Search.Backend)
		}
	default:
		return fmt.Errorf("search.backend %q must be one of %q, %q or %q",
			c.Search.Backend, SearchBackendDuckDuckGo, SearchBackendTavily, SearchBackendBrave)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.CacheSize <= 0 {
		return fmt.Errorf("search.cache_size must be positive, got %d", c.Search.CacheSize)
	}
	if c.Search.Timeout < 0 || c.Extractor.Timeout < 0 || c.Extractor.Delay < 0 {
		return fmt.Errorf("timeouts and delays must not be negative")
	}
	if c.Extractor.MaxBytes <= 0 {
		return fmt.Errorf("extractor.max_bytes must be positive, got %d", c.Extractor.MaxBytes)
	}
	if c.Retrieval.TokenBudget <= 0 {
		return fmt.Errorf("retrieval.token_budget must be positive, got %d", c.Retrieval.TokenBudget)
	}
	if c.Retrieval.Workers <= 0 {
		return fmt.Errorf("retrieval.workers must be positive, got %d", c.Retrieval.Workers)
	}

	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	if strings.TrimSpace(provider.APIKey) == "" {
		return fmt.Errorf("provider %s: api_key must be provided", name)
	}
	if strings.TrimSpace(provider.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url must be provided", name)
	}
	if len(provider.Models) == 0 {
		return fmt.Errorf("provider %s: at least one model must be configured", name)
	}

	for _, model := range provider.Models {
		if strings.TrimSpace(model.ID) == "" {
			return fmt.Errorf("provider %s: model id must not be empty", name)
		}
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}

	for alias, target := range provider.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("provider %s: alias name must not be empty", name)
		}
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("provider %s: alias %q target must not be empty", name, alias)
		}
	}

	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
