// Package config provides configuration management for scribe.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/scribe/internal/classify"
	"github.com/thebtf/scribe/pkg/models"
)

const (
	DefaultServerPort    = 37840
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultCacheBackend  = "sqlite"
	DefaultCacheTTL      = 24 * time.Hour
	DefaultBatchMessages = 25
	DefaultBatchTokens   = 6000
	DefaultConcurrency   = 4
	DefaultMaxRetries    = 2
	DefaultRunTimeout    = 5 * time.Minute
)

// DefaultExcludeKeywords filters routine coordination chatter out of runs.
var DefaultExcludeKeywords = []string{"sync"}

// Config is the root configuration.
type Config struct {
	Source          SourceConfig      `yaml:"source"`
	ExcludeKeywords []string          `yaml:"exclude_keywords"`
	Rules           []RuleConfig      `yaml:"rules"`
	Gemini          GeminiConfig      `yaml:"gemini"`
	Cache           CacheConfig       `yaml:"cache"`
	Analyzer        AnalyzerConfig    `yaml:"analyzer"`
	Server          ServerConfig      `yaml:"server"`
	Output          OutputConfig      `yaml:"output"`
	Identities      map[string]Person `yaml:"identities"`
	RunTimeout      time.Duration     `yaml:"run_timeout"`
}

// SourceConfig selects where raw messages come from.
type SourceConfig struct {
	// Path is a JSON export file or a directory of them.
	Path string `yaml:"path"`
}

// RuleConfig is one ordered keyword rule.
type RuleConfig struct {
	Tag      string   `yaml:"tag"`
	Triggers []string `yaml:"triggers"`
}

// GeminiConfig holds the generation backend settings.
type GeminiConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CacheConfig selects and tunes the response cache store.
type CacheConfig struct {
	Backend    string        `yaml:"backend"` // memory, sqlite or redis
	TTL        time.Duration `yaml:"ttl"`
	SQLitePath string        `yaml:"sqlite_path"`
	RedisAddr  string        `yaml:"redis_addr"`
}

// AnalyzerConfig tunes the AI route.
type AnalyzerConfig struct {
	MaxBatchMessages int `yaml:"max_batch_messages"`
	MaxBatchTokens   int `yaml:"max_batch_tokens"`
	Concurrency      int `yaml:"concurrency"`
	MaxRetries       int `yaml:"max_retries"`
}

// ServerConfig tunes the HTTP trigger server.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// OutputConfig selects where finished journals go.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Stdout bool   `yaml:"stdout"`
}

// Person is a directory entry for resolving display names.
type Person struct {
	Name     string `yaml:"name"`
	RealName string `yaml:"real_name"`
}

// ValidationError reports a rejected configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// DataDir returns the scribe data directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".scribe")
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0755)
}

// Default returns the built-in configuration.
func Default() *Config {
	rules := make([]RuleConfig, 0, len(classify.DefaultRules()))
	for _, r := range classify.DefaultRules() {
		rules = append(rules, RuleConfig{Tag: string(r.Tag), Triggers: r.Triggers})
	}
	return &Config{
		ExcludeKeywords: append([]string(nil), DefaultExcludeKeywords...),
		Rules:           rules,
		Gemini: GeminiConfig{
			Model:   DefaultGeminiModel,
			Timeout: 60 * time.Second,
		},
		Cache: CacheConfig{
			Backend:    DefaultCacheBackend,
			TTL:        DefaultCacheTTL,
			SQLitePath: filepath.Join(DataDir(), "aicache.db"),
		},
		Analyzer: AnalyzerConfig{
			MaxBatchMessages: DefaultBatchMessages,
			MaxBatchTokens:   DefaultBatchTokens,
			Concurrency:      DefaultConcurrency,
			MaxRetries:       DefaultMaxRetries,
		},
		Server: ServerConfig{
			Port: DefaultServerPort,
			Host: "127.0.0.1",
		},
		Output: OutputConfig{
			Dir: filepath.Join(DataDir(), "journals"),
		},
		RunTimeout: DefaultRunTimeout,
	}
}

// Load reads path on top of defaults, applies SCRIBE_* environment
// overrides, and validates the result. An empty path loads defaults plus
// environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers SCRIBE_* variables over the loaded values. Environment
// wins over file, file wins over defaults.
func (c *Config) applyEnv() {
	if v := os.Getenv("SCRIBE_GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("SCRIBE_GEMINI_MODEL"); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv("SCRIBE_SOURCE_PATH"); v != "" {
		c.Source.Path = v
	}
	if v := os.Getenv("SCRIBE_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("SCRIBE_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("SCRIBE_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("SCRIBE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	// Comma-separated, matching lowercase against message text.
	if v := os.Getenv("SCRIBE_EXCLUDE_KEYWORDS"); v != "" {
		var keywords []string
		for _, kw := range strings.Split(v, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, strings.ToLower(kw))
			}
		}
		c.ExcludeKeywords = keywords
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Rules) == 0 {
		return &ValidationError{Field: "rules", Reason: "must not be empty"}
	}
	for i, r := range c.Rules {
		if _, ok := models.ParseTag(r.Tag); !ok {
			return &ValidationError{Field: fmt.Sprintf("rules[%d].tag", i), Reason: fmt.Sprintf("unknown tag %q", r.Tag)}
		}
		if len(r.Triggers) == 0 {
			return &ValidationError{Field: fmt.Sprintf("rules[%d].triggers", i), Reason: "must not be empty"}
		}
	}
	switch c.Cache.Backend {
	case "memory", "sqlite", "redis":
	default:
		return &ValidationError{Field: "cache.backend", Reason: fmt.Sprintf("unknown backend %q", c.Cache.Backend)}
	}
	if c.Cache.Backend == "sqlite" && c.Cache.SQLitePath == "" {
		return &ValidationError{Field: "cache.sqlite_path", Reason: "required for the sqlite backend"}
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return &ValidationError{Field: "cache.redis_addr", Reason: "required for the redis backend"}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Reason: "must be between 1 and 65535"}
	}
	if c.Analyzer.Concurrency < 0 {
		return &ValidationError{Field: "analyzer.concurrency", Reason: "must not be negative"}
	}
	if c.Analyzer.MaxRetries < 0 {
		return &ValidationError{Field: "analyzer.max_retries", Reason: "must not be negative"}
	}
	return nil
}

// ClassifierRules converts the configured rule table for the classifier.
func (c *Config) ClassifierRules() []classify.Rule {
	rules := make([]classify.Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		tag, _ := models.ParseTag(r.Tag)
		rules = append(rules, classify.Rule{Tag: tag, Triggers: r.Triggers})
	}
	return rules
}
