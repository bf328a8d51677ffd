// Package config loads collectorsage configuration from YAML with
// environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all collectorsage configuration.
type Config struct {
	// Currency is the report currency; every price in a valuation is
	// expressed in it.
	Currency string `yaml:"currency"`

	Vision      VisionConfig      `yaml:"vision"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Catalogue   CatalogueConfig   `yaml:"catalogue"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	FX          FXConfig          `yaml:"fx"`
	Report      ReportConfig      `yaml:"report"`
	Cache       CacheConfig       `yaml:"cache"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// VisionConfig configures the identity extractor.
type VisionConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	FastModel     string `yaml:"fast_model"`
	ThoroughModel string `yaml:"thorough_model"`
	Timeout       string `yaml:"timeout"`
	MaxAttempts   int    `yaml:"max_attempts"`
	Backoff       string `yaml:"backoff"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama or genai
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	TaskType       string `yaml:"task_type"`
	Dimensions     int    `yaml:"dimensions"`
}

// CatalogueConfig configures the semantic index and resolver.
type CatalogueConfig struct {
	DatabasePath string `yaml:"database_path"`
	// DumpDir holds raw scrape JSON files consumed by `collectorsage index`.
	DumpDir string `yaml:"dump_dir"`
	// WikiPath is an optional fan-wiki JSON corpus for metadata enrichment.
	WikiPath      string `yaml:"wiki_path"`
	CandidatePool int    `yaml:"candidate_pool"` // KNN pool before re-ranking
	Keep          int    `yaml:"keep"`           // matches kept after re-ranking
}

// MarketplaceConfig configures the live listings client.
type MarketplaceConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	BaseURL      string `yaml:"base_url"`
	AuthURL      string `yaml:"auth_url"`
	CategoryID   string `yaml:"category_id"`
	Country      string `yaml:"country"`
	Timeout      string `yaml:"timeout"`
}

// FXConfig configures the exchange-rate service client.
type FXConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// ReportConfig configures the narrative report writer.
type ReportConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// CacheConfig configures the token/query cache.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	UploadDir string `yaml:"upload_dir"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Dir        string          `yaml:"dir"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Currency: "GBP",
		Vision: VisionConfig{
			BaseURL:       "https://api.anthropic.com",
			FastModel:     "claude-3-5-haiku-20241022",
			ThoroughModel: "claude-3-5-sonnet-20240620",
			Timeout:       "60s",
			MaxAttempts:   1,
			Backoff:       "500ms",
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "all-minilm",
			GenAIModel:     "gemini-embedding-001",
			Dimensions:     384,
		},
		Catalogue: CatalogueConfig{
			DatabasePath:  "collectorsage.db",
			DumpDir:       "databases",
			CandidatePool: 20,
			Keep:          5,
		},
		Marketplace: MarketplaceConfig{
			BaseURL:    "https://api.ebay.com/buy/browse/v1",
			AuthURL:    "https://api.ebay.com/identity/v1/oauth2/token",
			CategoryID: "158671",
			Country:    "GB",
			Timeout:    "30s",
		},
		FX: FXConfig{
			BaseURL: "https://api.exchangerate-api.com/v4/latest",
			Timeout: "15s",
		},
		Report: ReportConfig{
			Model:     "claude-3-5-sonnet-20240620",
			MaxTokens: 1024,
		},
		Cache: CacheConfig{
			TTL: "1h",
		},
		Server: ServerConfig{
			Addr:      ":8000",
			UploadDir: "uploads",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (optional) and applies environment
// overrides. A missing file is not an error; defaults carry the day.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides maps collaborator credentials from the environment.
// Env always wins over file values so deployments never bake secrets
// into YAML.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Vision.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("EBAY_CLIENT_ID"); v != "" {
		c.Marketplace.ClientID = v
	}
	if v := os.Getenv("EBAY_CLIENT_SECRET"); v != "" {
		c.Marketplace.ClientSecret = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}
	if v := os.Getenv("COLLECTORSAGE_DB"); v != "" {
		c.Catalogue.DatabasePath = v
	}
	if v := os.Getenv("COLLECTORSAGE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("COLLECTORSAGE_CURRENCY"); v != "" {
		c.Currency = v
	}
	if os.Getenv("COLLECTORSAGE_DEBUG") == "1" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// Duration parses a config duration string with a fallback.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate checks settings that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	if c.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if c.Catalogue.CandidatePool <= 0 {
		return fmt.Errorf("catalogue.candidate_pool must be positive")
	}
	if c.Catalogue.Keep <= 0 || c.Catalogue.Keep > c.Catalogue.CandidatePool {
		return fmt.Errorf("catalogue.keep must be in 1..candidate_pool")
	}
	switch c.Embedding.Provider {
	case "ollama", "genai":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	return nil
}
