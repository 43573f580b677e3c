// Package config resolves application settings from the environment.
//
// Everything is read once at startup; a run's configuration never changes
// mid-flight, which keeps provider order deterministic and reproducible.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// rawConfig carries the option tags for go-flags. go-flags only binds
// fields that declare a long name, so every field carries one even though
// only the env lookups are exercised; command-line flags belong to the
// CLI layer.
type rawConfig struct {
	// Provider credentials
	AnthropicAPIKey string `long:"anthropic-api-key" env:"ANTHROPIC_API_KEY" description:"Anthropic API key"`
	OpenAIAPIKey    string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"OpenAI API key"`
	GeminiAPIKey    string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Google Gemini API key"`

	// LLM settings
	DefaultProvider string `long:"default-llm-provider" env:"DEFAULT_LLM_PROVIDER" default:"openai" description:"Provider tried first: anthropic, openai, gemini"`
	DefaultModel    string `long:"default-llm-model" env:"DEFAULT_LLM_MODEL" description:"Model override; auto-selected per provider when empty"`
	MaxTokens       int    `long:"max-tokens" env:"MAX_TOKENS" default:"4096" description:"Prompt/completion token budget"`

	// Fetch settings
	MaxArticlesPerSource int `long:"max-articles-per-source" env:"MAX_ARTICLES_PER_SOURCE" default:"10" description:"Cap on articles kept per feed"`
	FetchTimeoutSec      int `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"15" description:"Per-source fetch deadline in seconds"`
	RunTimeoutSec        int `long:"run-timeout" env:"RUN_TIMEOUT" default:"120" description:"Whole-run deadline in seconds"`

	// Retry settings for transient provider failures
	LLMMaxRetries int `long:"llm-max-retries" env:"LLM_MAX_RETRIES" default:"2" description:"Extra attempts per provider after the first call"`
	LLMBackoffMS  int `long:"llm-backoff-ms" env:"LLM_BACKOFF_MS" default:"500" description:"Initial backoff interval in milliseconds"`

	// Persistence roots
	DataDir   string `long:"data-dir" env:"DATA_DIR" default:"data" description:"Storage root for raw articles and syntheses"`
	OutputDir string `long:"output-dir" env:"OUTPUT_DIR" default:"outputs" description:"Markdown report directory"`
	LogDir    string `long:"log-dir" env:"LOG_DIR" default:"logs" description:"Log and metrics directory"`

	// Optional YAML file adding/overriding catalog sources
	SourcesFile string `long:"sources-file" env:"SOURCES_FILE" description:"YAML file with extra named sources"`
}

// Config is the resolved application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GeminiAPIKey    string

	DefaultProvider string
	DefaultModel    string
	MaxTokens       int

	MaxArticlesPerSource int
	FetchTimeout         time.Duration
	RunTimeout           time.Duration

	LLMMaxRetries int
	LLMBackoff    time.Duration

	DataDir   string
	OutputDir string
	LogDir    string

	SourcesFile string
}

// Load resolves configuration from the environment.
func Load() (*Config, error) {
	var raw rawConfig

	parser := flags.NewParser(&raw, flags.IgnoreUnknown)
	// Empty argument list: only env tags and defaults are applied.
	if _, err := parser.ParseArgs(nil); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return &Config{
		AnthropicAPIKey:      raw.AnthropicAPIKey,
		OpenAIAPIKey:         raw.OpenAIAPIKey,
		GeminiAPIKey:         raw.GeminiAPIKey,
		DefaultProvider:      raw.DefaultProvider,
		DefaultModel:         raw.DefaultModel,
		MaxTokens:            raw.MaxTokens,
		MaxArticlesPerSource: raw.MaxArticlesPerSource,
		FetchTimeout:         time.Duration(raw.FetchTimeoutSec) * time.Second,
		RunTimeout:           time.Duration(raw.RunTimeoutSec) * time.Second,
		LLMMaxRetries:        raw.LLMMaxRetries,
		LLMBackoff:           time.Duration(raw.LLMBackoffMS) * time.Millisecond,
		DataDir:              raw.DataDir,
		OutputDir:            raw.OutputDir,
		LogDir:               raw.LogDir,
		SourcesFile:          raw.SourcesFile,
	}, nil
}

// Validate returns human-readable problems with the configuration.
func (c *Config) Validate() []string {
	var errs []string

	if c.AnthropicAPIKey == "" && c.OpenAIAPIKey == "" && c.GeminiAPIKey == "" {
		errs = append(errs, "no LLM API keys found; set at least one of ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY")
	}

	for _, dir := range []string{c.DataDir, c.OutputDir, c.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			errs = append(errs, fmt.Sprintf("cannot create directory %s: %v", dir, err))
		}
	}

	return errs
}

// AvailableProviders lists providers with a credential configured,
// in the built-in fallback order.
func (c *Config) AvailableProviders() []string {
	var providers []string
	if c.AnthropicAPIKey != "" {
		providers = append(providers, "anthropic")
	}
	if c.OpenAIAPIKey != "" {
		providers = append(providers, "openai")
	}
	if c.GeminiAPIKey != "" {
		providers = append(providers, "gemini")
	}
	return providers
}

// APIKey returns the credential for a provider name, empty when unknown.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "gemini":
		return c.GeminiAPIKey
	}
	return ""
}
