// Package config loads service configuration from defaults, an optional
// config file and MATHCHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/abhisek/mathchat/internal/llm"
)

// EnvPrefix prefixes every environment variable. Nested keys join with
// "_", so llm.openai.api_key is MATHCHAT_LLM_OPENAI_API_KEY.
const EnvPrefix = "MATHCHAT"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Session   SessionConfig   `mapstructure:"session"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Solver    SolverConfig    `mapstructure:"solver"`
	Vision    VisionConfig    `mapstructure:"vision"`
	Prompt    PromptConfig    `mapstructure:"prompt"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	// MaxUploadBytes bounds multipart bodies, images included.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Capacity      int           `mapstructure:"capacity"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type OpenRouterConfig struct {
	ProviderConfig `mapstructure:",squash"`
	AppTitle       string `mapstructure:"app_title"`
	Referer        string `mapstructure:"referer"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

type LLMConfig struct {
	Provider    string           `mapstructure:"provider"`
	Timeout     time.Duration    `mapstructure:"timeout"`
	MaxTokens   int              `mapstructure:"max_tokens"`
	Temperature float64          `mapstructure:"temperature"`
	OpenAI      ProviderConfig   `mapstructure:"openai"`
	Anthropic   ProviderConfig   `mapstructure:"anthropic"`
	Gemini      ProviderConfig   `mapstructure:"gemini"`
	OpenRouter  OpenRouterConfig `mapstructure:"openrouter"`
	Retry       RetryConfig      `mapstructure:"retry"`
}

type RetrievalConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	BaseURL          string         `mapstructure:"base_url"`
	Token            string         `mapstructure:"token"`
	CollectionID     string         `mapstructure:"collection_id"`
	K                int            `mapstructure:"k"`
	Filter           map[string]any `mapstructure:"filter"`
	Timeout          time.Duration  `mapstructure:"timeout"`
	EmbeddingModel   string         `mapstructure:"embedding_model"`
	CachePerExercise bool           `mapstructure:"cache_per_exercise"`
}

type SolverConfig struct {
	AppID         string        `mapstructure:"app_id"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	MaxParallel   int           `mapstructure:"max_parallel"`
}

type VisionConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Model        string `mapstructure:"model"`
	MaxTokens    int    `mapstructure:"max_tokens"`
	MaxDimension int    `mapstructure:"max_dimension"`
}

type PromptConfig struct {
	TemplatesFile string `mapstructure:"templates_file"`
}

type StoreConfig struct {
	// Path of the SQLite event log. Empty disables it.
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	l := llm.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"*"},
			MaxUploadBytes:  10 << 20,
		},
		Session: SessionConfig{
			TTL:           2 * time.Hour,
			SweepInterval: 5 * time.Minute,
			Capacity:      10000,
		},
		LLM: LLMConfig{
			Provider:    l.Provider,
			Timeout:     l.Timeout,
			MaxTokens:   l.MaxTokens,
			Temperature: l.Temperature,
			OpenAI:      ProviderConfig{Model: l.OpenAI.Model},
			Anthropic:   ProviderConfig{Model: l.Anthropic.Model},
			Gemini:      ProviderConfig{Model: l.Gemini.Model},
			OpenRouter:  OpenRouterConfig{ProviderConfig: ProviderConfig{Model: l.OpenRouter.Model}},
			Retry: RetryConfig{
				MaxAttempts: l.Retry.MaxAttempts,
				InitialWait: l.Retry.InitialWait,
				MaxWait:     l.Retry.MaxWait,
				Multiplier:  l.Retry.Multiplier,
			},
		},
		Retrieval: RetrievalConfig{
			Enabled:        true,
			K:              4,
			Filter:         map[string]any{"school_level": "6e"},
			Timeout:        10 * time.Second,
			EmbeddingModel: "text-embedding-ada-002",
		},
		Solver: SolverConfig{
			BaseURL:       "https://api.wolframalpha.com",
			Timeout:       20 * time.Second,
			RatePerSecond: 5,
			Burst:         5,
			MaxParallel:   4,
		},
		Vision: VisionConfig{
			Enabled:      true,
			Model:        "gpt-4o-mini",
			MaxTokens:    300,
			MaxDimension: 2048,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// setDefaults registers every key so environment variables can override
// keys that have no file entry.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	defaults := map[string]any{
		"server.addr":             d.Server.Addr,
		"server.read_timeout":     d.Server.ReadTimeout,
		"server.shutdown_timeout": d.Server.ShutdownTimeout,
		"server.allowed_origins":  d.Server.AllowedOrigins,
		"server.max_upload_bytes": d.Server.MaxUploadBytes,

		"session.ttl":            d.Session.TTL,
		"session.sweep_interval": d.Session.SweepInterval,
		"session.capacity":       d.Session.Capacity,

		"llm.provider":           d.LLM.Provider,
		"llm.timeout":            d.LLM.Timeout,
		"llm.max_tokens":         d.LLM.MaxTokens,
		"llm.temperature":        d.LLM.Temperature,
		"llm.retry.max_attempts": d.LLM.Retry.MaxAttempts,
		"llm.retry.initial_wait": d.LLM.Retry.InitialWait,
		"llm.retry.max_wait":     d.LLM.Retry.MaxWait,
		"llm.retry.multiplier":   d.LLM.Retry.Multiplier,

		"retrieval.enabled":            d.Retrieval.Enabled,
		"retrieval.base_url":           "",
		"retrieval.token":              "",
		"retrieval.collection_id":      "",
		"retrieval.k":                  d.Retrieval.K,
		"retrieval.filter":             d.Retrieval.Filter,
		"retrieval.timeout":            d.Retrieval.Timeout,
		"retrieval.embedding_model":    d.Retrieval.EmbeddingModel,
		"retrieval.cache_per_exercise": d.Retrieval.CachePerExercise,

		"solver.app_id":          "",
		"solver.base_url":        d.Solver.BaseURL,
		"solver.timeout":         d.Solver.Timeout,
		"solver.rate_per_second": d.Solver.RatePerSecond,
		"solver.burst":           d.Solver.Burst,
		"solver.max_parallel":    d.Solver.MaxParallel,

		"vision.enabled":       d.Vision.Enabled,
		"vision.model":         d.Vision.Model,
		"vision.max_tokens":    d.Vision.MaxTokens,
		"vision.max_dimension": d.Vision.MaxDimension,

		"prompt.templates_file": "",
		"store.path":            "",
		"log.level":             d.Log.Level,
		"log.format":            d.Log.Format,
	}
	for _, p := range []struct {
		name string
		cfg  ProviderConfig
	}{
		{"openai", d.LLM.OpenAI},
		{"anthropic", d.LLM.Anthropic},
		{"gemini", d.LLM.Gemini},
		{"openrouter", d.LLM.OpenRouter.ProviderConfig},
	} {
		defaults["llm."+p.name+".api_key"] = ""
		defaults["llm."+p.name+".model"] = p.cfg.Model
		defaults["llm."+p.name+".base_url"] = ""
	}
	defaults["llm.openrouter.app_title"] = ""
	defaults["llm.openrouter.referer"] = ""
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// vendorEnv maps keys to the vendors' conventional variables. They only
// fill keys that neither a MATHCHAT_* variable nor the config file set.
var vendorEnv = map[string]string{
	"llm.openai.api_key":      "OPENAI_API_KEY",
	"llm.anthropic.api_key":   "ANTHROPIC_API_KEY",
	"llm.gemini.api_key":      "GEMINI_API_KEY",
	"llm.openrouter.api_key":  "OPENROUTER_API_KEY",
	"retrieval.base_url":      "CHROMA_DB_URL",
	"retrieval.token":         "CHROMA_API_KEY",
	"retrieval.collection_id": "CHROMA_COLLECTION_ID",
	"solver.app_id":           "WOLFRAM_ALPHA_APPID",
}

// Load reads configuration into a Config. file may be empty.
func Load(v *viper.Viper, file string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	for key, env := range vendorEnv {
		if v.GetString(key) != "" {
			continue
		}
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the keys required to serve.
func (c Config) Validate() error {
	var errs []error
	if err := c.LLMConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Retrieval.Enabled {
		if c.Retrieval.BaseURL == "" || c.Retrieval.CollectionID == "" {
			errs = append(errs, fmt.Errorf("retrieval needs MATHCHAT_RETRIEVAL_BASE_URL and MATHCHAT_RETRIEVAL_COLLECTION_ID (or set retrieval.enabled=false)"))
		}
		if c.Retrieval.K <= 0 {
			errs = append(errs, fmt.Errorf("retrieval.k must be positive"))
		}
	}
	if c.Session.TTL < 0 || c.Session.Capacity < 0 {
		errs = append(errs, fmt.Errorf("session ttl and capacity must not be negative"))
	}
	return errors.Join(errs...)
}

// LLMConfig maps the llm section onto the provider layer's configuration.
func (c Config) LLMConfig() llm.Config {
	l := c.LLM
	return llm.Config{
		Provider:   l.Provider,
		OpenAI:     llm.OpenAIConfig{APIKey: l.OpenAI.APIKey, Model: l.OpenAI.Model, BaseURL: l.OpenAI.BaseURL},
		Anthropic:  llm.AnthropicConfig{APIKey: l.Anthropic.APIKey, Model: l.Anthropic.Model, BaseURL: l.Anthropic.BaseURL},
		Gemini:     llm.GeminiConfig{APIKey: l.Gemini.APIKey, Model: l.Gemini.Model},
		OpenRouter: llm.OpenRouterConfig{
			APIKey:   l.OpenRouter.APIKey,
			Model:    l.OpenRouter.Model,
			BaseURL:  l.OpenRouter.BaseURL,
			AppTitle: l.OpenRouter.AppTitle,
			Referer:  l.OpenRouter.Referer,
		},
		Retry: llm.RetryConfig{
			MaxAttempts: l.Retry.MaxAttempts,
			InitialWait: l.Retry.InitialWait,
			MaxWait:     l.Retry.MaxWait,
			Multiplier:  l.Retry.Multiplier,
		},
		Timeout:     l.Timeout,
		MaxTokens:   l.MaxTokens,
		Temperature: l.Temperature,
	}
}
