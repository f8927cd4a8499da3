package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix         = "ASSISTANT"
	DefaultConfigPath = "./config/assistant.yaml"
)

type Config struct {
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Assistant    AssistantConfig    `mapstructure:"assistant" yaml:"assistant"`
	Planner      PlannerConfig      `mapstructure:"planner" yaml:"planner"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Tools        ToolsConfig        `mapstructure:"tools" yaml:"tools"`
	Storage      StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Redis        RedisConfig        `mapstructure:"redis" yaml:"redis"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Speech       SpeechConfig       `mapstructure:"speech" yaml:"speech"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
	OTel         OTelConfig         `mapstructure:"otel" yaml:"otel"`
}

type LLMConfig struct {
	// Provider is one of ollama, openrouter, gemini, mock.
	Provider              string  `mapstructure:"provider" yaml:"provider"`
	Model                 string  `mapstructure:"model" yaml:"model"`
	BaseURL               string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey                string  `mapstructure:"api_key" yaml:"api_key"`
	Temperature           float32 `mapstructure:"temperature" yaml:"temperature"`
	TopP                  float32 `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens             int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

type AssistantConfig struct {
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt"`
}

type PlannerConfig struct {
	// Mode is one of rule, llm, hybrid.
	Mode       string `mapstructure:"mode" yaml:"mode"`
	LLMEnabled bool   `mapstructure:"llm_enabled" yaml:"llm_enabled"`
	TimeoutMS  int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	// HybridPolicy is rule_first or model_first.
	HybridPolicy string `mapstructure:"hybrid_policy" yaml:"hybrid_policy"`
}

type OrchestratorConfig struct {
	SummaryTrigger int  `mapstructure:"summary_trigger" yaml:"summary_trigger"`
	HistoryLimit   int  `mapstructure:"history_limit" yaml:"history_limit"`
	MemoryLimit    int  `mapstructure:"memory_limit" yaml:"memory_limit"`
	MemoryShortcut bool `mapstructure:"memory_shortcut" yaml:"memory_shortcut"`
}

type ToolsConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search" yaml:"web_search"`
}

type WebSearchConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	MaxResults     int    `mapstructure:"max_results" yaml:"max_results"`
	Summarize      bool   `mapstructure:"summarize" yaml:"summarize"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

type StorageConfig struct {
	// Driver is the database/sql driver name: sqlite3 (cgo) or sqlite (pure Go).
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
}

type RedisConfig struct {
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Channel string `mapstructure:"channel" yaml:"channel"`
}

type ServerConfig struct {
	Port   string `mapstructure:"port" yaml:"port"`
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

type SpeechConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	PiperBinary string `mapstructure:"piper_binary" yaml:"piper_binary"`
	ModelPath   string `mapstructure:"model_path" yaml:"model_path"`
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

type OTelConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

const defaultSystemPrompt = "You are a helpful, concise voice assistant. Answer clearly and briefly."

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.model", "llama3")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.request_timeout_seconds", 60)

	v.SetDefault("assistant.system_prompt", defaultSystemPrompt)

	v.SetDefault("planner.mode", "rule")
	v.SetDefault("planner.llm_enabled", false)
	v.SetDefault("planner.timeout_ms", 1500)
	v.SetDefault("planner.hybrid_policy", "rule_first")

	v.SetDefault("orchestrator.summary_trigger", 10)
	v.SetDefault("orchestrator.history_limit", 6)
	v.SetDefault("orchestrator.memory_limit", 5)
	v.SetDefault("orchestrator.memory_shortcut", false)

	v.SetDefault("tools.web_search.enabled", true)
	v.SetDefault("tools.web_search.base_url", "http://localhost:8888")
	v.SetDefault("tools.web_search.max_results", 5)
	v.SetDefault("tools.web_search.summarize", false)
	v.SetDefault("tools.web_search.timeout_seconds", 10)

	v.SetDefault("storage.driver", "sqlite3")
	v.SetDefault("storage.path", "./assistant.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.channel", "assistant_notifications")

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.api_key", "")

	v.SetDefault("speech.enabled", false)
	v.SetDefault("speech.piper_binary", "piper")
	v.SetDefault("speech.model_path", "")
	v.SetDefault("speech.output_dir", "./audio")

	v.SetDefault("log.level", "info")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.service_name", "backend-go-assistant")
}

// Load reads the YAML file at path (missing file is fine), applies ASSISTANT_* env
// overrides and defaults, then validates the result.
func Load(path string) (Config, error) {
	return LoadWith(viper.New(), path)
}

func LoadWith(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the runtime cannot work with. Planner mode is checked by
// the planner factory so an unknown mode surfaces there.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("unsupported storage.driver=%q (supported: sqlite3, sqlite)", c.Storage.Driver)
	}
	if c.Planner.TimeoutMS <= 0 {
		return fmt.Errorf("planner.timeout_ms must be positive, got %d", c.Planner.TimeoutMS)
	}
	if c.Orchestrator.SummaryTrigger <= 0 {
		return fmt.Errorf("orchestrator.summary_trigger must be positive, got %d", c.Orchestrator.SummaryTrigger)
	}
	if c.Orchestrator.HistoryLimit < 0 || c.Orchestrator.MemoryLimit < 0 {
		return errors.New("orchestrator history_limit and memory_limit must not be negative")
	}
	return nil
}

// SetConfigFile bypasses viper's search path, so a missing file shows up as a
// plain fs error instead of ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
