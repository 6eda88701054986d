package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/vizloom/internal/utils"
)

const (
	dirName    = ".vizloom"
	envPrefix  = "VIZLOOM"
	configName = "config"
)

// Global configuration structure.
type Global struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	VizMaxTokens    int     `mapstructure:"viz_max_tokens" yaml:"viz_max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`

	// Prompt rendering
	Language      string `mapstructure:"language" yaml:"language"`
	SummaryDetail string `mapstructure:"summary_detail" yaml:"summary_detail"`

	// Generated-code execution and outputs
	ExecTimeoutSec int    `mapstructure:"exec_timeout_sec" yaml:"exec_timeout_sec"`
	OutputDir      string `mapstructure:"output_dir" yaml:"output_dir"`

	// Run history
	HistoryDB      string `mapstructure:"history_db" yaml:"history_db"`
	HistoryEnabled bool   `mapstructure:"history_enabled" yaml:"history_enabled"`

	DashboardAddr string `mapstructure:"dashboard_addr" yaml:"dashboard_addr"`
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`

	// Models catalog auto-sync
	ModelsCatalogURL string `mapstructure:"models_catalog_url" yaml:"models_catalog_url"`
	ModelsAutoSync   bool   `mapstructure:"models_auto_sync" yaml:"models_auto_sync"`
	ModelsMerge      bool   `mapstructure:"models_merge" yaml:"models_merge"`
	ModelsProvider   string `mapstructure:"models_provider" yaml:"models_provider"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`
}

// providerKeyEnv lists the conventional credential variables consulted when
// api_key is unset.
var providerKeyEnv = map[string]string{
	"anthropic":  "ANTHROPIC_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"openai":     "OPENROUTER_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"google":     "GEMINI_API_KEY",
}

// KeyFor returns api_key, or the provider's conventional environment
// variable when api_key is empty.
func (c *Global) KeyFor(provider string) string {
	if c != nil && c.APIKey != "" {
		return c.APIKey
	}
	if provider == "" && c != nil {
		provider = c.DefaultProvider
	}
	if env, ok := providerKeyEnv[strings.ToLower(provider)]; ok {
		return os.Getenv(env)
	}
	return ""
}

// Dir returns ~/.vizloom.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// Save writes the configuration to cfgFile, or to ~/.vizloom/config.yaml
// when cfgFile is empty.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, configName+".yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("default_provider", "anthropic")
	v.SetDefault("default_model", "claude-3-5-sonnet-20241022")
	v.SetDefault("max_tokens", 2000)
	v.SetDefault("viz_max_tokens", 1500)
	v.SetDefault("temperature", 0.0)
	v.SetDefault("language", "en")
	v.SetDefault("summary_detail", "basic")
	v.SetDefault("exec_timeout_sec", 10)
	v.SetDefault("output_dir", filepath.Join(dir, "figures"))
	v.SetDefault("history_db", filepath.Join(dir, "history.db"))
	v.SetDefault("history_enabled", true)
	v.SetDefault("dashboard_addr", "127.0.0.1:8501")
	v.SetDefault("log_level", "info")
	v.SetDefault("models_auto_sync", false)
	v.SetDefault("models_merge", true)
	v.SetDefault("models_provider", "")
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v, dir)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		// a missing default file is fine; an explicit or broken one is not
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Validate rejects values the commands cannot work with.
func (c *Global) Validate() error {
	switch c.Language {
	case "en", "fr":
	default:
		return fmt.Errorf("language must be en or fr, got %q", c.Language)
	}
	switch c.SummaryDetail {
	case "basic", "extended":
	default:
		return fmt.Errorf("summary_detail must be basic or extended, got %q", c.SummaryDetail)
	}
	if c.MaxTokens <= 0 || c.VizMaxTokens <= 0 {
		return fmt.Errorf("max_tokens and viz_max_tokens must be positive")
	}
	if c.ExecTimeoutSec <= 0 {
		return fmt.Errorf("exec_timeout_sec must be positive")
	}
	return nil
}
