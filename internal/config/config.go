// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	LLM       LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	Generator GeneratorConfig `mapstructure:"generator" yaml:"generator"`
	Oracle    OracleConfig    `mapstructure:"oracle" yaml:"oracle"`
	Brain     BrainConfig     `mapstructure:"brain" yaml:"brain"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Genetic   GeneticConfig   `mapstructure:"genetic" yaml:"genetic"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
	ProviderOllama LLMProvider = "ollama"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"api_key"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// GeneratorConfig controls how prompts are turned into candidate tests.
type GeneratorConfig struct {
	// Tier is "fast" or "powerful".
	Tier        string  `mapstructure:"tier" yaml:"tier"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
	// RateLimit is the sustained request rate in requests per second.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

// OracleConfig configures the sandboxed coverage run.
type OracleConfig struct {
	GoBinary       string        `mapstructure:"go_binary" yaml:"go_binary"`
	GoVersion      string        `mapstructure:"go_version" yaml:"go_version"`
	SandboxRoot    string        `mapstructure:"sandbox_root" yaml:"sandbox_root"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	KeepSandbox    bool          `mapstructure:"keep_sandbox" yaml:"keep_sandbox"`
	MaxOutputBytes int64         `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
}

// BrainConfig configures the Q-learning brain and where its table lives.
type BrainConfig struct {
	// Store is one of "file", "memory", "sqlite" or "postgres".
	Store          string  `mapstructure:"store" yaml:"store"`
	Path           string  `mapstructure:"path" yaml:"path"`
	LearningRate   float64 `mapstructure:"learning_rate" yaml:"learning_rate"`
	DiscountFactor float64 `mapstructure:"discount_factor" yaml:"discount_factor"`
	// ExploitationRate is the probability of acting greedily.
	ExploitationRate float64 `mapstructure:"exploitation_rate" yaml:"exploitation_rate"`
	WriteThrough     bool    `mapstructure:"write_through" yaml:"write_through"`
	Seed             int64   `mapstructure:"seed" yaml:"seed"`
}

// AgentConfig holds settings for the reinforcement-learning agent.
type AgentConfig struct {
	MaxRetries int              `mapstructure:"max_retries" yaml:"max_retries"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds" yaml:"thresholds"`
	Rewards    RewardsConfig    `mapstructure:"rewards" yaml:"rewards"`
}

// ThresholdsConfig holds the exclusive upper bounds of the coverage bands.
type ThresholdsConfig struct {
	VeryLow float64 `mapstructure:"very_low" yaml:"very_low"`
	Low     float64 `mapstructure:"low" yaml:"low"`
	Medium  float64 `mapstructure:"medium" yaml:"medium"`
}

// RewardsConfig holds the reward shaping constants.
type RewardsConfig struct {
	Error         float64 `mapstructure:"error" yaml:"error"`
	TestFailure   float64 `mapstructure:"test_failure" yaml:"test_failure"`
	Perfect       float64 `mapstructure:"perfect" yaml:"perfect"`
	PerfectBonus  float64 `mapstructure:"perfect_bonus" yaml:"perfect_bonus"`
	ProgressScale float64 `mapstructure:"progress_scale" yaml:"progress_scale"`
	Stall         float64 `mapstructure:"stall" yaml:"stall"`
	Regression    float64 `mapstructure:"regression" yaml:"regression"`
}

// GeneticConfig holds settings for the genetic optimizer.
type GeneticConfig struct {
	PopulationSize int     `mapstructure:"population_size" yaml:"population_size"`
	Generations    int     `mapstructure:"generations" yaml:"generations"`
	Survivors      int     `mapstructure:"survivors" yaml:"survivors"`
	CrossoverRate  float64 `mapstructure:"crossover_rate" yaml:"crossover_rate"`
	Penalty        float64 `mapstructure:"penalty" yaml:"penalty"`
	Parallelism    int     `mapstructure:"parallelism" yaml:"parallelism"`
	Seed           int64   `mapstructure:"seed" yaml:"seed"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// HistoryConfig toggles persistence of finished runs.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "covergen")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-pro")
	v.SetDefault("llm.models.gemini-flash.provider", string(ProviderGemini))
	v.SetDefault("llm.models.gemini-flash.model", "gemini-2.5-flash")
	v.SetDefault("llm.models.gemini-flash.api_timeout", "2m")
	v.SetDefault("llm.models.gemini-pro.provider", string(ProviderGemini))
	v.SetDefault("llm.models.gemini-pro.model", "gemini-2.5-pro")
	v.SetDefault("llm.models.gemini-pro.api_timeout", "3m")

	// -- Generator --
	v.SetDefault("generator.tier", "powerful")
	v.SetDefault("generator.temperature", 0.2)
	v.SetDefault("generator.rate_limit", 1.0)
	v.SetDefault("generator.burst", 1)

	// -- Oracle --
	v.SetDefault("oracle.go_binary", "go")
	v.SetDefault("oracle.go_version", "1.21")
	v.SetDefault("oracle.sandbox_root", "")
	v.SetDefault("oracle.timeout", "2m")
	v.SetDefault("oracle.keep_sandbox", false)
	v.SetDefault("oracle.max_output_bytes", 1<<20)

	// -- Brain --
	v.SetDefault("brain.store", "file")
	v.SetDefault("brain.path", "q_table.json")
	v.SetDefault("brain.learning_rate", 0.1)
	v.SetDefault("brain.discount_factor", 0.9)
	v.SetDefault("brain.exploitation_rate", 0.9)
	v.SetDefault("brain.write_through", true)
	v.SetDefault("brain.seed", 0)

	// -- Agent --
	v.SetDefault("agent.max_retries", 5)
	v.SetDefault("agent.thresholds.very_low", 20.0)
	v.SetDefault("agent.thresholds.low", 50.0)
	v.SetDefault("agent.thresholds.medium", 80.0)
	v.SetDefault("agent.rewards.error", -20.0)
	v.SetDefault("agent.rewards.test_failure", -10.0)
	v.SetDefault("agent.rewards.perfect", 100.0)
	v.SetDefault("agent.rewards.perfect_bonus", 10.0)
	v.SetDefault("agent.rewards.progress_scale", 2.0)
	v.SetDefault("agent.rewards.stall", -2.0)
	v.SetDefault("agent.rewards.regression", -50.0)

	// -- Genetic --
	v.SetDefault("genetic.population_size", 4)
	v.SetDefault("genetic.generations", 3)
	v.SetDefault("genetic.survivors", 2)
	v.SetDefault("genetic.crossover_rate", 0.4)
	v.SetDefault("genetic.penalty", -100.0)
	v.SetDefault("genetic.parallelism", 1)
	v.SetDefault("genetic.seed", 0)

	// -- Database / History / Metrics --
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("history.enabled", false)
	v.SetDefault("metrics.textfile", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "COVERGEN_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Keys normally come from the environment rather than the config file.
	for name, m := range cfg.LLM.Models {
		if m.APIKey == "" {
			m.APIKey = apiKeyFromEnv(m.Provider)
			cfg.LLM.Models[name] = m
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// apiKeyFromEnv returns the first non-empty key variable for the provider.
func apiKeyFromEnv(p LLMProvider) string {
	var names []string
	switch p {
	case ProviderGemini:
		names = []string{"COVERGEN_GEMINI_API_KEY", "GEMINI_API_KEY"}
	case ProviderOpenAI:
		names = []string{"COVERGEN_OPENAI_API_KEY", "OPENAI_API_KEY"}
	}
	for _, n := range names {
		if k := os.Getenv(n); k != "" {
			return k
		}
	}
	return ""
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Generator.Validate(); err != nil {
		return fmt.Errorf("generator configuration invalid: %w", err)
	}
	if err := c.Oracle.Validate(); err != nil {
		return fmt.Errorf("oracle configuration invalid: %w", err)
	}
	if err := c.Brain.Validate(); err != nil {
		return fmt.Errorf("brain configuration invalid: %w", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.Genetic.Validate(); err != nil {
		return fmt.Errorf("genetic configuration invalid: %w", err)
	}
	if (c.Brain.Store == "postgres" || c.History.Enabled) && c.Database.URL == "" {
		return fmt.Errorf("database.url is required when brain.store is postgres or history is enabled")
	}
	return nil
}

// Validate checks the GeneratorConfig settings.
func (g *GeneratorConfig) Validate() error {
	if g.Tier != "fast" && g.Tier != "powerful" {
		return fmt.Errorf("tier must be 'fast' or 'powerful', got %q", g.Tier)
	}
	if g.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	if g.Burst <= 0 {
		return fmt.Errorf("burst must be a positive integer")
	}
	return nil
}

// Validate checks the OracleConfig settings.
func (o *OracleConfig) Validate() error {
	if o.GoBinary == "" {
		return fmt.Errorf("go_binary is required")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if o.MaxOutputBytes <= 0 {
		return fmt.Errorf("max_output_bytes must be positive")
	}
	return nil
}

// Validate checks the BrainConfig settings.
func (b *BrainConfig) Validate() error {
	switch b.Store {
	case "memory", "postgres":
	case "file", "sqlite":
		if b.Path == "" {
			return fmt.Errorf("path is required for the %s store", b.Store)
		}
	default:
		return fmt.Errorf("unsupported store type: %s", b.Store)
	}
	if b.LearningRate <= 0 || b.LearningRate > 1 {
		return fmt.Errorf("learning_rate must be in (0, 1]")
	}
	if b.DiscountFactor < 0 || b.DiscountFactor > 1 {
		return fmt.Errorf("discount_factor must be in [0, 1]")
	}
	if b.ExploitationRate < 0 || b.ExploitationRate > 1 {
		return fmt.Errorf("exploitation_rate must be in [0, 1]")
	}
	return nil
}

// Validate checks the AgentConfig settings.
func (a *AgentConfig) Validate() error {
	if a.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be greater than 0")
	}
	t := a.Thresholds
	if !(0 < t.VeryLow && t.VeryLow < t.Low && t.Low < t.Medium && t.Medium < 100) {
		return fmt.Errorf("thresholds must satisfy 0 < very_low < low < medium < 100")
	}
	r := a.Rewards
	if !(r.Error < r.TestFailure && r.TestFailure < 0) {
		return fmt.Errorf("rewards must satisfy error < test_failure < 0")
	}
	if !(r.Regression < r.Stall && r.Stall <= 0) {
		return fmt.Errorf("rewards must satisfy regression < stall <= 0")
	}
	if r.Perfect <= 0 || r.ProgressScale <= 0 {
		return fmt.Errorf("perfect and progress_scale rewards must be positive")
	}
	return nil
}

// Validate checks the GeneticConfig settings.
func (g *GeneticConfig) Validate() error {
	if g.PopulationSize < 2 {
		return fmt.Errorf("population_size must be at least 2")
	}
	if g.Generations <= 0 {
		return fmt.Errorf("generations must be greater than 0")
	}
	if g.Survivors <= 0 || g.Survivors > g.PopulationSize {
		return fmt.Errorf("survivors must be between 1 and population_size")
	}
	if g.CrossoverRate < 0 || g.CrossoverRate > 1 {
		return fmt.Errorf("crossover_rate must be between 0.0 and 1.0")
	}
	if g.Penalty >= 0 {
		return fmt.Errorf("penalty must be negative")
	}
	if g.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be a positive integer")
	}
	return nil
}
