package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/username/threadline/internal/pkg/configutil"
)

// Responder providers
const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Responder ResponderConfig `mapstructure:"responder"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	CORSEnabled     bool          `mapstructure:"cors_enabled"`
	SendRateLimit   float64       `mapstructure:"send_rate_limit"` // sends per second, 0 disables
	SendBurst       int           `mapstructure:"send_burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// NATSConfig holds NATS configuration. An empty URL selects the in-process bus.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// DatabaseConfig holds the execution ledger configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ResponderConfig selects and tunes the external responder
type ResponderConfig struct {
	Provider       string        `mapstructure:"provider"`
	SubmitDelay    time.Duration `mapstructure:"submit_delay"`
	MinResultDelay time.Duration `mapstructure:"min_result_delay"`
	MaxResultDelay time.Duration `mapstructure:"max_result_delay"`
	FailureRate    float64       `mapstructure:"failure_rate"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
	AwaitTimeout   time.Duration `mapstructure:"await_timeout"` // 0 waits forever
}

// LLMConfig holds Language Model configuration
type LLMConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	// CountTokens budgets replies with tiktoken; the encodings are downloaded on first use
	CountTokens bool `mapstructure:"count_tokens"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			CORSEnabled:     true,
			SendRateLimit:   5,
			SendBurst:       10,
			ShutdownTimeout: 30 * time.Second,
		},
		NATS: NATSConfig{
			URL: "",
		},
		Database: DatabaseConfig{
			Path: "./data/threadline.db",
		},
		Responder: ResponderConfig{
			Provider:       ProviderMock,
			SubmitDelay:    500 * time.Millisecond,
			MinResultDelay: 1 * time.Second,
			MaxResultDelay: 4 * time.Second,
			FailureRate:    0,
			PollInterval:   250 * time.Millisecond,
			SubmitTimeout:  30 * time.Second,
			AwaitTimeout:   2 * time.Minute,
		},
		LLM: LLMConfig{
			BaseURL:      "http://localhost:11434/v1",
			Model:        "llama3.2",
			MaxTokens:    4096,
			Temperature:  0.7,
			SystemPrompt: "You are a helpful AI assistant. Respond clearly and concisely to user questions.",
			CountTokens:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from files and environment variables
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./deployments/config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("THREADLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		// Config file not found is okay, we'll use defaults + env vars
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	return cfg, nil
}

// bindEnv registers every known key so AutomaticEnv can override values
// that are absent from the config file.
func bindEnv(v *viper.Viper) {
	keys := []string{
		"server.port", "server.host", "server.cors_enabled", "server.send_rate_limit",
		"server.send_burst", "server.shutdown_timeout",
		"nats.url",
		"database.path",
		"responder.provider", "responder.submit_delay", "responder.min_result_delay",
		"responder.max_result_delay", "responder.failure_rate", "responder.poll_interval",
		"responder.submit_timeout", "responder.await_timeout",
		"llm.base_url", "llm.api_key", "llm.model", "llm.max_tokens", "llm.temperature",
		"llm.system_prompt", "llm.count_tokens",
		"logging.level", "logging.format",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := configutil.NewValidator().
		RequiredString("server.host", c.Server.Host).
		IntRange("server.port", c.Server.Port, 1, 65535).
		FloatRange("server.send_rate_limit", c.Server.SendRateLimit, 0, 10000).
		NonNegativeDuration("server.shutdown_timeout", c.Server.ShutdownTimeout).
		ValidateURLScheme("nats.url", c.NATS.URL, "nats", "tls").
		ValidateFilePath("database.path", c.Database.Path).
		OneOf("responder.provider", c.Responder.Provider, []string{ProviderMock, ProviderOpenAI}).
		NonNegativeDuration("responder.submit_delay", c.Responder.SubmitDelay).
		NonNegativeDuration("responder.min_result_delay", c.Responder.MinResultDelay).
		DurationOrder("responder.max_result_delay", c.Responder.MinResultDelay, c.Responder.MaxResultDelay).
		FloatRange("responder.failure_rate", c.Responder.FailureRate, 0, 1).
		RequiredDuration("responder.poll_interval", c.Responder.PollInterval).
		NonNegativeDuration("responder.submit_timeout", c.Responder.SubmitTimeout).
		NonNegativeDuration("responder.await_timeout", c.Responder.AwaitTimeout).
		OneOf("logging.level", strings.ToLower(c.Logging.Level), []string{"debug", "info", "warn", "error"}).
		OneOf("logging.format", c.Logging.Format, []string{"text", "json"})

	if c.Responder.Provider == ProviderOpenAI {
		v.RequiredString("llm.base_url", c.LLM.BaseURL).
			ValidateURL("llm.base_url", c.LLM.BaseURL).
			RequiredString("llm.model", c.LLM.Model).
			RequiredInt("llm.max_tokens", c.LLM.MaxTokens).
			FloatRange("llm.temperature", c.LLM.Temperature, 0, 2)
	}

	return v.Result()
}
