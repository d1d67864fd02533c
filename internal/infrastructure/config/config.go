// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

const (
	// DefaultConfigDir is the directory name for canon configuration.
	DefaultConfigDir = ".canon"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultProjectsFile is the default projects registry file name.
	DefaultProjectsFile = "projects.yaml"
	// DefaultSQLiteFile is the database file created inside the config directory.
	DefaultSQLiteFile = "canon.db"
	// DefaultDetectTimeout bounds one conflict detection call.
	DefaultDetectTimeout = 30 * time.Second
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var (
	// reNonAlphanumeric matches characters that aren't alphanumeric or underscore.
	reNonAlphanumeric = regexp.MustCompile(`[^a-z0-9_]`)
	// reMultipleUnderscores matches consecutive underscores.
	reMultipleUnderscores = regexp.MustCompile(`_+`)
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	LLM      LLMConfig      `yaml:"llm,omitempty"`
	Embedder EmbedderConfig `yaml:"embedder,omitempty"`
	Qdrant   QdrantConfig   `yaml:"qdrant,omitempty"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Search   SearchConfig   `yaml:"search,omitempty"`
	Canon    CanonConfig    `yaml:"canon,omitempty"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// LLMConfig holds configuration for the text generation provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float32 `yaml:"temperature,omitempty"`
}

// EmbedderConfig holds configuration for the embedding provider.
type EmbedderConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// QdrantConfig holds configuration for the Qdrant vector database.
type QdrantConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite canon store.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database. Relative paths are
	// resolved against the project base path.
	Path string `yaml:"path,omitempty"`
}

// SearchConfig toggles semantic canon search.
type SearchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CanonConfig holds conflict detection settings.
type CanonConfig struct {
	Enforcement   string        `yaml:"enforcement,omitempty"`
	DetectTimeout time.Duration `yaml:"detect_timeout,omitempty"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// envOverrides lists the environment variables read on load.
type envOverrides struct {
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	QdrantAPIKey    string        `env:"QDRANT_API_KEY"`
	Enforcement     string        `env:"CANON_ENFORCEMENT"`
	DetectTimeout   time.Duration `env:"CANON_DETECT_TIMEOUT"`
	LogLevel        string        `env:"CANON_LOG_LEVEL"`
	SQLitePath      string        `env:"CANON_SQLITE_PATH"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			MaxTokens:   4096,
			Temperature: 0.1,
		},
		Embedder: EmbedderConfig{
			Provider: ProviderOpenAI,
			Model:    "text-embedding-3-small",
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "canon_entries",
		},
		SQLite: SQLiteConfig{
			Path: filepath.Join(DefaultConfigDir, DefaultSQLiteFile),
		},
		Canon: CanonConfig{
			Enforcement:   string(entities.EnforcementStrict),
			DetectTimeout: DefaultDetectTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the .canon directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'canon init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. API keys fill in
// only when the file leaves them empty; CANON_* variables always win.
func (c *Config) applyEnvOverrides() error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if ov.OpenAIAPIKey != "" {
		if c.LLM.APIKey == "" && c.LLM.Provider == ProviderOpenAI {
			c.LLM.APIKey = ov.OpenAIAPIKey
		}
		if c.Embedder.APIKey == "" {
			c.Embedder.APIKey = ov.OpenAIAPIKey
		}
	}
	if ov.AnthropicAPIKey != "" && c.LLM.APIKey == "" && c.LLM.Provider == ProviderAnthropic {
		c.LLM.APIKey = ov.AnthropicAPIKey
	}
	if ov.QdrantAPIKey != "" && c.Qdrant.APIKey == "" {
		c.Qdrant.APIKey = ov.QdrantAPIKey
	}
	if ov.Enforcement != "" {
		c.Canon.Enforcement = ov.Enforcement
	}
	if ov.DetectTimeout > 0 {
		c.Canon.DetectTimeout = ov.DetectTimeout
	}
	if ov.LogLevel != "" {
		c.Log.Level = ov.LogLevel
	}
	if ov.SQLitePath != "" {
		c.SQLite.Path = ov.SQLitePath
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("unsupported llm provider %q", c.LLM.Provider))
	}
	if c.Embedder.Provider != ProviderOpenAI {
		errs = append(errs, fmt.Errorf("unsupported embedder provider %q", c.Embedder.Provider))
	}
	if !entities.EnforcementLevel(c.Canon.Enforcement).IsValid() {
		errs = append(errs, fmt.Errorf("unknown enforcement level %q", c.Canon.Enforcement))
	}
	if c.Canon.DetectTimeout <= 0 {
		errs = append(errs, errors.New("canon.detect_timeout must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.SQLite.Path == "" {
		errs = append(errs, errors.New("sqlite.path is required"))
	}
	return errors.Join(errs...)
}

// EnforcementLevel returns the configured default enforcement level.
func (c *Config) EnforcementLevel() entities.EnforcementLevel {
	return entities.EnforcementLevel(c.Canon.Enforcement)
}

// SQLitePath resolves the database path against basePath.
func (c *Config) SQLitePath(basePath string) string {
	if c.SQLite.Path == ":memory:" || filepath.IsAbs(c.SQLite.Path) {
		return c.SQLite.Path
	}
	return filepath.Join(basePath, c.SQLite.Path)
}

// ConfigDir returns the path to the .canon config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// ProjectsFilePath returns the path to the projects registry.
func ProjectsFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultProjectsFile)
}

// SanitizeProjectName converts a project name to a stable project identifier.
func SanitizeProjectName(name string) string {
	// Convert to lowercase
	name = strings.ToLower(name)

	// Replace spaces and hyphens with underscores
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	// Remove any characters that aren't alphanumeric or underscore
	name = reNonAlphanumeric.ReplaceAllString(name, "")

	// Remove consecutive underscores
	name = reMultipleUnderscores.ReplaceAllString(name, "_")

	// Trim leading/trailing underscores
	name = strings.Trim(name, "_")

	if name == "" {
		return "default"
	}

	return name
}
