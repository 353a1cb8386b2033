// Package config loads gateway configuration from config.yaml with
// environment variable overrides. Secrets come from the environment only.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for carelens-engine.
// Environment variables always override YAML values for fields that support
// both. Secrets (warehouse password, LLM key, admin key) are env-only.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// AdminAPIKey guards the admin endpoints. When empty the server runs in
	// development mode and accepts all callers.
	AdminAPIKey string `yaml:"-" env:"ADMIN_API_KEY"`

	// AnalystAPIKey and PublicAPIKey admit callers at reduced access levels.
	// Either may be left unset to disable that role.
	AnalystAPIKey string `yaml:"-" env:"ANALYST_API_KEY"`
	PublicAPIKey  string `yaml:"-" env:"PUBLIC_API_KEY"`

	// CORSOriginsStr is a comma-separated list of allowed origins.
	CORSOriginsStr string   `yaml:"cors_origins" env:"CORS_ORIGINS" env-default:""`
	CORSOrigins    []string `yaml:"-"`

	// RequestTimeoutSeconds bounds one query request end to end, across
	// every LLM and warehouse call it makes.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS" env-default:"60"`

	Warehouse    WarehouseConfig    `yaml:"warehouse"`
	LLM          LLMConfig          `yaml:"llm"`
	Conversation ConversationConfig `yaml:"conversation"`
	Results      ResultsConfig      `yaml:"results"`
	Features     FeatureConfig      `yaml:"features"`
	Feedback     FeedbackConfig     `yaml:"feedback"`
}

// WarehouseConfig holds the read-only claims warehouse connection settings.
type WarehouseConfig struct {
	Dialect            string `yaml:"dialect" env:"WAREHOUSE_DIALECT" env-default:"postgres"`
	Host               string `yaml:"host" env:"WAREHOUSE_HOST" env-default:"localhost"`
	Port               int    `yaml:"port" env:"WAREHOUSE_PORT" env-default:"5432"`
	User               string `yaml:"user" env:"WAREHOUSE_USER" env-default:"carelens_ro"`
	Password           string `yaml:"-" env:"WAREHOUSE_PASSWORD"` // Secret - not in YAML
	Database           string `yaml:"database" env:"WAREHOUSE_DATABASE" env-default:"claims"`
	SSLMode            string `yaml:"ssl_mode" env:"WAREHOUSE_SSLMODE" env-default:"disable"`
	MaxConnections     int32  `yaml:"max_connections" env:"WAREHOUSE_MAX_CONNECTIONS" env-default:"10"`
	StatementTimeoutMS int    `yaml:"statement_timeout_ms" env:"WAREHOUSE_STATEMENT_TIMEOUT_MS" env-default:"15000"`
}

// LLMConfig holds the completion oracle settings.
type LLMConfig struct {
	// Provider selects the upstream API shape: "openai" or "anthropic".
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL        string  `yaml:"base_url" env:"LLM_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey         string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	TimeoutSeconds int `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"30"`
	MaxTokens      int `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	// Temperature is the sampling temperature for SQL generation. Routing,
	// insight, and chat calls pin their own temperatures.
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.2"`
}

// ConversationConfig bounds the in-memory conversation store.
type ConversationConfig struct {
	HistoryCap int `yaml:"history_cap" env:"CONVERSATION_HISTORY_CAP" env-default:"40"`
	TTLMinutes int `yaml:"ttl_minutes" env:"CONVERSATION_TTL_MINUTES" env-default:"60"`
}

// ResultsConfig bounds query results and controls suppression detection.
type ResultsConfig struct {
	RowCap int `yaml:"row_cap" env:"RESULTS_ROW_CAP" env-default:"500"`

	// SuppressionKeywordsStr names the column-name fragments that mark a
	// column as count-flavoured for small-cell suppression.
	SuppressionKeywordsStr string   `yaml:"suppression_keywords" env:"RESULTS_SUPPRESSION_KEYWORDS" env-default:"count,total,num"`
	SuppressionKeywords    []string `yaml:"-"`
}

// FeatureConfig holds feature flags.
type FeatureConfig struct {
	// GroundedTemplates enables the curated question-to-SQL template path
	// that bypasses the LLM on close matches.
	GroundedTemplates bool `yaml:"grounded_templates" env:"FEATURE_GROUNDED_TEMPLATES" env-default:"true"`
	// TemplatesPath optionally names a YAML file of extra grounded templates.
	TemplatesPath string `yaml:"templates_path" env:"FEATURE_TEMPLATES_PATH" env-default:""`
	// LegacyFallback enables the deterministic narrative used when the LLM
	// is unavailable or its output fails grounding during insight
	// generation. When disabled those responses carry no summary.
	LegacyFallback bool `yaml:"legacy_fallback" env:"FEATURE_LEGACY_FALLBACK" env-default:"true"`
}

// FeedbackConfig controls the optional append-only feedback store.
type FeedbackConfig struct {
	Enabled bool   `yaml:"enabled" env:"FEEDBACK_ENABLED" env-default:"false"`
	Dir     string `yaml:"dir" env:"FEEDBACK_DIR" env-default:"./feedback"`
}

// Load reads configuration from config.yaml with environment overrides. The
// YAML file is optional; a missing file falls back to environment-only
// loading so containerized deployments need no config file.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.parseComplexFields()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) parseComplexFields() {
	c.CORSOrigins = splitAndTrim(c.CORSOriginsStr)
	c.Results.SuppressionKeywords = splitAndTrim(c.Results.SuppressionKeywordsStr)
}

func (c *Config) validate() error {
	if c.Warehouse.Dialect != "postgres" {
		return fmt.Errorf("unsupported warehouse dialect %q", c.Warehouse.Dialect)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.Results.RowCap <= 0 {
		return fmt.Errorf("results row_cap must be positive")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive")
	}
	if c.Conversation.HistoryCap <= 0 {
		return fmt.Errorf("conversation history_cap must be positive")
	}
	return nil
}

// DevelopmentMode reports whether authentication is disabled because no
// admin API key is configured.
func (c *Config) DevelopmentMode() bool {
	return c.AdminAPIKey == ""
}

// ConnectionString returns a PostgreSQL DSN for the warehouse.
func (c *WarehouseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
