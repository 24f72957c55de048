// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	NLU           NLUConfig          `mapstructure:"nlu"`
	AI            AIConfig           `mapstructure:"ai"`
	Pricing       PricingConfig      `mapstructure:"pricing"`
	History       HistoryConfig      `mapstructure:"history"`
	Session       SessionConfig      `mapstructure:"session"`
	Dictionary    DictionaryConfig   `mapstructure:"dictionary"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds the HTTP listener settings: the conversation API on
// Address, metrics and health on MetricsAddress.
type ServerConfig struct {
	Address        string `mapstructure:"address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
	Enabled   bool     `mapstructure:"enabled"`
}

// --- NLU ---

// NLUConfig controls the hybrid rule/AI parse pipeline.
type NLUConfig struct {
	AIThreshold            float64 `mapstructure:"ai_threshold"`            // rule confidence below this triggers the AI call
	ClarificationThreshold float64 `mapstructure:"clarification_threshold"` // merged confidence below this asks for clarification
	LongTextRunes          int     `mapstructure:"long_text_runes"`         // texts longer than this with no products trigger the AI call
	IntentRegistryPath     string  `mapstructure:"intent_registry"`         // optional JSON intent table; empty uses the built-ins
}

// --- AI Provider ---

type AIConfig struct {
	Provider string             `mapstructure:"provider"` // "aliyun", "openai", or "" to disable
	Timeout  int                `mapstructure:"timeout"`  // milliseconds
	Aliyun   AliyunConfig       `mapstructure:"aliyun"`
	OpenAI   OpenAICompatConfig `mapstructure:"openai"`
}

type AliyunConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// OpenAICompatConfig covers any chat-completions compatible backend.
type OpenAICompatConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// --- Pricing ---

type PricingConfig struct {
	DefaultMargin    float64 `mapstructure:"default_margin"`    // markup applied when no rule matches
	HistoryWeight    float64 `mapstructure:"history_weight"`    // blend weight of historical weighted average
	ConfirmThreshold float64 `mapstructure:"confirm_threshold"` // quote confidence below this needs confirmation
	RuleCacheTTL     int     `mapstructure:"rule_cache_ttl"`    // seconds
}

// --- History Learning ---

type HistoryConfig struct {
	WindowDays       int     `mapstructure:"window_days"`
	HalfLifeDays     float64 `mapstructure:"half_life_days"`
	StalenessDays    int     `mapstructure:"staleness_days"`
	MinSampleSize    int     `mapstructure:"min_sample_size"`
	VolatilityKnee   float64 `mapstructure:"volatility_knee"` // stdDev/avg ratio above which confidence is reduced
	CacheTTL         int     `mapstructure:"cache_ttl"`       // seconds
}

// --- Session ---

type SessionConfig struct {
	Timeout       int `mapstructure:"timeout"`        // seconds of inactivity before eviction
	SweepInterval int `mapstructure:"sweep_interval"` // seconds between cleanup sweeps
	HistoryLimit  int `mapstructure:"history_limit"`  // capped dialogue turns kept per session
}

// --- Dictionary ---

type DictionaryConfig struct {
	RefreshInterval int `mapstructure:"refresh_interval"` // seconds between snapshot refreshes
}

// --- Logging ---

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// --- Notifications ---

// NotificationConfig gates the best-effort transaction receipt delivery.
type NotificationConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Region      string `mapstructure:"region"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
	EmailFrom   string `mapstructure:"email_from"`
	EmailTo     string `mapstructure:"email_to"`
}
