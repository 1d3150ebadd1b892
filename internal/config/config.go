package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// global configuration structure
type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Moderation ModerationConfig `mapstructure:"moderation"`
}

// Telegram bot configuration
type BotConfig struct {
	Token   string        `mapstructure:"token"`
	OwnerID int64         `mapstructure:"owner_id"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

// webhook server configuration
type WebhookConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ListenPort  string `mapstructure:"listen_port"`
	DebugPath   string `mapstructure:"debug_path"`
	MetricsPath string `mapstructure:"metrics_path"`
	CertFile    string `mapstructure:"cert_file"`
	KeyFile     string `mapstructure:"key_file"`
}

// audit mirror destinations for the forensic log
type AuditConfig struct {
	ChatID     int64  `mapstructure:"chat_id"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// logging configuration
type LoggerConfig struct {
	Directory string            `mapstructure:"directory"`
	Rotation  LogRotationConfig `mapstructure:"rotation"`
	Level     string            `mapstructure:"level"`
}

// log rotation settings
type LogRotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
}

// optional redis backend for rolling counters
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// moderation engine settings; these are the tenant-wide defaults, individual
// tenants can override a subset through the /configure command
type ModerationConfig struct {
	Weights                RiskWeights     `mapstructure:"weights"`
	YoungAccountDays       int             `mapstructure:"young_account_days"`
	ActivationThreshold    float64         `mapstructure:"activation_threshold"`
	ZeroToleranceThreshold float64         `mapstructure:"zero_tolerance_threshold"`
	TimeoutDuration        time.Duration   `mapstructure:"timeout_duration"`
	QuarantineDuration     time.Duration   `mapstructure:"quarantine_duration"`
	QuarantineMax          time.Duration   `mapstructure:"quarantine_max"`
	SimilarityThreshold    float64         `mapstructure:"similarity_threshold"`
	VerdictStep            float64         `mapstructure:"verdict_step"`
	Lockdown               LockdownConfig  `mapstructure:"lockdown"`
	RateLimits             RateLimitConfig `mapstructure:"rate_limits"`
	Retry                  RetryConfig     `mapstructure:"retry"`
}

// weights for the risk score combination, expected to sum to roughly 1.0
type RiskWeights struct {
	Confidence float64 `mapstructure:"confidence"`
	AccountAge float64 `mapstructure:"account_age"`
	Role       float64 `mapstructure:"role"`
	History    float64 `mapstructure:"history"`
	Context    float64 `mapstructure:"context"`
}

// emergency lockdown trip settings
type LockdownConfig struct {
	Threshold int64         `mapstructure:"threshold"`
	Window    time.Duration `mapstructure:"window"`
}

// per-category outbound action budgets, in calls per minute
type RateLimitConfig struct {
	Delete   float64 `mapstructure:"delete"`
	Timeout  float64 `mapstructure:"timeout"`
	Ban      float64 `mapstructure:"ban"`
	RoleEdit float64 `mapstructure:"role_edit"`
	Message  float64 `mapstructure:"message"`
}

// retry policy for transient platform errors
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	log.Printf("Using config file: %s", v.ConfigFileUsed())

	// Unmarshal configuration
	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		log.Fatal("Configuration not initialized, call Load() first")
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.webhook.listen_port", "8443")
	v.SetDefault("bot.webhook.debug_path", "/debug")
	v.SetDefault("bot.webhook.metrics_path", "/metrics")
	v.SetDefault("bot.webhook.cert_file", "")
	v.SetDefault("bot.webhook.key_file", "")

	v.SetDefault("logger.directory", "logs")
	v.SetDefault("logger.rotation.max_size", 10)
	v.SetDefault("logger.rotation.max_backups", 30)
	v.SetDefault("logger.rotation.max_age", 90)
	v.SetDefault("logger.rotation.compress", true)
	v.SetDefault("logger.level", "INFO")

	v.SetDefault("database.enabled", false)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")

	v.SetDefault("moderation.weights.confidence", 0.45)
	v.SetDefault("moderation.weights.account_age", 0.15)
	v.SetDefault("moderation.weights.role", 0.10)
	v.SetDefault("moderation.weights.history", 0.20)
	v.SetDefault("moderation.weights.context", 0.10)
	v.SetDefault("moderation.young_account_days", 7)
	v.SetDefault("moderation.activation_threshold", 0.35)
	v.SetDefault("moderation.zero_tolerance_threshold", 0.85)
	v.SetDefault("moderation.timeout_duration", time.Hour)
	v.SetDefault("moderation.quarantine_duration", 24*time.Hour)
	v.SetDefault("moderation.quarantine_max", 28*24*time.Hour)
	v.SetDefault("moderation.similarity_threshold", 0.30)
	v.SetDefault("moderation.verdict_step", 0.05)
	v.SetDefault("moderation.lockdown.threshold", 3)
	v.SetDefault("moderation.lockdown.window", time.Minute)
	v.SetDefault("moderation.rate_limits.delete", 20)
	v.SetDefault("moderation.rate_limits.timeout", 10)
	v.SetDefault("moderation.rate_limits.ban", 5)
	v.SetDefault("moderation.rate_limits.role_edit", 10)
	v.SetDefault("moderation.rate_limits.message", 15)
	v.SetDefault("moderation.retry.max_attempts", 4)
	v.SetDefault("moderation.retry.base_delay", 500*time.Millisecond)
}
