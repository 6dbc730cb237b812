// Package config loads the immutable runtime configuration once at
// startup (spec.md §6, §9 "no implicit global state"). Every other
// component receives it via constructor injection — there is no package
// level singleton here.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// QueueConfig is the concurrency/rate/deadline tuple for one named queue
// (spec.md §5).
type QueueConfig struct {
	Concurrency int
	RatePerSec  float64
	Deadline    time.Duration
}

// Config is the single immutable struct every component is constructed
// with. No component reads os.Getenv directly after LoadConfig returns.
type Config struct {
	Host       string
	Port       string
	NodeEnv    string // development | production | test
	LogLevel   string

	DatabaseURL string
	RedisURL    string

	JWTSecret     string
	WebhookSecret string // default shared secret, used when a source has no dedicated key:source pair
	APIKeys       map[string]string // source -> hmac secret, parsed from "key:source" pairs

	Moco  MocoConfig
	Slack SlackConfig
	SMTP  SMTPConfig

	FeatureMocoSync    bool
	FeatureSlackAlerts bool
	FeatureScoreDecay  bool

	RateLimitMax           int
	RateLimitTimeWindowMs  int

	Queues map[string]QueueConfig

	RuleCacheTTL time.Duration

	DecayScheduleLocalTime  string // "HH:MM", local time the decay job runs
	DigestScheduleLocalTime string // "HH:MM", workday-start local time

	ShutdownGrace time.Duration

	OutboundTimeout    time.Duration
	OutboundMaxRetries int
}

type MocoConfig struct {
	APIKey    string
	Subdomain string
	Enabled   bool
}

type SlackConfig struct {
	WebhookURL string
	BotToken   string
	Enabled    bool
}

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// Queue names, per spec.md §5.
const (
	QueueEvents        = "events"
	QueueRouting       = "routing"
	QueueSync          = "sync"
	QueueScheduled     = "scheduled"
	QueueNotifications = "notifications"
)

// LoadConfig reads every knob from the environment, applying the defaults
// from spec.md §5/§6, and fatals on a missing or invalid required secret.
func LoadConfig() *Config {
	cfg := &Config{
		Host:     getEnv("HOST", "0.0.0.0"),
		Port:     getEnv("PORT", "8080"),
		NodeEnv:  getEnv("NODE_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		APIKeys:       parseAPIKeys(getEnv("API_KEYS", "")),

		Moco: MocoConfig{
			APIKey:    getEnv("MOCO_API_KEY", ""),
			Subdomain: getEnv("MOCO_SUBDOMAIN", ""),
			Enabled:   getEnvBool("MOCO_ENABLED", false),
		},
		Slack: SlackConfig{
			WebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			BotToken:   getEnv("SLACK_BOT_TOKEN", ""),
			Enabled:    getEnvBool("SLACK_ENABLED", false),
		},
		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", "localhost"),
			Port:        getEnvInt("SMTP_PORT", 587),
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "leads@example.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Lead Pipeline"),
		},

		FeatureMocoSync:    getEnvBool("FEATURE_MOCO_SYNC", true),
		FeatureSlackAlerts: getEnvBool("FEATURE_SLACK_ALERTS", true),
		FeatureScoreDecay:  getEnvBool("FEATURE_SCORE_DECAY", true),

		RateLimitMax:          getEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitTimeWindowMs: getEnvInt("RATE_LIMIT_TIME_WINDOW_MS", 1000),

		RuleCacheTTL: time.Duration(getEnvInt("RULE_CACHE_TTL_SECONDS", 60)) * time.Second,

		DecayScheduleLocalTime:  getEnv("DECAY_SCHEDULE_TIME", "02:00"),
		DigestScheduleLocalTime: getEnv("DIGEST_SCHEDULE_TIME", "08:00"),

		ShutdownGrace: time.Duration(getEnvInt("SHUTDOWN_GRACE_SECONDS", 30)) * time.Second,

		OutboundTimeout:    time.Duration(getEnvInt("OUTBOUND_TIMEOUT_SECONDS", 10)) * time.Second,
		OutboundMaxRetries: getEnvInt("OUTBOUND_MAX_RETRIES", 2),
	}

	cfg.Queues = map[string]QueueConfig{
		QueueEvents: {
			Concurrency: getEnvInt("QUEUE_EVENTS_CONCURRENCY", 10),
			RatePerSec:  getEnvFloat("QUEUE_EVENTS_RATE", 100),
			Deadline:    time.Duration(getEnvInt("QUEUE_EVENTS_DEADLINE_SECONDS", 30)) * time.Second,
		},
		QueueRouting: {
			Concurrency: getEnvInt("QUEUE_ROUTING_CONCURRENCY", 5),
			RatePerSec:  getEnvFloat("QUEUE_ROUTING_RATE", 50),
			Deadline:    time.Duration(getEnvInt("QUEUE_ROUTING_DEADLINE_SECONDS", 15)) * time.Second,
		},
		QueueSync: {
			Concurrency: getEnvInt("QUEUE_SYNC_CONCURRENCY", 3),
			RatePerSec:  getEnvFloat("QUEUE_SYNC_RATE", 10),
			Deadline:    time.Duration(getEnvInt("QUEUE_SYNC_DEADLINE_SECONDS", 60)) * time.Second,
		},
		QueueScheduled: {
			Concurrency: getEnvInt("QUEUE_SCHEDULED_CONCURRENCY", 1),
			RatePerSec:  getEnvFloat("QUEUE_SCHEDULED_RATE", 1000),
			Deadline:    time.Duration(getEnvInt("QUEUE_SCHEDULED_DEADLINE_SECONDS", 600)) * time.Second,
		},
		QueueNotifications: {
			Concurrency: getEnvInt("QUEUE_NOTIFICATIONS_CONCURRENCY", 5),
			RatePerSec:  getEnvFloat("QUEUE_NOTIFICATIONS_RATE", 1000),
			Deadline:    time.Duration(getEnvInt("QUEUE_NOTIFICATIONS_DEADLINE_SECONDS", 30)) * time.Second,
		},
	}

	if cfg.NodeEnv != "test" {
		if len(cfg.JWTSecret) < 32 {
			log.Fatal("❌ JWT_SECRET must be at least 32 characters")
		}
		if cfg.WebhookSecret == "" && len(cfg.APIKeys) == 0 {
			log.Fatal("❌ WEBHOOK_SECRET or API_KEYS must be set")
		}
		if cfg.WebhookSecret != "" && len(cfg.WebhookSecret) < 16 {
			log.Fatal("❌ WEBHOOK_SECRET must be at least 16 characters")
		}
	}

	return cfg
}

// SecretForSource resolves the per-source HMAC secret, falling back to the
// default WebhookSecret when no "key:source" pair matches (spec.md §4.1).
func (c *Config) SecretForSource(source string) (string, bool) {
	if secret, ok := c.APIKeys[source]; ok {
		return secret, true
	}
	if c.WebhookSecret != "" {
		return c.WebhookSecret, true
	}
	return "", false
}

func (c *Config) IsDevelopment() bool { return c.NodeEnv == "development" }
func (c *Config) IsProduction() bool  { return c.NodeEnv == "production" }

func parseAPIKeys(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key, source := parts[0], parts[1]
		out[source] = key
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return defaultValue
}
