package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is built once at startup and handed to every constructor.
// Values come from CONFIG_FILE (yaml) first, then the environment (.env
// included) overrides them.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Database DatabaseConfig `yaml:"database"`
	Graph    GraphConfig    `yaml:"graph"`
	Redis    RedisConfig    `yaml:"redis"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type WebhookConfig struct {
	VerifyToken  string        `yaml:"verify_token"`
	AppSecret    string        `yaml:"app_secret"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Timeout      time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type GraphConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIVersion int           `yaml:"api_version"`
	Timeout    time.Duration `yaml:"timeout"`
	UploadsDir string        `yaml:"uploads_dir"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// Enabled is false when no address was configured; the cache then passes
// every read through to the database.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type AuditConfig struct {
	Dir          string   `yaml:"dir"`
	MinLevel     string   `yaml:"min_level"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroup   string   `yaml:"kafka_group"`
	AMQPURL      string   `yaml:"amqp_url"`
	AMQPQueue    string   `yaml:"amqp_queue"`

	// Retention is how long cmd/auditlog keeps daily files.
	Retention time.Duration `yaml:"retention"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Pretty     bool   `yaml:"pretty"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`

	// Stderr moves console output off stdout, for tools that print results.
	Stderr bool `yaml:"stderr"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Webhook: WebhookConfig{
			MaxBodyBytes: 1 << 20,
			Timeout:      30 * time.Second,
		},
		Graph: GraphConfig{
			BaseURL:    "https://graph.facebook.com",
			APIVersion: 22,
			Timeout:    10 * time.Second,
			UploadsDir: "uploads",
		},
		Redis: RedisConfig{
			CacheTTL: 5 * time.Minute,
			DedupTTL: 24 * time.Hour,
		},
		Audit: AuditConfig{
			Dir:        "logs",
			MinLevel:   "Trace",
			KafkaTopic: "comment-audit",
			KafkaGroup: "comment-audit-logger",
			AMQPQueue:  "comment_audit",
			Retention:  30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/moderator.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads configuration for the webhook server.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadForTools is Load without the webhook-only requirements, for the admin
// CLI and the audit consumer.
func LoadForTools() (*Config, error) {
	return load()
}

func load() (*Config, error) {
	// A missing .env is normal in containers; the platform environment is used.
	_ = godotenv.Load()

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "PORT")
	setString(&c.Webhook.VerifyToken, "VERIFY_TOKEN")
	setString(&c.Webhook.AppSecret, "FACEBOOK_APP_SECRET")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Graph.BaseURL, "GRAPH_BASE_URL")
	setString(&c.Graph.UploadsDir, "UPLOADS_DIR")
	setString(&c.Redis.Username, "REDIS_USERNAME")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Audit.Dir, "AUDIT_LOG_DIR")
	setString(&c.Audit.MinLevel, "AUDIT_MIN_LEVEL")
	setString(&c.Audit.KafkaTopic, "AUDIT_KAFKA_TOPIC")
	setString(&c.Audit.KafkaGroup, "AUDIT_KAFKA_GROUP")
	setString(&c.Audit.AMQPURL, "AUDIT_AMQP_URL")
	setString(&c.Audit.AMQPQueue, "AUDIT_AMQP_QUEUE")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.File, "LOG_FILE")

	// Same split host/port variables the dashboard cache uses.
	if host := strings.TrimSpace(os.Getenv("REDIS_HOST")); host != "" {
		port := firstNonEmpty(os.Getenv("REDIS_PORT"), "6379")
		c.Redis.Addr = host + ":" + strings.TrimSpace(port)
	}

	if raw := strings.TrimSpace(os.Getenv("AUDIT_KAFKA_BROKERS")); raw != "" {
		c.Audit.KafkaBrokers = strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	}

	if v, ok := OptionalBool("LOG_PRETTY"); ok {
		c.Log.Pretty = v
	}

	var errs []error
	errs = append(errs,
		setDuration(&c.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT"),
		setDuration(&c.Webhook.Timeout, "WEBHOOK_TIMEOUT"),
		setDuration(&c.Graph.Timeout, "GRAPH_TIMEOUT"),
		setDuration(&c.Redis.CacheTTL, "REDIS_CACHE_TTL"),
		setDuration(&c.Redis.DedupTTL, "REDIS_DEDUP_TTL"),
		setDuration(&c.Audit.Retention, "AUDIT_RETENTION"),
		setInt(&c.Graph.APIVersion, "GRAPH_API_VERSION"),
		setInt64(&c.Webhook.MaxBodyBytes, "WEBHOOK_MAX_BODY_BYTES"),
	)
	return errors.Join(errs...)
}

func (c *Config) validate() error {
	var missing []string
	if c.Webhook.VerifyToken == "" {
		missing = append(missing, "VERIFY_TOKEN")
	}
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return errors.New("missing required env vars: " + strings.Join(missing, ", "))
	}
	if c.Graph.APIVersion <= 0 {
		return fmt.Errorf("invalid GRAPH_API_VERSION: %d", c.Graph.APIVersion)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// OptionalBool reads a bool env var and reports whether it was set to a
// parseable value.
func OptionalBool(name string) (bool, bool) {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return false, false
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, false
	}
	return b, true
}
