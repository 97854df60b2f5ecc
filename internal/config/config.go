// Package config loads service configuration from defaults, a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: ESCALATOR_DATABASE__URL sets database.url.
const EnvPrefix = "ESCALATOR_"

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	Redis         RedisConfig         `koanf:"redis"`
	Escalation    EscalationConfig    `koanf:"escalation"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RedisConfig enables the cross-replica tick lease.
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	LeaseKey string `koanf:"lease_key"`
}

// EscalationConfig controls the trigger and executor.
type EscalationConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Interval       time.Duration `koanf:"interval"`
	BatchSize      int           `koanf:"batch_size"`
	MaxConcurrency int           `koanf:"max_concurrency"`
	MaxFanout      int           `koanf:"max_fanout"`
	LeaseTTL       time.Duration `koanf:"lease_ttl"`
	AutoUnsnooze   bool          `koanf:"auto_unsnooze"`
}

// NotificationsConfig contains delivery settings.
type NotificationsConfig struct {
	BaseURL        string        `koanf:"base_url"`
	AdapterTimeout time.Duration `koanf:"adapter_timeout"`
	Worker         WorkerConfig  `koanf:"worker"`
	Breaker        BreakerConfig `koanf:"breaker"`
	Retry          RetryConfig   `koanf:"retry"`
	Email          EmailConfig   `koanf:"email"`
	Twilio         TwilioConfig  `koanf:"twilio"`
	Push           PushConfig    `koanf:"push"`
	Slack          SlackConfig   `koanf:"slack"`
	Webhook        WebhookConfig `koanf:"webhook"`
}

// WorkerConfig sizes the post-commit task queue.
type WorkerConfig struct {
	NumWorkers  int           `koanf:"num_workers"`
	QueueSize   int           `koanf:"queue_size"`
	TaskTimeout time.Duration `koanf:"task_timeout"`
}

// BreakerConfig configures per-channel circuit breakers. Zero failure_threshold disables them.
type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
}

// RetryConfig controls retries inside adapters that support them.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
}

// TwilioConfig configures SMS and WhatsApp delivery through Twilio.
type TwilioConfig struct {
	Enabled            bool    `koanf:"enabled"`
	AccountSID         string  `koanf:"account_sid"`
	AuthToken          string  `koanf:"auth_token"`
	FromNumber         string  `koanf:"from_number"`
	WhatsAppFromNumber string  `koanf:"whatsapp_from_number"`
	BaseURL            string  `koanf:"base_url"`
	RateLimit          float64 `koanf:"rate_limit"`
}

// PushConfig configures the mobile push gateway.
type PushConfig struct {
	Enabled    bool   `koanf:"enabled"`
	AppID      string `koanf:"app_id"`
	RESTAPIKey string `koanf:"rest_api_key"`
	BaseURL    string `koanf:"base_url"`
}

// SlackConfig configures the chat API adapter. The incoming-webhook
// adapter needs no config: its URL is set per service.
type SlackConfig struct {
	BotToken string `koanf:"bot_token"`
	APIURL   string `koanf:"api_url"`
}

// WebhookConfig applies to every outbound service webhook.
type WebhookConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"user_agent"`
}

// Default returns configuration with every default applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			LeaseKey: "escalator:trigger:lease",
		},
		Escalation: EscalationConfig{
			Enabled:        true,
			Interval:       60 * time.Second,
			BatchSize:      100,
			MaxConcurrency: 10,
			MaxFanout:      10,
			LeaseTTL:       55 * time.Second,
			AutoUnsnooze:   true,
		},
		Notifications: NotificationsConfig{
			AdapterTimeout: 10 * time.Second,
			Worker: WorkerConfig{
				NumWorkers:  5,
				QueueSize:   1000,
				TaskTimeout: 2 * time.Minute,
			},
			Breaker: BreakerConfig{
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
			Retry: RetryConfig{
				MaxAttempts:       3,
				InitialBackoff:    1 * time.Second,
				MaxBackoff:        30 * time.Second,
				BackoffMultiplier: 2.0,
			},
			Email: EmailConfig{
				SMTPPort: 587,
			},
			Webhook: WebhookConfig{
				Timeout: 10 * time.Second,
			},
		},
	}
}

// Load reads configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// listKeys are read from the environment as comma-separated values.
var listKeys = map[string]bool{
	"cors.allowed_origins": true,
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func envValue(name, value string) (string, interface{}) {
	key := envKey(name)
	if !listKeys[key] {
		return key, value
	}

	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// Validate rejects configuration the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}

	if c.Escalation.Interval <= 0 {
		errs = append(errs, errors.New("escalation.interval must be positive"))
	}
	if c.Escalation.BatchSize <= 0 {
		errs = append(errs, errors.New("escalation.batch_size must be positive"))
	}
	if c.Escalation.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("escalation.max_concurrency must be positive"))
	}
	if c.Escalation.LeaseTTL > c.Escalation.Interval {
		errs = append(errs, errors.New("escalation.lease_ttl must not exceed escalation.interval"))
	}

	n := c.Notifications
	if n.AdapterTimeout <= 0 {
		errs = append(errs, errors.New("notifications.adapter_timeout must be positive"))
	}
	if n.Worker.NumWorkers <= 0 || n.Worker.QueueSize <= 0 {
		errs = append(errs, errors.New("notifications.worker sizes must be positive"))
	}
	if n.Email.Enabled && (n.Email.SMTPHost == "" || n.Email.FromAddress == "") {
		errs = append(errs, errors.New("notifications.email.smtp_host and from_address are required when email is enabled"))
	}
	if n.Twilio.Enabled && (n.Twilio.AccountSID == "" || n.Twilio.AuthToken == "") {
		errs = append(errs, errors.New("notifications.twilio.account_sid and auth_token are required when twilio is enabled"))
	}
	if n.Push.Enabled && (n.Push.AppID == "" || n.Push.RESTAPIKey == "") {
		errs = append(errs, errors.New("notifications.push.app_id and rest_api_key are required when push is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
