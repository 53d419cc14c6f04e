package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Portal        PortalConfig        `yaml:"portal"`
	Store         StoreConfig         `yaml:"store"`
	Queue         QueueConfig         `yaml:"queue"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Badge         BadgeConfig         `yaml:"badge"`
	API           APIConfig           `yaml:"api"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	Exports       ExportConfig        `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// PortalConfig describes the external logistics portal.
type PortalConfig struct {
	BaseURL        string  `yaml:"base_url"`
	SlotsPath      string  `yaml:"slots_path"`
	EditFormPath   string  `yaml:"edit_form_path"`
	ProfilePath    string  `yaml:"profile_path"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	SessionCookie  string  `yaml:"session_cookie"`
	SessionValue   string  `yaml:"session_value"`
	RateRPS        float64 `yaml:"rate_rps"`
	RateBurst      int     `yaml:"rate_burst"`
}

func (p PortalConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

type StoreConfig struct {
	Backend  string      `yaml:"backend"` // redis, sqlite, memory
	Redis    RedisConfig `yaml:"redis"`
	SQLite   string      `yaml:"sqlite_path"`
	QueueKey string      `yaml:"queue_key"`
	Failover bool        `yaml:"failover"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type QueueConfig struct {
	IntervalMinMS int `yaml:"interval_min_ms"`
	IntervalMaxMS int `yaml:"interval_max_ms"`
	BatchSize     int `yaml:"batch_size"`
	// RetryDisabled turns the loop off; the zero value keeps retries on,
	// matching the engine's retryEnabled=true default.
	RetryDisabled bool `yaml:"retry_disabled"`
	AutoStart     bool `yaml:"auto_start"`
}

type NotificationsConfig struct {
	Desktop  DesktopNotifyConfig  `yaml:"desktop"`
	Email    EmailNotifyConfig    `yaml:"email"`
	Telegram TelegramNotifyConfig `yaml:"telegram"`
}

type DesktopNotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"`
}

type EmailNotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

type TelegramNotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// BadgeConfig selects where the status glyph goes. With a status file
// set the glyph is written there for taskbar/tmux integrations;
// otherwise it only shows up in the log.
type BadgeConfig struct {
	StatusFile string `yaml:"status_file"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env переменные подставляются в YAML через os.ExpandEnv
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Portal.BaseURL == "" {
		return errors.New("portal base_url is required")
	}

	switch c.Store.Backend {
	case "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.Redis.Address == "" {
		return errors.New("store.redis.address is required for the redis backend")
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLite == "" {
		return errors.New("store.sqlite_path is required for the sqlite backend")
	}

	if c.Queue.IntervalMinMS > c.Queue.IntervalMaxMS {
		return errors.New("queue.interval_min_ms must not exceed queue.interval_max_ms")
	}

	if c.Notifications.Email.Enabled {
		if c.Notifications.Email.SMTPHost == "" || c.Notifications.Email.To == "" {
			return errors.New("email notifications require smtp_host and to")
		}
	}
	if c.Notifications.Telegram.Enabled && c.Notifications.Telegram.BotToken == "" {
		return errors.New("telegram notifications require bot_token")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "slotwatch"
	}

	if c.Portal.TimeoutSeconds == 0 {
		c.Portal.TimeoutSeconds = 15
	}
	if c.Portal.SlotsPath == "" {
		c.Portal.SlotsPath = "/slots"
	}
	if c.Portal.EditFormPath == "" {
		c.Portal.EditFormPath = "/booking/edit"
	}
	if c.Portal.ProfilePath == "" {
		c.Portal.ProfilePath = "/profile"
	}
	if c.Portal.RateRPS == 0 {
		c.Portal.RateRPS = 1
	}
	if c.Portal.RateBurst == 0 {
		c.Portal.RateBurst = 3
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Store.QueueKey == "" {
		c.Store.QueueKey = "retryQueue"
	}

	if c.Queue.IntervalMinMS == 0 {
		c.Queue.IntervalMinMS = 1000
	}
	if c.Queue.IntervalMaxMS == 0 {
		c.Queue.IntervalMaxMS = 5000
	}
	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = 10
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Enabled && !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
