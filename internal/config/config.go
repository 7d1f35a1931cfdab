package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Sync       SyncConfig       `yaml:"sync"`
	IPC        IPCConfig        `yaml:"ipc"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Notify     NotifyConfig     `yaml:"notify"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SyncConfig struct {
	APIBase        string `yaml:"api_base"`
	RoomID         string `yaml:"room_id"` // static override; discovery fallback when empty
	RequestTimeout string `yaml:"request_timeout"`
	PollInterval   string `yaml:"poll_interval"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout parses RequestTimeout, falling back to 8s.
func (c SyncConfig) Timeout() time.Duration {
	if d, err := time.ParseDuration(c.RequestTimeout); err == nil && d > 0 {
		return d
	}
	return 8 * time.Second
}

// Interval parses PollInterval, falling back to 30s.
func (c SyncConfig) Interval() time.Duration {
	if d, err := time.ParseDuration(c.PollInterval); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

type IPCConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Host      string             `yaml:"host"`
	Port      int                `yaml:"port"`
	Auth      IPCAuthConfig      `yaml:"auth"`
	RateLimit IPCRateLimitConfig `yaml:"rate_limit"`
}

type IPCAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []IPCClientKey `yaml:"api_keys"`
}

type IPCClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type IPCRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
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

type NotifyConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChatID        int64  `yaml:"chat_id"`
	MinAttempts   int    `yaml:"min_attempts"`
}

func Load(configPath string) (*Config, error) {
	// .env не обязателен: на киоске переменные приходят из окружения
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
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
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Sync.APIBase == "" {
		return errors.New("sync api_base is required")
	}
	if _, err := url.ParseRequestURI(c.Sync.APIBase); err != nil {
		return fmt.Errorf("sync api_base is not a valid URL: %w", err)
	}

	if c.IPC.Auth.Enabled {
		for _, k := range c.IPC.Auth.APIKeys {
			if strings.TrimSpace(k.Key) == "" {
				return fmt.Errorf("ipc api key for client '%s' is empty", k.Name)
			}
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	c.Sync.APIBase = strings.TrimRight(c.Sync.APIBase, "/")

	if c.IPC.Host == "" {
		c.IPC.Host = "127.0.0.1"
	}
	if c.IPC.Port == 0 {
		c.IPC.Port = 8484
	}
	if c.IPC.Auth.HeaderAPIKey == "" {
		c.IPC.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.IPC.RateLimit.RPS == 0 {
		c.IPC.RateLimit.RPS = 5
	}
	if c.IPC.RateLimit.Burst == 0 {
		c.IPC.RateLimit.Burst = 10
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Notify.MinAttempts == 0 {
		c.Notify.MinAttempts = 3
	}
}
