package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Overseerr OverseerrConfig `mapstructure:"overseerr"`
	Bot       BotConfig       `mapstructure:"bot"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Health    HealthConfig    `mapstructure:"health"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	PollingTimeout int           `mapstructure:"polling_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type OverseerrConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type BotConfig struct {
	// Password gates first-time authorization when set.
	Password string `mapstructure:"password"`
	// Mode seeds the operating mode on first run; afterwards
	// data/bot_config.json is authoritative.
	Mode    string `mapstructure:"mode"`
	DataDir string `mapstructure:"data_dir"`
}

type WebhookConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

type HealthConfig struct {
	FilePath string        `mapstructure:"file_path"`
	Interval time.Duration `mapstructure:"interval"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	JSONFormat bool   `mapstructure:"json_format"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("telegram.polling_timeout", 60)
	v.SetDefault("telegram.request_timeout", "2m")
	v.SetDefault("overseerr.timeout", "10s")
	v.SetDefault("bot.mode", "normal")
	v.SetDefault("bot.data_dir", "data")
	v.SetDefault("webhook.enabled", true)
	v.SetDefault("webhook.listen_addr", ":8080")
	v.SetDefault("health.file_path", "data/bot_health.txt")
	v.SetDefault("health.interval", "30s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json_format", false)

	// Config file locations
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/overseerr-tg-bot")

	// Environment variables
	v.SetEnvPrefix("OVERSEERR_BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Aliases for the documented deployment variables.
	for key, env := range map[string]string{
		"telegram.bot_token": "TELEGRAM_TOKEN",
		"overseerr.api_url":  "OVERSEERR_API_URL",
		"overseerr.api_key":  "OVERSEERR_API_KEY",
		"bot.password":       "PASSWORD",
		"bot.mode":           "BOT_MODE",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found is OK, use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token (TELEGRAM_TOKEN) is required")
	}
	if c.Overseerr.APIURL == "" {
		return fmt.Errorf("overseerr.api_url (OVERSEERR_API_URL) is required")
	}
	if c.Overseerr.APIKey == "" {
		return fmt.Errorf("overseerr.api_key (OVERSEERR_API_KEY) is required")
	}
	switch c.Bot.Mode {
	case "normal", "api", "shared":
	default:
		return fmt.Errorf("bot.mode (BOT_MODE) must be one of normal, api, shared, got %q", c.Bot.Mode)
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive")
	}
	return nil
}
