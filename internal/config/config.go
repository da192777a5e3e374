// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Bank      BankConfig      `mapstructure:"bank" yaml:"bank"`
	Bot       BotConfig       `mapstructure:"bot" yaml:"bot"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Sheets    SheetsConfig    `mapstructure:"sheets" yaml:"sheets"`
}

// LoggerConfig mirrors the zap/lumberjack knobs.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// LoginRatePerMin bounds authentication attempts per client.
	LoginRatePerMin int `mapstructure:"login_rate_per_min" yaml:"login_rate_per_min"`
	// JWTSecret signs operator session and temporary redirect tokens.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL         string `mapstructure:"url" yaml:"url"`
	AutoMigrate bool   `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// BrowserConfig controls the shared Chrome session.
type BrowserConfig struct {
	Headless    bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent   string        `mapstructure:"user_agent" yaml:"user_agent"`
	ProfileDir  string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	DownloadDir string        `mapstructure:"download_dir" yaml:"download_dir"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	// ElementTimeout bounds a single fill/click/read.
	ElementTimeout time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	// LoadTimeout bounds one page load-complete wait during classification.
	LoadTimeout time.Duration `mapstructure:"load_timeout" yaml:"load_timeout"`
	Args        []string      `mapstructure:"args" yaml:"args"`
}

// BankConfig carries the target-site data that drifts with the bank's UI:
// entry URLs and selector overrides. Selectors are configuration, not code.
type BankConfig struct {
	ExpensesURL string            `mapstructure:"expenses_url" yaml:"expenses_url"`
	FeedURL     string            `mapstructure:"feed_url" yaml:"feed_url"`
	Selectors   map[string]string `mapstructure:"selectors" yaml:"selectors"`
}

type BotConfig struct {
	Token string `mapstructure:"token" yaml:"token"`
	// APIURL is the bot server base URL for mailing endpoints.
	APIURL         string        `mapstructure:"api_url" yaml:"api_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// TransferNotificationCards always receive the daily-spend mailing,
	// even when their card produced no carded expenses.
	TransferNotificationCards []string `mapstructure:"transfer_notification_cards" yaml:"transfer_notification_cards"`
	// ErrorNotificationCards receive unattended-import failure mailings.
	ErrorNotificationCards []string `mapstructure:"error_notification_cards" yaml:"error_notification_cards"`
}

type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Spec is a standard cron expression evaluated in Timezone.
	Spec     string `mapstructure:"spec" yaml:"spec"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
	Attempts int    `mapstructure:"attempts" yaml:"attempts"`
}

type SheetsConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	SheetName       string `mapstructure:"sheet_name" yaml:"sheet_name"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "tbank-bridge")
	v.SetDefault("logger.log_file", "tbank-bridge.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.login_rate_per_min", 20)

	// -- Database --
	v.SetDefault("database.auto_migrate", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/85.0.4183.121 Safari/537.36")
	v.SetDefault("browser.profile_dir", "~/.tbank-bridge/profile")
	v.SetDefault("browser.download_dir", "~/.tbank-bridge/downloads")
	v.SetDefault("browser.idle_timeout", "3m")
	v.SetDefault("browser.element_timeout", "5s")
	v.SetDefault("browser.load_timeout", "5s")

	// -- Bank --
	v.SetDefault("bank.expenses_url", "https://www.tbank.ru/auth/login/?redirectTo=%2Fevents%2Ffeed%2F&redirectType=")
	v.SetDefault("bank.feed_url", "https://www.tbank.ru/events/feed/")

	// -- Bot --
	v.SetDefault("bot.api_url", "http://127.0.0.1:8001/")
	v.SetDefault("bot.request_timeout", "10s")

	// -- Scheduler --
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.spec", "0 21 * * *")
	v.SetDefault("scheduler.timezone", "Europe/Moscow")
	v.SetDefault("scheduler.attempts", 3)

	// -- Sheets --
	v.SetDefault("sheets.enabled", false)
	v.SetDefault("sheets.sheet_name", "Expenses")
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper builds and validates a configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values come from the environment, never the config file.
	v.BindEnv("database.url", "TBANK_DATABASE_URL")
	v.BindEnv("bot.token", "TBANK_BOT_TOKEN")
	v.BindEnv("server.jwt_secret", "TBANK_JWT_SECRET")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in filesystem paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Browser.ProfileDir, &c.Browser.DownloadDir, &c.Sheets.CredentialsFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.IdleTimeout <= 0 {
		return fmt.Errorf("browser.idle_timeout must be a positive duration")
	}
	if c.Browser.ElementTimeout <= 0 {
		return fmt.Errorf("browser.element_timeout must be a positive duration")
	}
	if c.Bank.ExpensesURL == "" {
		return fmt.Errorf("bank.expenses_url is a required configuration field")
	}
	if c.Scheduler.Enabled && c.Scheduler.Attempts <= 0 {
		return fmt.Errorf("scheduler.attempts must be a positive integer")
	}
	if c.Sheets.Enabled && c.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("sheets.spreadsheet_id is required when sheets sync is enabled")
	}
	return nil
}

// MailingURL joins the bot API base with a mailing endpoint path.
func (c *BotConfig) MailingURL(path string) string {
	return strings.TrimRight(c.APIURL, "/") + "/" + strings.TrimLeft(path, "/")
}
