// Package config loads infrastructure settings from the environment and the
// strategy options from a YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Storage
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/bars.db"`
	JournalPath string `envconfig:"JOURNAL_PATH" default:"data/journal.db"`

	// Optional sinks; an empty address disables the sink
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"swing"`
	WSAddr        string `envconfig:"WS_ADDR"`
	MetricsAddr   string `envconfig:"METRICS_ADDR" default:":9090"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Alerts: INFO, WARNING or CRITICAL; always logged, optionally pushed
	AlertLevel       string `envconfig:"ALERT_LEVEL" default:"WARNING"`
	AlertWebhookURL  string `envconfig:"ALERT_WEBHOOK_URL"`
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID"`

	// Strategy options file; empty runs the defaults
	StrategyFile string `envconfig:"STRATEGY_FILE"`

	// Universe. MarketSymbol is the index whose closes feed relative strength.
	MarketSymbol string `envconfig:"MARKET_SYMBOL" default:"KS11"`
	Symbols      string `envconfig:"SYMBOLS"`
	From         string `envconfig:"FROM"`
	To           string `envconfig:"TO"`

	// Calendar
	Timezone string `envconfig:"TIMEZONE" default:"Asia/Seoul"`
	Holidays string `envconfig:"HOLIDAYS"`

	// Paper account
	InitialCash float64 `envconfig:"INITIAL_CASH" default:"1000000"`
	Commission  float64 `envconfig:"COMMISSION" default:"0.0005"`
}

// Load reads a .env file when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.InitialCash <= 0 {
		return nil, fmt.Errorf("config: INITIAL_CASH must be positive, got %v", cfg.InitialCash)
	}
	if cfg.Commission < 0 || cfg.Commission >= 1 {
		return nil, fmt.Errorf("config: COMMISSION must be in [0,1), got %v", cfg.Commission)
	}
	switch strings.ToUpper(cfg.AlertLevel) {
	case "INFO", "WARNING", "CRITICAL":
		cfg.AlertLevel = strings.ToUpper(cfg.AlertLevel)
	default:
		return nil, fmt.Errorf("config: unknown ALERT_LEVEL %q", cfg.AlertLevel)
	}
	if (cfg.TelegramBotToken == "") != (cfg.TelegramChatID == "") {
		return nil, errors.New("config: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return &cfg, nil
}

// SymbolList parses the comma-separated Symbols value.
func (c *Config) SymbolList() []string { return splitList(c.Symbols) }

// HolidayList parses the comma-separated YYYY-MM-DD Holidays value.
func (c *Config) HolidayList() []string { return splitList(c.Holidays) }

// Range parses From and To as YYYY-MM-DD dates in the configured timezone;
// To is exclusive.
// Unset bounds are returned as zero times.
func (c *Config) Range() (from, to time.Time, err error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return from, to, fmt.Errorf("config: timezone: %w", err)
	}
	if c.From != "" {
		if from, err = time.ParseInLocation(time.DateOnly, c.From, loc); err != nil {
			return from, to, fmt.Errorf("config: FROM: %w", err)
		}
	}
	if c.To != "" {
		if to, err = time.ParseInLocation(time.DateOnly, c.To, loc); err != nil {
			return from, to, fmt.Errorf("config: TO: %w", err)
		}
	}
	return from, to, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
