package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	Host        string `env:"HOST" envDefault:"0.0.0.0"`
	CronSecret  string `env:"CRON_SECRET" json:"-"`

	Log       Log
	Store     Store
	SMTP      SMTP
	Telegram  Telegram
	Bark      Bark
	Scraper   Scraper
	Monitor   Monitor
	Redis     Redis
	Scheduler Scheduler
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

type Store struct {
	// Driver is one of sqlite, postgres, file.
	Driver       string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DSN          string `env:"STORE_DSN" json:"-"`
	DataDir      string `env:"DATA_DIR" envDefault:"./data"`
	HistoryLimit int    `env:"STORE_HISTORY_LIMIT" envDefault:"0"`

	MaxOpenConns    int           `env:"STORE_MAX_OPEN_CONNS" envDefault:"5"`
	MaxIdleConns    int           `env:"STORE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"STORE_CONN_MAX_LIFETIME" envDefault:"5m"`
}

type SMTP struct {
	Host     string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD" json:"-"`
	From     string `env:"SMTP_FROM" envDefault:"PriceWatch <noreply@example.com>"`
}

type Telegram struct {
	BotToken string `env:"TELEGRAM_BOT_TOKEN" json:"-"`
	ChatID   int64  `env:"TELEGRAM_CHAT_ID"`
}

type Bark struct {
	Key       string `env:"BARK_KEY" json:"-"`
	ServerURL string `env:"BARK_SERVER_URL" envDefault:"https://api.day.app"`
}

type Scraper struct {
	Interval   time.Duration `env:"SCRAPER_INTERVAL" envDefault:"1h"`
	UserAgent  string        `env:"SCRAPER_USER_AGENT" envDefault:"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"`
	Timeout    time.Duration `env:"SCRAPER_TIMEOUT" envDefault:"30s"`
	MaxRetries int           `env:"SCRAPER_MAX_RETRIES" envDefault:"2"`
	ProxyURL   string        `env:"SCRAPER_PROXY_URL" json:"-"`
}

type Monitor struct {
	PassTimeout time.Duration `env:"MONITOR_PASS_TIMEOUT" envDefault:"60s"`
	Concurrency int           `env:"MONITOR_CONCURRENCY" envDefault:"0"`
}

type Redis struct {
	Address  string `env:"REDIS_ADDRESS"`
	Username string `env:"REDIS_USERNAME"`
	Password string `env:"REDIS_PASSWORD" json:"-"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type Scheduler struct {
	// Mode is one of ticker, asynq, off. asynq requires Redis.Address.
	Mode string `env:"SCHEDULER_MODE" envDefault:"ticker"`
	Cron string `env:"SCHEDULER_CRON" envDefault:"@every 1h"`
}

func Load() (Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	var config Config

	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("env.Parse: %w", err)
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "file":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("STORE_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %q", c.Store.Driver)
	}

	switch c.Scheduler.Mode {
	case "ticker", "off":
	case "asynq":
		if c.Redis.Address == "" {
			return fmt.Errorf("REDIS_ADDRESS is required for SCHEDULER_MODE=asynq")
		}
	default:
		return fmt.Errorf("invalid SCHEDULER_MODE: %q", c.Scheduler.Mode)
	}

	if c.Monitor.PassTimeout <= 0 {
		return fmt.Errorf("MONITOR_PASS_TIMEOUT must be positive")
	}

	if c.Scraper.Interval <= 0 {
		return fmt.Errorf("SCRAPER_INTERVAL must be positive")
	}

	if c.Store.HistoryLimit < 0 {
		return fmt.Errorf("STORE_HISTORY_LIMIT must not be negative")
	}

	return nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
