// Package config содержит логику чтения конфигурации портала жилищной очереди.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress      = "localhost:8080"
	defaultAccrualSchedule = "@daily"
	defaultQueueCheckRPS   = 5
	defaultEnvFile         = ".env"
)

// Config содержит параметры конфигурации портала.
type Config struct {
	RunAddress       string  `env:"RUN_ADDRESS"`
	DatabaseURI      string  `env:"DATABASE_URI"`
	RedisAddress     string  `env:"REDIS_ADDRESS"`
	NotifyWebhookURL string  `env:"NOTIFY_WEBHOOK_URL"`
	AuthSecret       string  `env:"AUTH_SECRET"`
	AccrualSchedule  string  `env:"ACCRUAL_SCHEDULE"`
	QueueCheckRPS    float64 `env:"QUEUE_CHECK_RPS"`
}

// LoadEnvFile подгружает переменные из .env-файла. Уже заданные переменные окружения
// не перезаписываются, отсутствие файла не считается ошибкой.
func LoadEnvFile() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := LoadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for notification stream")
	flag.StringVar(&cfg.NotifyWebhookURL, "w", "", "notification service webhook URL")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing auth tokens")
	flag.StringVar(&cfg.AccrualSchedule, "c", defaultAccrualSchedule, "cron schedule for waiting years accrual")
	flag.Float64Var(&cfg.QueueCheckRPS, "q", defaultQueueCheckRPS, "queue check requests per second per client")

	flag.Parse()

	// Поля без соответствующей переменной окружения сохраняют значения флагов.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.AccrualSchedule == "" {
		cfg.AccrualSchedule = defaultAccrualSchedule
	}
	if cfg.QueueCheckRPS <= 0 {
		return nil, fmt.Errorf("queue check rps must be positive, got %v", cfg.QueueCheckRPS)
	}

	return cfg, nil
}
