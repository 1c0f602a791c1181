package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config — конфигурация узла.
type Config struct {
	// Machine — идентификатор этой машины в протоколе обмена.
	Machine string `yaml:"machine"`

	// AMQPURL — адрес RabbitMQ. Пустое значение — работа без транспорта
	// (локальный режим: только прямые вызовы менеджера).
	AMQPURL string `yaml:"amqp_url"`

	// PostgresDSN — DSN журнала событий. Пустое значение — журнал
	// отключён.
	PostgresDSN string `yaml:"postgres_dsn"`

	// HTTPAddr — адрес служебного HTTP (healthz, metrics).
	HTTPAddr string `yaml:"http_addr"`

	// Watchdog — настройки чистки зависших scope'ов.
	Watchdog WatchdogConfig `yaml:"watchdog"`
}

// WatchdogConfig — настройки watchdog'а.
type WatchdogConfig struct {
	// Schedule — cron-выражение запуска чистки.
	Schedule string `yaml:"schedule"`

	// TTL — максимальное время неактивности scope'а.
	TTL time.Duration `yaml:"ttl"`
}

// UnmarshalYAML разбирает ttl в формате time.ParseDuration ("5m", "90s").
// Незаполненные поля сохраняют прежние значения.
func (w *WatchdogConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Schedule string `yaml:"schedule"`
		TTL      string `yaml:"ttl"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Schedule != "" {
		w.Schedule = raw.Schedule
	}
	if raw.TTL != "" {
		d, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return fmt.Errorf("parse watchdog ttl: %w", err)
		}
		w.TTL = d
	}
	return nil
}

// Default возвращает конфигурацию для локальной разработки.
func Default() Config {
	return Config{
		Machine:  "machina-1",
		HTTPAddr: ":8080",
		Watchdog: WatchdogConfig{
			Schedule: "@every 1m",
			TTL:      30 * time.Minute,
		},
	}
}

// Load читает конфигурацию из файла path и накладывает переменные
// окружения. Отсутствующий файл не является ошибкой.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Нет файла — остаёмся на значениях по умолчанию.
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// applyEnv накладывает переменные окружения поверх файла.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MACHINA_ID"); v != "" {
		cfg.Machine = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("MACHINA_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("MACHINA_WATCHDOG_SCHEDULE"); v != "" {
		cfg.Watchdog.Schedule = v
	}
	if v := os.Getenv("MACHINA_WATCHDOG_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Watchdog.TTL = d
		}
	}
}

// Validate проверяет согласованность конфигурации.
func (c Config) Validate() error {
	if c.Machine == "" {
		return fmt.Errorf("machine id is required")
	}
	if c.Watchdog.TTL <= 0 {
		return fmt.Errorf("watchdog ttl must be positive")
	}
	if c.Watchdog.Schedule == "" {
		return fmt.Errorf("watchdog schedule is required")
	}
	return nil
}
