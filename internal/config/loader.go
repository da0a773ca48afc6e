package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig читает YAML, подмешивает переменные окружения (.env тоже),
// заполняет значения по умолчанию и валидирует результат.
// Отсутствующий файл конфига не ошибка: берутся значения по умолчанию.
func LoadConfig(filePath string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.Browser.Headless = true

	file, err := os.Open(filePath)
	switch {
	case err == nil:
		defer func() {
			if closeErr := file.Close(); closeErr != nil {
				log.Printf("Warning: failed to close config file: %v", closeErr)
			}
		}()
		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Printf("Config file %s not found, using defaults", filePath)
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return cfg, nil
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setString("TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setString("STORAGE_DRIVER", &cfg.Storage.Driver)
	setString("STORAGE_DSN", &cfg.Storage.DSN)
	setString("STORAGE_PATH", &cfg.Storage.Path)
	setString("LOG_LEVEL", &cfg.Observability.LogLevel)
	setString("CHROME_PATH", &cfg.Browser.ChromePath)

	// по умолчанию список привязан к chat id владельца
	if cfg.Storage.Scope == "" {
		cfg.Storage.Scope = cfg.Notify.TelegramChatID
	}

	if v, ok := os.LookupEnv("HEADLESS"); ok && v != "" {
		cfg.Browser.Headless = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if err := setInt("MAX_CONCURRENT_PAGES", &cfg.Browser.MaxConcurrentPages); err != nil {
		return err
	}
	if err := setInt("PAGE_TIMEOUT", &cfg.Browser.PageTimeoutS); err != nil {
		return err
	}
	if err := setInt("BATCH_SIZE", &cfg.Browser.BatchSize); err != nil {
		return err
	}
	return nil
}
