package config

import (
	"fmt"
	"time"
)

type Config struct {
	Browser       BrowserConfig       `yaml:"browser"`
	Retry         RetryConfig         `yaml:"retry"`
	API           APIConfig           `yaml:"api"`
	Storage       StorageConfig       `yaml:"storage"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Notify        NotifyConfig        `yaml:"notify"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type BrowserConfig struct {
	ChromePath          string   `yaml:"chrome_path"`
	Headless            bool     `yaml:"headless"`
	BatchSize           int      `yaml:"batch_size"`
	MaxConcurrentPages  int      `yaml:"max_concurrent_pages"`
	PageTimeoutS        int      `yaml:"page_timeout_s"`
	NavigationTimeoutS  int      `yaml:"navigation_timeout_s"`
	WaitSelectorTimeout *int     `yaml:"wait_selector_timeout_s"`
	UserAgent           string   `yaml:"user_agent"`
	Locale              string   `yaml:"locale"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	BlockedResources    []string `yaml:"blocked_resources"`
	BlockedDomains      []string `yaml:"blocked_domains"`
}

// RetryConfig: delay_ms: 0 означает повтор без паузы, поэтому поле указатель
type RetryConfig struct {
	Attempts int  `yaml:"attempts"`
	DelayMS  *int `yaml:"delay_ms"`
}

type APIConfig struct {
	UserAgent     string `yaml:"user_agent"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	TimeoutS      int    `yaml:"timeout_s"`
	RPM           int    `yaml:"rpm"`
	MangalibBase  string `yaml:"mangalib_base"`
	MangaDexBase  string `yaml:"mangadex_base"`
}

type StorageConfig struct {
	Driver           string `yaml:"driver"`
	DSN              string `yaml:"dsn"`
	Path             string `yaml:"path"`
	Scope            string `yaml:"scope"`
	CommandTimeoutMS int    `yaml:"command_timeout_ms"`
	// RunLockPath файл блокировки прогона, общий для всех процессов
	RunLockPath      string `yaml:"run_lock_path"`
}

type SchedulerConfig struct {
	Mode      string `yaml:"mode"`
	IntervalS int    `yaml:"interval_s"`
	CronExpr  string `yaml:"cron_expr"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
	TelegramAPI    string `yaml:"telegram_api"`
	MaxMessageLen  int    `yaml:"max_message_len"`
}

type ObservabilityConfig struct {
	LogPath     string `yaml:"log_path"`
	LogLevel    string `yaml:"log_level"`
	MetricsPath string `yaml:"metrics_path"`
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Default возвращает конфиг со значениями по умолчанию.
func Default() *Config {
	cfg := &Config{}
	cfg.Browser.Headless = true
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults заполняет незаданные поля.
func (c *Config) ApplyDefaults() {
	b := &c.Browser
	if b.BatchSize == 0 {
		b.BatchSize = 10
	}
	if b.MaxConcurrentPages == 0 {
		b.MaxConcurrentPages = 10
	}
	if b.PageTimeoutS == 0 {
		b.PageTimeoutS = 120
	}
	if b.NavigationTimeoutS == 0 {
		b.NavigationTimeoutS = 40
	}
	if b.WaitSelectorTimeout == nil {
		b.WaitSelectorTimeout = intPtr(10)
	}
	if b.UserAgent == "" {
		b.UserAgent = DefaultUserAgent
	}
	if b.Locale == "" {
		b.Locale = "ru-RU"
	}
	if b.ViewportWidth == 0 {
		b.ViewportWidth = 1280
	}
	if b.ViewportHeight == 0 {
		b.ViewportHeight = 800
	}
	if b.BlockedResources == nil {
		b.BlockedResources = []string{"image", "media", "font", "stylesheet"}
	}
	if b.BlockedDomains == nil {
		b.BlockedDomains = []string{
			"google-analytics.com",
			"googletagmanager.com",
			"doubleclick.net",
			"googlesyndication.com",
			"mc.yandex.ru",
			"an.yandex.ru",
			"facebook.net",
			"connect.facebook.net",
			"adfox.ru",
			"criteo.com",
			"hotjar.com",
			"top-fwz1.mail.ru",
		}
	}

	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.DelayMS == nil {
		c.Retry.DelayMS = intPtr(2000)
	}

	if c.API.UserAgent == "" {
		c.API.UserAgent = DefaultUserAgent
	}
	if c.API.MaxConcurrent == 0 {
		c.API.MaxConcurrent = 3
	}
	if c.API.TimeoutS == 0 {
		c.API.TimeoutS = 20
	}
	if c.API.RPM == 0 {
		c.API.RPM = 60
	}
	if c.API.MangalibBase == "" {
		c.API.MangalibBase = "https://api.cdnlibs.org"
	}
	if c.API.MangaDexBase == "" {
		c.API.MangaDexBase = "https://api.mangadex.org"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "json"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/data.json"
	}
	if c.Storage.Scope == "" {
		c.Storage.Scope = "default"
	}
	if c.Storage.CommandTimeoutMS == 0 {
		c.Storage.CommandTimeoutMS = 20000
	}
	if c.Storage.RunLockPath == "" {
		c.Storage.RunLockPath = "data/manga.lock"
	}

	if c.Scheduler.Mode == "" {
		c.Scheduler.Mode = "oneshot"
	}

	if c.Notify.TelegramAPI == "" {
		c.Notify.TelegramAPI = "https://api.telegram.org"
	}
	if c.Notify.MaxMessageLen == 0 {
		c.Notify.MaxMessageLen = 4096
	}

	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
}

// Validation
func (c *Config) Validate() error {
	if c.Browser.BatchSize <= 0 {
		return fmt.Errorf("browser.batch_size must be > 0")
	}
	if c.Browser.MaxConcurrentPages <= 0 {
		return fmt.Errorf("browser.max_concurrent_pages must be > 0")
	}
	if c.Browser.PageTimeoutS <= 0 {
		return fmt.Errorf("browser.page_timeout_s must be > 0")
	}
	if c.Browser.NavigationTimeoutS <= 0 {
		return fmt.Errorf("browser.navigation_timeout_s must be > 0")
	}
	if intOr(c.Browser.WaitSelectorTimeout, 0) < 0 {
		return fmt.Errorf("browser.wait_selector_timeout_s must be >= 0")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive")
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be > 0")
	}
	if intOr(c.Retry.DelayMS, 0) < 0 {
		return fmt.Errorf("retry.delay_ms must be >= 0")
	}
	if c.API.MaxConcurrent <= 0 {
		return fmt.Errorf("api.max_concurrent must be > 0")
	}
	if c.API.TimeoutS <= 0 {
		return fmt.Errorf("api.timeout_s must be > 0")
	}
	if c.API.RPM <= 0 {
		return fmt.Errorf("api.rpm must be > 0")
	}
	switch c.Storage.Driver {
	case "json":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the json driver")
		}
	case "mssql", "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required")
		}
	default:
		return fmt.Errorf("storage.driver must be 'json', 'mssql' or 'postgres'")
	}
	if c.Storage.Scope == "" {
		return fmt.Errorf("storage.scope is required")
	}
	if c.Storage.CommandTimeoutMS <= 0 {
		return fmt.Errorf("storage.command_timeout_ms must be > 0")
	}
	if c.Scheduler.Mode != "interval" && c.Scheduler.Mode != "cron" && c.Scheduler.Mode != "oneshot" {
		return fmt.Errorf("scheduler.mode must be 'interval', 'cron' or 'oneshot'")
	}
	if c.Scheduler.Mode == "interval" && c.Scheduler.IntervalS <= 0 {
		return fmt.Errorf("scheduler.interval_s must be > 0 when mode is 'interval'")
	}
	if c.Scheduler.Mode == "cron" && c.Scheduler.CronExpr == "" {
		return fmt.Errorf("scheduler.cron_expr must be set when mode is 'cron'")
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		return fmt.Errorf("notify.telegram_token and notify.telegram_chat_id must be set together")
	}
	if c.Notify.MaxMessageLen <= 0 {
		return fmt.Errorf("notify.max_message_len must be > 0")
	}
	return nil
}

// Getters
func (c *Config) GetPageTimeout() time.Duration {
	return time.Duration(c.Browser.PageTimeoutS) * time.Second
}

func (c *Config) GetNavigationTimeout() time.Duration {
	return time.Duration(c.Browser.NavigationTimeoutS) * time.Second
}

func (c *Config) GetWaitSelectorTimeout() time.Duration {
	return time.Duration(intOr(c.Browser.WaitSelectorTimeout, 0)) * time.Second
}

func (c *Config) GetRetryDelay() time.Duration {
	return time.Duration(intOr(c.Retry.DelayMS, 0)) * time.Millisecond
}

func (c *Config) GetAPITimeout() time.Duration {
	return time.Duration(c.API.TimeoutS) * time.Second
}

func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Storage.CommandTimeoutMS) * time.Millisecond
}

func (c *Config) GetSchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalS) * time.Second
}

func intPtr(v int) *int { return &v }

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
