package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"manga-tracker/internal/app"
	"manga-tracker/internal/browser"
	"manga-tracker/internal/checker"
	"manga-tracker/internal/config"
	"manga-tracker/internal/fetcher"
	"manga-tracker/internal/notify"
	"manga-tracker/internal/observability"
	"manga-tracker/internal/scraper"
	"manga-tracker/internal/storage"
)

var (
	flagConfig string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:           "manga-tracker",
	Short:         "Tracks new manga chapters across sites",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

// env собирает то, что нужно любой команде
type env struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
	repo    storage.Repository
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flagDebug {
		cfg.Observability.LogLevel = "debug"
	}

	logger := observability.NewLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel)

	repo, err := app.OpenRepository(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := repo.Setup(cmd.Context()); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to set up storage: %w", err)
	}

	return &env{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
		repo:    repo,
	}, nil
}

func (e *env) Close() {
	if err := e.repo.Close(); err != nil {
		e.logger.Error("Failed to close storage", "error", err.Error())
	}
	_ = e.logger.Sync()
}

// orchestrator собирает движок проверки из конфига
func (e *env) orchestrator() *app.Orchestrator {
	cfg := e.cfg

	sites := fetcher.DefaultSites(cfg.API.MangalibBase, cfg.API.MangaDexBase)
	direct := fetcher.NewFetcher(fetcher.Options{
		UserAgent:     cfg.API.UserAgent,
		MaxConcurrent: cfg.API.MaxConcurrent,
		Timeout:       cfg.GetAPITimeout(),
		RPM:           cfg.API.RPM,
	}, e.logger, e.metrics)

	registry := scraper.DefaultRegistry(scraper.Options{
		NavigationTimeout: cfg.GetNavigationTimeout(),
		WaitTimeout:       cfg.GetWaitSelectorTimeout(),
	})
	launcher := browser.NewRodLauncher(browser.RodOptions{
		ChromePath:     cfg.Browser.ChromePath,
		Headless:       cfg.Browser.Headless,
		UserAgent:      cfg.Browser.UserAgent,
		Locale:         cfg.Browser.Locale,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		Blocklist:      browser.NewBlocklist(cfg.Browser.BlockedResources, cfg.Browser.BlockedDomains),
	}, e.logger)
	pool := browser.NewPool(launcher, registry, browser.Options{
		BatchSize:   cfg.Browser.BatchSize,
		MaxPages:    cfg.Browser.MaxConcurrentPages,
		ItemTimeout: cfg.GetPageTimeout(),
		Retry:       scraper.RetryPolicy{Attempts: cfg.Retry.Attempts, Delay: cfg.GetRetryDelay()},
	}, e.logger, e.metrics)

	coord := checker.NewCoordinator(sites, direct, pool, e.logger)
	chk := checker.NewChecker(e.repo, coord, e.logger, e.metrics)

	var notifier notify.Notifier = notify.NewLogNotifier(e.logger)
	if cfg.Notify.TelegramToken != "" {
		notifier = notify.NewTelegram(cfg.Notify.TelegramAPI, cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID, cfg.Notify.MaxMessageLen, e.logger)
	}

	return app.NewOrchestrator(e.repo, chk, notifier, cfg.Observability.MetricsPath, cfg.Storage.RunLockPath, e.logger, e.metrics)
}
