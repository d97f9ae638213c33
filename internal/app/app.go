package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samvad-hq/samvad-news-feed/internal/config"
	"github.com/samvad-hq/samvad-news-feed/internal/crawler"
	"github.com/samvad-hq/samvad-news-feed/internal/identity"
	"github.com/samvad-hq/samvad-news-feed/internal/logger"
	"github.com/samvad-hq/samvad-news-feed/internal/metrics"
	"github.com/samvad-hq/samvad-news-feed/internal/refresh"
	"github.com/samvad-hq/samvad-news-feed/internal/scheduler"
	"github.com/samvad-hq/samvad-news-feed/internal/server"
	"github.com/samvad-hq/samvad-news-feed/internal/storage"
	"github.com/samvad-hq/samvad-news-feed/pkg/providers"
	"github.com/samvad-hq/samvad-news-feed/pkg/publishers"
)

// App is the news feed runtime. It owns the store, the refresh coordinator, the cron
// scheduler and the HTTP server, and tears them down in order on shutdown.
type App struct {
	cfg         *config.Config
	store       storage.Store
	fanout      *publishers.Fanout
	coordinator *refresh.Coordinator
	scheduler   *scheduler.Scheduler
	server      *server.Server
	log         logger.Logger
}

// New builds the runtime from config. ctx bounds background refreshes.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	providerReg, err := providers.LoadRegistry(cfg.ProvidersFile, providers.Defaults{
		Host:       cfg.RapidAPIHost,
		Categories: cfg.Categories,
		Countries:  cfg.Countries,
		Language:   cfg.Language,
		ResultCap:  cfg.ResultCap,
	})
	if err != nil {
		return nil, fmt.Errorf("load providers registry: %w", err)
	}
	providerList := providerReg.All()
	providerIDs := make([]string, 0, len(providerList))
	for _, p := range providerList {
		providerIDs = append(providerIDs, p.ID)
	}
	log.InfoObj("providers registry loaded", "providers_meta", map[string]any{
		"count": len(providerIDs),
		"ids":   providerIDs,
	})
	if !cfg.HasRapidAPIKey() {
		log.WarnObj("rapidapi key not configured; refreshes will fail", "rapidapi_host", cfg.RapidAPIHost)
	}

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabledPublishers := publisherReg.Enabled()
	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabledPublishers, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	fanout := publishers.NewFanout(pubClients)
	publisherSummaries := make([]map[string]string, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		publisherSummaries = append(publisherSummaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})

	store, err := storage.NewStore(cfg.StorageType, storage.Options{
		BBoltPath:       cfg.BBoltPath,
		MongoURI:        cfg.MongoURI,
		MongoDatabase:   cfg.MongoDatabase,
		Retention:       cfg.StorageRetention,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"retention_seconds":        int(cfg.StorageRetention.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	recorder := metrics.New()

	var scraper crawler.ArticleScraper
	if cfg.EnrichMetadata {
		scraper = crawler.NewScraper(nil)
	}
	fetcherReg := providers.DefaultFetcherRegistry(nil, providers.Credentials{APIKey: cfg.RapidAPIKey})
	crawlService := crawler.NewService(providerList, fetcherReg, crawler.Options{
		PartitionTimeout: cfg.PartitionTimeout,
		Scraper:          scraper,
	})

	syncer := refresh.NewSyncer(crawlService, store, refresh.SyncerOptions{
		Resolver:  identity.NewResolver(),
		Publisher: fanout,
		Metrics:   recorder,
		Logger:    log,
	})
	coordinator := refresh.NewCoordinator(ctx, syncer, store, refresh.CoordinatorConfig{
		StalenessWindow:   cfg.StalenessWindow,
		Cooldown:          cfg.RefreshCooldown,
		BackgroundTimeout: cfg.BackgroundTimeout,
		Logger:            log,
		Metrics:           recorder,
	})

	sched, err := scheduler.New(coordinator, cfg.RefreshCron, cfg.SchedulerRunTimeout, log)
	if err != nil {
		_ = fanout.Close()
		_ = store.Close()
		return nil, err
	}

	srv := server.New(server.Config{
		Addr:        cfg.HTTPAddr,
		CorsOrigins: cfg.CorsOrigins,
		Categories:  cfg.Categories,
		Countries:   cfg.Countries,
		Environment: server.Environment{
			HasRapidAPIKey: cfg.HasRapidAPIKey(),
			StorageType:    cfg.StorageType,
			AppEnv:         cfg.Env,
		},
	}, store, coordinator, recorder.Handler(), log)

	return &App{
		cfg:         cfg,
		store:       store,
		fanout:      fanout,
		coordinator: coordinator,
		scheduler:   sched,
		server:      srv,
		log:         log,
	}, nil
}

// Run serves HTTP and the cron schedule until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app is not initialized")
	}
	defer a.close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.log.InfoObj("news feed starting", "app_state", map[string]any{
		"http_addr":        a.cfg.HTTPAddr,
		"publishers_count": a.fanout.Size(),
		"refresh_cron":     a.cfg.RefreshCron,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.scheduler.Start(runCtx)
	}()

	err := a.server.Start(runCtx)
	cancel()
	wg.Wait()
	a.coordinator.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.InfoObj("news feed stopped", "reason", ctx.Err())
	return nil
}

// close releases publishers and the store, logging failures.
func (a *App) close() {
	if err := a.fanout.Close(); err != nil {
		a.log.ErrorObj("publisher close failed", "error", err.Error())
	}
	if err := a.store.Close(); err != nil {
		a.log.ErrorObj("storage close failed", "error", err.Error())
	}
}
