package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/metachan/internal/aggregate"
	"github.com/hitoshi/metachan/internal/anime"
	"github.com/hitoshi/metachan/internal/cache"
	"github.com/hitoshi/metachan/internal/config"
	"github.com/hitoshi/metachan/internal/fetch"
	"github.com/hitoshi/metachan/internal/identity"
	"github.com/hitoshi/metachan/internal/metrics"
	"github.com/hitoshi/metachan/internal/provider/jikan"
	"github.com/hitoshi/metachan/internal/provider/kitsu"
	"github.com/hitoshi/metachan/internal/provider/logo"
	"github.com/hitoshi/metachan/internal/provider/stream"
	"github.com/hitoshi/metachan/internal/provider/tmdb"
	"github.com/hitoshi/metachan/internal/provider/tvdb"
	"github.com/hitoshi/metachan/internal/repository"
	"github.com/hitoshi/metachan/internal/security"
	"github.com/hitoshi/metachan/internal/worker/cachewarm"
	"github.com/hitoshi/metachan/internal/worker/cleanup"
	"github.com/hitoshi/metachan/internal/worker/mappingsync"
	"github.com/hitoshi/metachan/internal/worker/scheduler"
)

// Components はserve/worker/CLIが共有する依存関係の集合。
type Components struct {
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer

	Mappings *repository.PostgresMappingRepo
	TaskLogs *repository.PostgresTaskLogRepo

	Cache     *cache.Service
	Anime     *anime.Service
	Scheduler *scheduler.Manager

	MappingSync *mappingsync.SyncJob
	CachePurge  *cleanup.CleanupJob
	CacheWarm   *cachewarm.WarmJob
}

// NewComponents はDB接続と設定から全コンポーネントを組み立て、定期タスクを登録する。
// タスクは登録のみで起動はしない。
func NewComponents(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 2. リポジトリ
	mappingRepo := repository.NewPostgresMappingRepo(db)
	cacheRepo := repository.NewPostgresCacheRepo(db)
	taskLogRepo := repository.NewPostgresTaskLogRepo(db)

	// 3. セキュリティ
	guard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. プロバイダ
	newFetch := func(provider string, httpClient *http.Client, limiter *rate.Limiter, header http.Header) *fetch.Client {
		return fetch.NewClient(httpClient, logger, collector, fetch.Config{
			Provider:     provider,
			MaxAttempts:  cfg.FetchMaxAttempts,
			InitialDelay: cfg.FetchInitialDelay,
			Limiter:      limiter,
			MaxBodySize:  cfg.FetchMaxSize,
			Header:       header,
		})
	}
	plainClient := &http.Client{Timeout: cfg.HTTPTimeout}
	safeClient := guard.NewSafeClient(cfg.HTTPTimeout)

	jikanLimiter := rate.NewLimiter(rate.Limit(cfg.JikanRatePerSecond), 1)
	jikanClient := jikan.NewClient(newFetch("jikan", plainClient, jikanLimiter, nil), logger)
	kitsuClient := kitsu.NewClient(newFetch("kitsu", plainClient, nil, nil), logger)
	tvdbClient := tvdb.NewClient(newFetch("tvdb", plainClient, nil, nil), logger, cfg.TVDBAPIKey, tvdb.NewTokenCache())
	tmdbClient := tmdb.NewClient(newFetch("tmdb", plainClient, nil, nil), logger, cfg.TMDBReadAccessToken)
	streamClient := stream.NewClient(
		newFetch("stream", plainClient, nil, stream.Headers()),
		newFetch("stream_clock", safeClient, nil, nil),
		guard, logger,
	)
	logoClient := logo.NewClient(newFetch("logo", safeClient, nil, nil), guard, logger)

	// 5. ドメインサービス
	resolver := identity.NewResolver(mappingRepo, logger)
	cacheService := cache.NewService(cacheRepo, logger, collector)

	deps := aggregate.Deps{
		Metadata:     jikanClient,
		Secondary:    kitsuClient,
		Availability: streamClient,
		Logos:        logoClient,
		Siblings:     resolver,
		Sanitizer:    sanitizer,
	}
	if tvdbClient.Enabled() {
		deps.Episodes = tvdbClient
	}
	if tmdbClient.Enabled() {
		deps.Enrichment = tmdbClient
	}
	orchestrator := aggregate.NewOrchestrator(deps, logger, collector).WithWorkers(cfg.AggregateMaxWorkers)

	animeService := anime.NewService(cacheService, resolver, orchestrator, streamClient, jikanClient, logger)

	// 6. 定期タスク
	syncJob := mappingsync.NewSyncJob(newFetch("mappings", plainClient, nil, nil), mappingRepo, logger, cfg.MappingSourceURL)
	purgeJob := cleanup.NewCleanupJob(cacheService, logger)
	purgeJob.GraceDays = cfg.CachePurgeGraceDays
	warmJob := cachewarm.NewWarmJob(mappingRepo, cacheService, animeService, logger, cfg.CacheWarmItemDelay)

	manager := scheduler.NewManager(taskLogRepo, logger, collector)
	tasks := []scheduler.Task{
		{Name: mappingsync.TaskName, Interval: cfg.MappingSyncInterval, Run: syncJob.Run},
		{Name: cleanup.TaskName, Interval: cfg.CachePurgeInterval, Run: purgeJob.Run},
	}
	if cfg.CacheWarmEnabled {
		tasks = append(tasks, scheduler.Task{Name: cachewarm.TaskName, Interval: cfg.CacheWarmInterval, Run: warmJob.Run})
	}
	for _, task := range tasks {
		if err := manager.RegisterTask(task); err != nil {
			return nil, fmt.Errorf("failed to register task: %w", err)
		}
	}

	return &Components{
		Metrics:     collector,
		Gatherer:    reg,
		Mappings:    mappingRepo,
		TaskLogs:    taskLogRepo,
		Cache:       cacheService,
		Anime:       animeService,
		Scheduler:   manager,
		MappingSync: syncJob,
		CachePurge:  purgeJob,
		CacheWarm:   warmJob,
	}, nil
}
