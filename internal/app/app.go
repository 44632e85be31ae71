package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/metachan/internal/config"
	"github.com/hitoshi/metachan/internal/database"
	"github.com/hitoshi/metachan/internal/handler"
	"github.com/hitoshi/metachan/internal/logger"
	"github.com/hitoshi/metachan/internal/metrics"
	"github.com/hitoshi/metachan/internal/middleware"
)

// 起動時のDB疎通確認。1回あたりの上限と再試行間隔。
const (
	dbPingTimeout = 10 * time.Second
	dbPingDelay   = 2 * time.Second
)

// shutdownTimeout は集約中のリクエストを待つ上限。
const shutdownTimeout = 30 * time.Second

// Init はログを初期化してConfigを読み込む。
// 設定読み込み前のログはLOG_LEVEL環境変数、読み込み後は設定値のレベルで出す。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はmetachanバイナリのエントリーポイント。argsにはos.Args[1:]を渡す。
// SIGINT/SIGTERMで各モードを停止する。
func Run(w io.Writer, args []string) error {
	if len(args) > 0 && isHelpArg(args[0]) {
		_, err := io.WriteString(w, Usage())
		return err
	}

	cmd, known := ParseCommand(args)

	// healthcheckはdistrolessのHEALTHCHECK用で、設定もDBも読まない
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	if !known {
		slog.Warn("unknown command, falling back to serve", slog.String("arg", args[0]))
	}
	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// OpenDatabase は集約の並列数に合わせたプールでDBを開き、疎通を確認する。
func OpenDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolForWorkers(cfg.AggregateMaxWorkers))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout, uint(cfg.DBConnectAttempts), dbPingDelay); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established", slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)))
	return db, nil
}

// runServe は公開APIを起動し、ctxが終わるかListenが失敗するまで待つ。
// /tasks は登録済みタスクと実行ログを返すだけで、serveではタスクを起動しない。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	components, err := NewComponents(cfg, db, slog.Default())
	if err != nil {
		return err
	}

	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(&handler.RouterDeps{
			Logger:            slog.Default(),
			CORSAllowedOrigin: cfg.CORSAllowedOrigin,
			RateLimiter:       rateLimiter,
			HealthChecker:     db,
			MetricsHandler:    metrics.Handler(components.Gatherer),
			Tasks:             components.Scheduler,
			AnimeService:      components.Anime,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// 集約は複数プロバイダを待つため書き込み側を長めに取る
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("server listen failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("API server stopped")
	return nil
}

// runWorker は登録済みの定期タスクを起動し、ctxが終わったら実行中のタスクの完了を待つ。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	components, err := NewComponents(cfg, db, slog.Default())
	if err != nil {
		return err
	}

	if err := components.Scheduler.StartAllTasks(ctx); err != nil {
		return fmt.Errorf("failed to start tasks: %w", err)
	}
	slog.Info("worker started",
		slog.Duration("mapping_sync_interval", cfg.MappingSyncInterval),
		slog.Duration("cache_purge_interval", cfg.CachePurgeInterval),
		slog.Bool("cache_warm_enabled", cfg.CacheWarmEnabled),
	)

	<-ctx.Done()
	slog.Info("shutting down worker")
	components.Scheduler.StopAllTasks()
	components.Scheduler.Wait()
	slog.Info("worker stopped")
	return nil
}

// runMigrate は埋め込みマイグレーションを適用し、適用後のバージョンを記録する。
func runMigrate(cfg *config.Config) error {
	target := maskDatabaseURL(cfg.DatabaseURL)
	slog.Info("running database migrations", slog.String("database_url", target))

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration applied but version check failed: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}
	slog.Info("database migrations completed",
		slog.String("database_url", target),
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はローカルの /health を叩き、200以外をエラーにする。
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://localhost:" + port + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はログ用にパスワードを伏せたURLを返す。解析できない値は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
