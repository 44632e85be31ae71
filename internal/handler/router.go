package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/metachan/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	Tasks          TaskStatusReader

	// アニメ
	AnimeService AnimeServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → SecurityHeaders → CORS → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// サブルーターへ引き継がれるようにルート登録より先に設定する
	r.NotFound(middleware.RouteNotFound)
	r.MethodNotAllowed(middleware.MethodNotAllowed)

	// --- レート制限なし ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- レート制限あり ---
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		animeHandler := NewAnimeHandler(deps.AnimeService, logger)
		r.Route("/anime", func(r chi.Router) {
			// /search は /{id} より先に登録する
			r.Get("/search", animeHandler.Search)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", animeHandler.GetAnime)
				r.Get("/episodes", animeHandler.GetEpisodes)
				r.Get("/episodes/{number}", animeHandler.GetEpisodeStreams)
			})
		})

		if deps.Tasks != nil {
			r.Get("/tasks", NewTaskHandler(deps.Tasks, logger).ListTasks)
		}
	})

	return r
}
