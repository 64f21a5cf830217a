package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/davron/realnews/internal/middleware"
	"github.com/davron/realnews/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	AdminToken        string
	Logger            *slog.Logger

	// リポジトリ
	ArticleRepo    repository.ArticleRepository
	CategoryRepo   repository.CategoryRepository
	FeedRepo       repository.FeedSourceRepository
	PushRepo       repository.PushSubscriptionRepository
	NewsletterRepo repository.NewsletterRepository

	// パイプラインとセキュリティ
	Pipeline     PipelineTrigger
	URLValidator URLValidator
	Sanitizer    ContentSanitizer

	// その他
	DB             Pinger
	VAPIDPublicKey string
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit
//
// /metricsとヘルスチェックはレート制限の外に配置する。
// 管理ルート（/api/admin/*）はさらにAdminAuthで保護される。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	articleHandler := NewArticleHandler(deps.ArticleRepo, deps.CategoryRepo, deps.Logger)
	categoryHandler := NewCategoryHandler(deps.CategoryRepo)
	newsletterHandler := NewNewsletterHandler(deps.NewsletterRepo)
	pushHandler := NewPushHandler(deps.PushRepo, deps.VAPIDPublicKey)
	adminHandler := NewAdminHandler(deps.ArticleRepo, deps.CategoryRepo, deps.FeedRepo, deps.NewsletterRepo, deps.Pipeline, deps.URLValidator, deps.Sanitizer)
	healthHandler := NewHealthHandler(deps.DB)

	// --- レート制限の外のルート ---

	r.Get("/api/health", healthHandler.Check)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 公開APIルート ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		r.Route("/api/categories", func(r chi.Router) {
			r.Get("/", categoryHandler.List)
			r.Get("/{slug}/articles", articleHandler.ListByCategory)
		})

		r.Route("/api/articles", func(r chi.Router) {
			r.Get("/", articleHandler.List)
			r.Get("/featured", articleHandler.ListFeatured)
			r.Get("/breaking", articleHandler.ListBreaking)
			r.Get("/trending", articleHandler.ListTrending)
			r.Get("/search", articleHandler.Search)
			r.Get("/slug/{slug}", articleHandler.GetBySlug)
			r.Post("/{id}/like", articleHandler.Like)
		})

		r.Post("/api/newsletter/subscribe", newsletterHandler.Subscribe)

		r.Route("/api/push", func(r chi.Router) {
			r.Get("/vapid-key", pushHandler.VAPIDKey)
			r.Post("/subscribe", pushHandler.Subscribe)
			r.Post("/unsubscribe", pushHandler.Unsubscribe)
		})

		// --- 管理ルート ---

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminAuthMiddleware(deps.AdminToken))

			r.Post("/fetch-rss", adminHandler.TriggerFetch)

			r.Route("/rss-feeds", func(r chi.Router) {
				r.Get("/", adminHandler.ListFeeds)
				r.Post("/", adminHandler.CreateFeed)
			})

			r.Route("/articles", func(r chi.Router) {
				r.Post("/", adminHandler.CreateArticle)
				r.Route("/{id}", func(r chi.Router) {
					r.Patch("/breaking", adminHandler.SetBreaking)
					r.Patch("/featured", adminHandler.SetFeatured)
					r.Delete("/", adminHandler.DeleteArticle)
				})
			})

			r.Get("/newsletters", adminHandler.ListNewsletters)
		})
	})

	return r
}
