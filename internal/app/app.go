package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/davron/realnews/internal/config"
	"github.com/davron/realnews/internal/database"
	"github.com/davron/realnews/internal/enrich"
	"github.com/davron/realnews/internal/handler"
	"github.com/davron/realnews/internal/ingest"
	"github.com/davron/realnews/internal/logger"
	"github.com/davron/realnews/internal/metrics"
	"github.com/davron/realnews/internal/middleware"
	"github.com/davron/realnews/internal/notify"
	"github.com/davron/realnews/internal/repository"
	"github.com/davron/realnews/internal/security"
	"github.com/davron/realnews/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
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

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("site_base_url", cfg.SiteBaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// 取り込みスケジューラも同一プロセスでバックグラウンド実行される。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	articleRepo := repository.NewPostgresArticleRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	feedRepo := repository.NewPostgresFeedSourceRepo(db)
	pushRepo := repository.NewPostgresPushSubscriptionRepo(db)
	newsletterRepo := repository.NewPostgresNewsletterRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. 取り込みパイプラインの構築
	fetcher := ingest.NewFetcher(ssrfGuard, slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize)
	parser := ingest.NewParser(sanitizer, cfg.FeedItemLimit)

	var rewriter ingest.Rewriter
	if cfg.EnrichmentEnabled() {
		rewriter = enrich.NewClient(
			&http.Client{Timeout: 30 * time.Second},
			slog.Default(), cfg.GeminiAPIKey, cfg.GeminiModel,
		)
		slog.Info("AI rewriting enabled", slog.String("model", cfg.GeminiModel))
	}

	var notifier notify.Notifier
	if cfg.TelegramEnabled() {
		telegram := notify.NewTelegramClient(
			&http.Client{Timeout: 10 * time.Second},
			slog.Default(), cfg.TelegramBotToken, cfg.TelegramChatID, cfg.SiteBaseURL,
		)
		notifier = notify.NewMulti(slog.Default(), telegram)
		slog.Info("telegram notifications enabled")
	}

	pipeline := ingest.NewPipeline(
		articleRepo, categoryRepo, feedRepo,
		fetcher, parser, rewriter, notifier,
		sanitizer, collector, slog.Default(),
	)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AdminToken:        cfg.AdminToken,
		Logger:            slog.Default(),

		ArticleRepo:    articleRepo,
		CategoryRepo:   categoryRepo,
		FeedRepo:       feedRepo,
		PushRepo:       pushRepo,
		NewsletterRepo: newsletterRepo,

		Pipeline:     pipeline,
		URLValidator: ssrfGuard,
		Sanitizer:    sanitizer,

		DB:             db,
		VAPIDPublicKey: cfg.VAPIDPublicKey,
		MetricsHandler: metrics.Handler(registry),
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// 8. 取り込みスケジューラをバックグラウンドで起動
	scheduler := ingest.NewScheduler(pipeline, slog.Default())
	go scheduler.Start(ctx, cfg.FetchStartupDelay, cfg.FetchInterval)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// HTTPサーバーを持たず、取り込みスケジューラと購読クリーンアップジョブのみを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	articleRepo := repository.NewPostgresArticleRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	feedRepo := repository.NewPostgresFeedSourceRepo(db)
	pushRepo := repository.NewPostgresPushSubscriptionRepo(db)

	// 3. セキュリティサービスとメトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	collector := metrics.NewCollector(prometheus.NewRegistry())

	// 4. 取り込みパイプラインの構築
	fetcher := ingest.NewFetcher(ssrfGuard, slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize)
	parser := ingest.NewParser(sanitizer, cfg.FeedItemLimit)

	var rewriter ingest.Rewriter
	if cfg.EnrichmentEnabled() {
		rewriter = enrich.NewClient(
			&http.Client{Timeout: 30 * time.Second},
			slog.Default(), cfg.GeminiAPIKey, cfg.GeminiModel,
		)
	}

	var notifier notify.Notifier
	if cfg.TelegramEnabled() {
		telegram := notify.NewTelegramClient(
			&http.Client{Timeout: 10 * time.Second},
			slog.Default(), cfg.TelegramBotToken, cfg.TelegramChatID, cfg.SiteBaseURL,
		)
		notifier = notify.NewMulti(slog.Default(), telegram)
	}

	pipeline := ingest.NewPipeline(
		articleRepo, categoryRepo, feedRepo,
		fetcher, parser, rewriter, notifier,
		sanitizer, collector, slog.Default(),
	)

	// 5. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewJob(pushRepo, slog.Default())
	cleanupJob.Retention = cfg.PushCleanupRetention

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Duration("startup_delay", cfg.FetchStartupDelay),
	)

	// クリーンアップジョブをバックグラウンドで実行。起動直後に1回実行し、以降は日次。
	go func() {
		if err := cleanupJob.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}
		cleanupJob.Start(ctx, 24*time.Hour)
	}()

	// 取り込みスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler := ingest.NewScheduler(pipeline, slog.Default())
	scheduler.Start(ctx, cfg.FetchStartupDelay, cfg.FetchInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /api/health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/api/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
