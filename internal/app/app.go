// Package app はアプリケーションの起動・依存関係のワイヤリングを行う。
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
	"golang.org/x/time/rate"

	"github.com/hitoshi/mrlater/internal/auth"
	"github.com/hitoshi/mrlater/internal/billing"
	"github.com/hitoshi/mrlater/internal/challenge"
	"github.com/hitoshi/mrlater/internal/changefeed"
	"github.com/hitoshi/mrlater/internal/config"
	"github.com/hitoshi/mrlater/internal/database"
	"github.com/hitoshi/mrlater/internal/handler"
	"github.com/hitoshi/mrlater/internal/logger"
	"github.com/hitoshi/mrlater/internal/metrics"
	"github.com/hitoshi/mrlater/internal/middleware"
	"github.com/hitoshi/mrlater/internal/realtime"
	"github.com/hitoshi/mrlater/internal/repository"
	"github.com/hitoshi/mrlater/internal/security"
	"github.com/hitoshi/mrlater/internal/task"
	"github.com/hitoshi/mrlater/internal/user"
	"github.com/hitoshi/mrlater/internal/worker/cleanup"
	"github.com/hitoshi/mrlater/internal/worker/leaderboard"
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
		slog.String("base_url", cfg.BaseURL),
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
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)
	challengeRepo := repository.NewPostgresChallengeRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)
	leaderboardRepo := repository.NewPostgresLeaderboardRepo(db)

	// 3. セキュリティサービス・メトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	broadcaster := auth.NewStateBroadcaster()
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo, tokenRepo,
		auth.NewLogMailer(slog.Default()), broadcaster,
		auth.ServiceConfig{
			SessionMaxAge: time.Duration(cfg.SessionMaxAge) * time.Second,
			OTPTTL:        cfg.OTPTTL,
			ResetTokenTTL: cfg.ResetTokenTTL,
			BaseURL:       cfg.BaseURL,
		},
	)

	taskService := task.NewService(taskRepo, profileRepo, sanitizer, collector)
	challengeService := challenge.NewService(challengeRepo, profileRepo, collector)

	avatarProber := user.NewAvatarURLProber(ssrfGuard)
	userService := user.NewService(userRepo, sessionRepo, profileRepo, challengeRepo, avatarProber)

	stripeGateway := billing.NewStripeClient(billing.StripeConfig{
		SecretKey: cfg.StripeSecretKey,
		PriceID:   cfg.StripePriceID,
		AppScheme: cfg.AppScheme,
	})
	billingService := billing.NewService(stripeGateway, profileRepo)
	webhookProcessor := billing.NewWebhookProcessor(cfg.StripeWebhookSecret)

	// 5. 変更フィードとWebSocketハブの起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := changefeed.NewListener(cfg.DatabaseURL, slog.Default())
	go func() {
		if err := listener.Start(ctx); err != nil {
			slog.Error("change feed listener stopped", slog.String("error", err.Error()))
		}
	}()

	hub := realtime.NewHub(slog.Default())
	hub.Attach(listener)
	defer hub.Detach()

	realtimeHandler := realtime.NewHandler(
		hub,
		func(r *http.Request) string {
			userID, err := middleware.UserIDFromContext(r.Context())
			if err != nil {
				return ""
			}
			return userID
		},
		collector, slog.Default(), cfg.CORSAllowedOrigin,
	)

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterConfig(cfg)),
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		AuthService:    authService,
		ProfileCreator: userService,
		AuthMetrics:    collector,
		AuthConfig:     handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		TaskService:      taskService,
		ChallengeService: challengeService,
		ProfileService:   userService,
		UserService:      userService,
		Leaderboard:      leaderboardRepo,

		BillingService:   billingService,
		WebhookProcessor: webhookProcessor,

		MetricsHandler:  metrics.Handler(registry),
		RealtimeHandler: realtimeHandler,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

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
// 期限切れデータのクリーンアップとランキングビューの更新を定期実行する。
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
	sessionRepo := repository.NewPostgresSessionRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)
	leaderboardRepo := repository.NewPostgresLeaderboardRepo(db)

	// 3. ジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, tokenRepo, slog.Default())
	refreshJob := leaderboard.NewRefreshJob(leaderboardRepo, slog.Default())

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
		slog.Duration("leaderboard_refresh_interval", cfg.LeaderboardRefreshInterval),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go cleanupJob.Start(ctx, 24*time.Hour)

	// ランキングビューの更新をメインgoroutineで実行（ブロッキング）
	refreshJob.Start(ctx, cfg.LeaderboardRefreshInterval)

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
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
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

// rateLimiterConfig はreq/min単位の設定値をrate.Limit（req/sec）に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	limiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		limiterCfg.GeneralRate = rateLimitPerSecond(cfg.RateLimitGeneral)
		limiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitMutation > 0 {
		limiterCfg.MutationRate = rateLimitPerSecond(cfg.RateLimitMutation)
		limiterCfg.MutationBurst = cfg.RateLimitMutation
	}
	return limiterCfg
}

func rateLimitPerSecond(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / 60.0)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
