package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mrlater/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DB が満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証
	AuthService    AuthServiceInterface
	ProfileCreator ProfileCreatorInterface
	AuthMetrics    AuthMetricsRecorder
	AuthConfig     AuthHandlerConfig

	// タスク
	TaskService TaskServiceInterface

	// チャレンジ
	ChallengeService ChallengeServiceInterface

	// プロフィール・ユーザー
	ProfileService ProfileServiceInterface
	UserService    UserServiceInterface

	// ランキング
	Leaderboard LeaderboardProvider

	// 課金
	BillingService   BillingServiceInterface
	WebhookProcessor WebhookProcessorInterface

	// 運用エンドポイント
	MetricsHandler  http.Handler
	RealtimeHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → CSRF → Session → RateLimit(General)
//
// 認証ルート（/auth/*）、ヘルスチェック、メトリクス、Stripe Webhookは
// ミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通のミドルウェア。リカバリを最外周に置き、
	// どの層のpanicも500に変換する。
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.ProfileCreator, deps.AuthMetrics, deps.AuthConfig)
	taskHandler := NewTaskHandler(deps.TaskService)
	challengeHandler := NewChallengeHandler(deps.ChallengeService)
	profileHandler := NewProfileHandler(deps.ProfileService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	leaderboardHandler := NewLeaderboardHandler(deps.Leaderboard)
	billingHandler := NewBillingHandler(deps.BillingService, deps.WebhookProcessor)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", newHealthHandler(deps.HealthChecker))

	// メトリクス
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Stripe Webhook（Stripeからの呼び出しなのでCSRF・セッションの外）
	r.Post("/webhooks/stripe", billingHandler.HandleWebhook)

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.SignUp)
		r.Post("/signin", authHandler.SignIn)
		r.Post("/signout", authHandler.SignOut)

		r.Post("/otp", authHandler.SendOtp)
		r.Post("/otp/verify", authHandler.VerifyOtp)

		r.Post("/reset", authHandler.RequestPasswordReset)
		r.Post("/reset/confirm", authHandler.ConfirmPasswordReset)

		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)

		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: CSRF → Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		mutation := deps.RateLimiter.MutationMiddleware()

		// CSRFトークン配布
		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// タスク管理
		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)
			// 書き込み系は変更専用レート制限を追加
			r.With(mutation).Post("/", taskHandler.CreateTask)

			r.Route("/{id}", func(r chi.Router) {
				r.With(mutation).Patch("/", taskHandler.UpdateTask)
				r.With(mutation).Delete("/", taskHandler.DeleteTask)
				r.With(mutation).Post("/later", taskHandler.DoLater)
			})
		})

		// チャレンジ管理
		r.Route("/api/challenges", func(r chi.Router) {
			r.Get("/", challengeHandler.ListChallenges)
			r.Get("/joined", challengeHandler.ListJoinedChallenges)

			r.Route("/{id}", func(r chi.Router) {
				r.With(mutation).Post("/join", challengeHandler.Join)
				r.With(mutation).Post("/leave", challengeHandler.Leave)
			})
		})

		// ランキング
		r.Get("/api/leaderboard", leaderboardHandler.Top)

		// プロフィール管理
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.With(mutation).Patch("/", profileHandler.UpdateProfile)
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.With(mutation).Delete("/me", userHandler.Withdraw)
		})

		// 課金
		r.Route("/api/billing", func(r chi.Router) {
			r.With(mutation).Post("/checkout", billingHandler.CreateCheckoutSession)
			r.With(mutation).Post("/portal", billingHandler.CreatePortalSession)
		})

		// 変更フィードのWebSocket配信
		if deps.RealtimeHandler != nil {
			r.Handle("/realtime", deps.RealtimeHandler)
		}
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := checker.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
