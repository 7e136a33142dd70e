package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/nimbo/internal/metrics"
	"github.com/hitoshi/nimbo/internal/middleware"
)

// HealthChecker はヘルスチェックで疎通を確認する依存先。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	HSTS              bool

	// メトリクス。MetricsHandlerがnilの場合は/metricsを公開しない。
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 農場
	FarmService       FarmServiceInterface
	InvitationService InvitationServiceInterface
	MemberChecker     MemberChecker
	Events            EventSubscriber
	SSEKeepAlive      time.Duration

	// 記録
	RainfallService  RainfallServiceInterface
	SheepService     SheepServiceInterface
	TaskService      TaskServiceInterface
	DashboardService DashboardServiceInterface

	// 設定・外部サービス
	LocationService LocationServiceInterface
	WeatherService  WeatherServiceInterface
	Mailer          WelcomeMailer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//	  → (保護ルート) Session → Approval → RateLimit(General) → CSRF
//
// 認証ルート（/auth/*）とヘルスチェックは保護ルートの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	farmHandler := NewFarmHandler(deps.FarmService)
	invHandler := NewInvitationHandler(deps.InvitationService)
	eventsHandler := NewEventsHandler(deps.Events, deps.MemberChecker, deps.SSEKeepAlive)
	rainHandler := NewRainfallHandler(deps.RainfallService)
	sheepHandler := NewSheepHandler(deps.SheepService)
	taskHandler := NewTaskHandler(deps.TaskService, deps.DashboardService)
	settingsHandler := NewSettingsHandler(deps.LocationService, deps.WeatherService, deps.Mailer)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
	r.HandleFunc("/api/email/welcome", settingsHandler.Welcome)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)
		r.Post("/password/reset", authHandler.RequestPasswordReset)
		r.Post("/password/reset/confirm", authHandler.ConfirmPasswordReset)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.UserFinder))
		r.Use(middleware.NewApprovalMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Route("/api/farms", func(r chi.Router) {
			r.Get("/", farmHandler.ListFarms)
			r.Post("/", farmHandler.CreateFarm)
			r.Get("/active", farmHandler.GetActive)
			r.Put("/active", farmHandler.SetActive)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", farmHandler.GetFarm)
				r.Put("/members/{uid}", farmHandler.ChangeMemberRole)
				r.Delete("/members/{uid}", farmHandler.RemoveMember)
				r.Post("/invitations", invHandler.Invite)
				r.Get("/events", eventsHandler.FarmEvents)
				r.Get("/dashboard", taskHandler.Dashboard)

				r.Route("/rainfall", func(r chi.Router) {
					r.Get("/", rainHandler.List)
					r.Post("/", rainHandler.Create)
					// 取り込みは専用のレート制限を追加する
					r.With(deps.RateLimiter.ImportMiddleware()).Post("/import", rainHandler.Import)
					r.Get("/stats", rainHandler.Stats)
					r.Delete("/{rid}", rainHandler.Delete)
				})

				r.Route("/sheep", func(r chi.Router) {
					r.Get("/", sheepHandler.List)
					r.Post("/", sheepHandler.Create)
					r.Route("/{sid}", func(r chi.Router) {
						r.Get("/", sheepHandler.Get)
						r.Put("/", sheepHandler.Update)
						r.Delete("/", sheepHandler.Archive)
						r.Post("/weights", sheepHandler.AddWeight)
						r.Get("/history", sheepHandler.ListHistory)
						r.Post("/history", sheepHandler.AddHistory)
						r.Get("/genealogy", sheepHandler.Genealogy)
					})
				})

				r.Route("/tasks", func(r chi.Router) {
					r.Get("/", taskHandler.List)
					r.Post("/", taskHandler.Create)
					r.Put("/{tid}", taskHandler.Update)
					r.Delete("/{tid}", taskHandler.Delete)
					r.Post("/{tid}/toggle", taskHandler.Toggle)
				})
			})
		})

		r.Route("/api/invitations", func(r chi.Router) {
			r.Get("/", invHandler.ListPending)
			r.Get("/stream", eventsHandler.InvitationEvents)
			r.Post("/{id}/accept", invHandler.Accept)
			r.Post("/{id}/decline", invHandler.Decline)
		})

		r.Route("/api/settings", func(r chi.Router) {
			r.Get("/location", settingsHandler.GetLocation)
			r.Put("/location", settingsHandler.SaveLocation)
			r.Delete("/location", settingsHandler.ClearLocation)
		})

		r.Route("/api/weather", func(r chi.Router) {
			r.Get("/current", settingsHandler.CurrentWeather)
			r.Get("/forecast", settingsHandler.Forecast)
		})
	})

	return r
}

// healthHandler はDBへの疎通を確認するハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
