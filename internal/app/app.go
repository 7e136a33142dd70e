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

	"github.com/hitoshi/nimbo/internal/auth"
	"github.com/hitoshi/nimbo/internal/config"
	"github.com/hitoshi/nimbo/internal/dashboard"
	"github.com/hitoshi/nimbo/internal/database"
	"github.com/hitoshi/nimbo/internal/events"
	"github.com/hitoshi/nimbo/internal/farm"
	"github.com/hitoshi/nimbo/internal/handler"
	"github.com/hitoshi/nimbo/internal/invitation"
	"github.com/hitoshi/nimbo/internal/location"
	"github.com/hitoshi/nimbo/internal/logger"
	"github.com/hitoshi/nimbo/internal/mail"
	"github.com/hitoshi/nimbo/internal/metrics"
	"github.com/hitoshi/nimbo/internal/middleware"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/rainfall"
	"github.com/hitoshi/nimbo/internal/repository"
	"github.com/hitoshi/nimbo/internal/security"
	"github.com/hitoshi/nimbo/internal/sheep"
	"github.com/hitoshi/nimbo/internal/storage"
	"github.com/hitoshi/nimbo/internal/task"
	"github.com/hitoshi/nimbo/internal/weather"
	"github.com/hitoshi/nimbo/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandApprove:
		if len(args) < 2 || args[1] == "" {
			return errors.New("usage: nimbo approve <email>")
		}
		return runApprove(cfg, args[1])
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// services はserve/approveで共有するドメインサービス群。
type services struct {
	auth       *auth.Service
	farm       *farm.Service
	authz      *farm.Authorizer
	invitation *invitation.Service
	rainfall   *rainfall.Service
	sheep      *sheep.Service
	task       *task.Service
	dashboard  *dashboard.Service
	location   *location.Service
	weather    *weather.Service
	mail       *mail.Service
	hub        *events.Hub

	userRepo    *repository.PostgresUserRepo
	sessionRepo *repository.PostgresSessionRepo
}

// buildServices はリポジトリと外部クライアントを組み立て、全ドメインサービスを生成する。
func buildServices(ctx context.Context, cfg *config.Config, db *sql.DB, collector metrics.MetricsCollector, log *slog.Logger) (*services, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	settingsRepo := repository.NewPostgresSettingsRepo(db)
	farmRepo := repository.NewPostgresFarmRepo(db)
	invitationRepo := repository.NewPostgresInvitationRepo(db)
	rainfallRepo := repository.NewPostgresRainfallRepo(db)
	sheepRepo := repository.NewPostgresSheepRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)

	// 2. 共通コンポーネント
	sanitizer := security.NewTextSanitizer()
	hub := events.NewHub()

	// 3. メール
	mailClient := mail.NewClient(&http.Client{Timeout: cfg.MailTimeout}, cfg.ResendAPIKey, cfg.ResendFrom, log)
	mailService := mail.NewService(mailClient, sanitizer, collector, log, cfg.BaseURL)

	// 4. 認証（GOOGLE_CLIENT_ID未設定時はGoogleログインを無効化）
	var oauthProvider auth.OAuthProvider
	if cfg.OAuthEnabled() {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Timeout:      10 * time.Second,
		})
	}
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo, mailService,
		auth.NewResetTokens(cfg.SessionSecret, cfg.PasswordResetTTL),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
		log,
	)

	// 5. 農場・招待
	authz := farm.NewAuthorizer(farmRepo)
	farmService := farm.NewService(farmRepo, settingsRepo, sanitizer, hub, log)
	invitationService := invitation.NewService(invitationRepo, settingsRepo, authz, hub, collector, log)

	// 6. 降水（S3_BUCKET未設定時は元ファイルを保管しない）
	var archiver storage.Archiver = storage.NopArchiver{}
	if cfg.ArchiveEnabled() {
		s3Archiver, err := storage.NewS3Archiver(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize import archive: %w", err)
		}
		archiver = s3Archiver
	}
	rainfallService := rainfall.NewService(rainfallRepo, authz, archiver, hub, collector, log, cfg.ImportMaxSize)

	// 7. 家畜・作業・ダッシュボード
	sheepService := sheep.NewService(sheepRepo, authz, sanitizer, hub, log)
	taskService := task.NewService(taskRepo, authz, sanitizer, hub, log)
	dashboardService := dashboard.NewService(sheepRepo, rainfallRepo, taskRepo, authz)

	// 8. 位置・天気
	guard := security.NewSSRFGuard(cfg.LocationResolveTimeout, location.ShortLinkHosts...)
	locationService := location.NewService(settingsRepo, location.NewResolver(guard, log), log)
	weatherClient := weather.NewClient(&http.Client{Timeout: cfg.WeatherTimeout}, cfg.OpenWeatherAPIKey, collector, log)
	weatherService := weather.NewService(weatherClient, locationService, log)

	return &services{
		auth:        authService,
		farm:        farmService,
		authz:       authz,
		invitation:  invitationService,
		rainfall:    rainfallService,
		sheep:       sheepService,
		task:        taskService,
		dashboard:   dashboardService,
		location:    locationService,
		weather:     weatherService,
		mail:        mailService,
		hub:         hub,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
	}, nil
}

// newMetricsRegistry はアプリケーションメトリクスとランタイムメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log := slog.Default()
	reg, collector := newMetricsRegistry()

	svc, err := buildServices(ctx, cfg, db, collector, log)
	if err != nil {
		return err
	}

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralPerMinute: cfg.RateLimitGeneral,
		ImportPerMinute:  cfg.RateLimitImport,
		CleanupInterval:  middleware.DefaultRateLimiterConfig().CleanupInterval,
	})
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            log,
		HealthChecker:     db,
		SessionFinder:     svc.sessionRepo,
		UserFinder:        svc.userRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		HSTS: cfg.CookieSecure,

		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),

		AuthService: svc.auth,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		FarmService:       svc.farm,
		InvitationService: svc.invitation,
		MemberChecker:     svc.authz,
		Events:            svc.hub,
		SSEKeepAlive:      handler.DefaultKeepAlive,

		RainfallService:  svc.rainfall,
		SheepService:     svc.sheep,
		TaskService:      svc.task,
		DashboardService: svc.dashboard,

		LocationService: svc.location,
		WeatherService:  svc.weather,
		Mailer:          svc.mail,
	}

	// SSEのストリームはハンドラー側で書き込み期限を解除する
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	server.RegisterOnShutdown(svc.hub.Close)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Bool("oauth_enabled", cfg.OAuthEnabled()),
			slog.Bool("archive_enabled", cfg.ArchiveEnabled()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除を起動時と日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewSessionCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default(), cfg.SessionRetentionDays)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cleanup.DefaultInterval),
		slog.Int("session_retention_days", cfg.SessionRetentionDays),
	)

	job.Start(ctx, cleanup.DefaultInterval)

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

	version, dirty, err := database.CurrentVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runApprove は指定メールアドレスのユーザーを承認する。
func runApprove(cfg *config.Config, email string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := buildServices(ctx, cfg, db, metrics.Nop{}, slog.Default())
	if err != nil {
		return err
	}
	return approveUser(ctx, svc.auth, email)
}

// Approver はユーザー承認を行う依存先。
type Approver interface {
	Approve(ctx context.Context, email string) (*model.User, error)
}

// approveUser は承認を実行し、結果をログに残す。
func approveUser(ctx context.Context, approver Approver, email string) error {
	user, err := approver.Approve(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to approve %s: %w", email, err)
	}
	slog.Info("user approved",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
