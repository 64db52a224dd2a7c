package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/silverlens/internal/auth"
	"github.com/hitoshi/silverlens/internal/config"
	"github.com/hitoshi/silverlens/internal/database"
	"github.com/hitoshi/silverlens/internal/geo"
	"github.com/hitoshi/silverlens/internal/handler"
	"github.com/hitoshi/silverlens/internal/logger"
	"github.com/hitoshi/silverlens/internal/metrics"
	"github.com/hitoshi/silverlens/internal/middleware"
	"github.com/hitoshi/silverlens/internal/notify"
	"github.com/hitoshi/silverlens/internal/repository"
	"github.com/hitoshi/silverlens/internal/security"
	"github.com/hitoshi/silverlens/internal/session"
	"github.com/hitoshi/silverlens/internal/worker/cleanup"
	"github.com/hitoshi/silverlens/internal/worker/snapshot"
)

// Init はアプリケーションの初期化を行う。
// 環境変数（と.envファイル）からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルを反映する
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("invalid LOG_LEVEL, using info", slog.String("error", err.Error()))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

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
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSnapshot:
		return runSnapshot(cfg)
	default:
		return runServe(cfg)
	}
}

// pools は認証ストアと施設データストアのコネクションプール。
// 同じURLの場合は1つのプールを共有する。
type pools struct {
	auth        *sql.DB
	communities *sql.DB
}

// openPools はコネクションプールを開き、接続を確認する。
func openPools(ctx context.Context, cfg *config.Config) (*pools, error) {
	poolCfg := database.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetime:  cfg.DBConnMaxLifetime,
		StatementTimeout: cfg.DBStatementTimeout,
	}

	authDB, err := database.Open(cfg.DatabaseURL, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := authDB.PingContext(ctx); err != nil {
		authDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	p := &pools{auth: authDB, communities: authDB}
	if cfg.CommunitiesDatabaseURL != cfg.DatabaseURL {
		communitiesDB, err := database.Open(cfg.CommunitiesDatabaseURL, poolCfg)
		if err != nil {
			authDB.Close()
			return nil, err
		}
		if err := communitiesDB.PingContext(ctx); err != nil {
			communitiesDB.Close()
			authDB.Close()
			return nil, fmt.Errorf("failed to connect to communities database: %w", err)
		}
		p.communities = communitiesDB
	}

	slog.Info("database connection established",
		slog.Bool("separate_communities_db", p.communities != p.auth),
	)
	return p, nil
}

// Close はすべてのプールを閉じる。
func (p *pools) Close() {
	if p.communities != p.auth {
		if err := p.communities.Close(); err != nil {
			slog.Error("failed to close communities database", slog.String("error", err.Error()))
		}
	}
	if err := p.auth.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}
}

// checkers はヘルスチェック対象のプールを返す。
func (p *pools) checkers() []handler.HealthChecker {
	if p.communities == p.auth {
		return []handler.HealthChecker{p.auth}
	}
	return []handler.HealthChecker{p.auth, p.communities}
}

// sessionStore はSESSION_STOREに応じた一時状態の保存先を生成する。
func sessionStore(ctx context.Context, cfg *config.Config) (session.Store, io.Closer, error) {
	if cfg.SessionStore == config.SessionStoreRedis {
		client, err := session.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store := session.NewRedisStore(client)
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("session store: redis")
		return store, store, nil
	}

	store := session.NewMemoryStore(cfg.SessionMaxEntries, time.Minute)
	slog.Info("session store: memory", slog.Int("max_entries", cfg.SessionMaxEntries))
	return store, store, nil
}

// oauthProviders は設定済みの外部IdPのみを生成する。
func oauthProviders(cfg *config.Config) []auth.OAuthProvider {
	var providers []auth.OAuthProvider
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
	}
	if cfg.MicrosoftEnabled() {
		providers = append(providers, auth.NewMicrosoftOAuthProvider(auth.MicrosoftOAuthConfig{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			RedirectURL:  cfg.MicrosoftRedirectURL,
			Tenant:       cfg.MicrosoftTenant,
		}))
	}
	return providers
}

// notifier はSMTP_HOSTが設定されていればSMTP、なければログ出力のNotifierを返す。
func notifier(cfg *config.Config) notify.Notifier {
	if cfg.SMTPHost == "" {
		return notify.LogNotifier{}
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとバックグラウンドジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := openPools(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.auth, "auth"),
	)
	mc := metrics.NewCollector(reg)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db.auth)
	providerRepo := repository.NewPostgresProviderRepo(db.auth)
	sessionRepo := repository.NewPostgresSessionRepo(db.auth)
	communityRepo := repository.NewPostgresCommunityRepo(db.communities)

	// 4. 認証ストラテジーの初期化（設定で有効なもののみ）
	reconciler := auth.NewReconciler(userRepo, providerRepo, sessionRepo, auth.NewProviderCache())
	var local *auth.LocalStrategy
	if cfg.LocalAuthEnabled {
		local, err = auth.NewLocalStrategy(userRepo, security.NewNameSanitizer(), notifier(cfg), cfg.BcryptCost)
		if err != nil {
			return fmt.Errorf("failed to init local auth: %w", err)
		}
	}
	providers := oauthProviders(cfg)
	authService := auth.NewService(reconciler, local, providers...)
	slog.Info("auth strategies configured",
		slog.Any("oauth_providers", authService.ProviderKeys()),
		slog.Bool("local", authService.LocalEnabled()),
	)

	// 5. セッション管理の初期化
	store, storeCloser, err := sessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer storeCloser.Close()
	sessionManager := session.NewManager(store, sessionRepo, session.Config{
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
		MaxAge:       cfg.SessionTTL(),
		Secret:       cfg.SessionSecret,
	}, mc)

	// 6. バックグラウンドジョブの起動
	exporter := snapshot.NewExporter(communityRepo, cfg.SnapshotPath, slog.Default(), mc)
	go exporter.Start(ctx, cfg.SnapshotInterval)

	sweeper := cleanup.NewSessionSweepJob(db.auth, slog.Default(), cfg.SessionTTL())
	go sweeper.Start(ctx, cfg.SessionSweepInterval)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitLogin))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SessionLoader:      sessionManager,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),
		Metrics:     mc,

		AuthService: authService,
		Sessions:    sessionManager,
		AuthConfig: handler.AuthHandlerConfig{
			CookieSecure:    cfg.CookieSecure,
			FrontendURL:     cfg.FrontendURL,
			HomePageURL:     cfg.HomePageURL,
			LoginFailureURL: cfg.LoginFailureURL,
		},
		LocalAuthEnabled: authService.LocalEnabled(),

		Geo:     geo.NewService(communityRepo, mc),
		Counter: snapshot.NewReader(cfg.SnapshotPath),

		HealthCheckers: db.checkers(),
		MetricsHandler: metrics.Handler(reg),
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
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

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(result.From)),
		slog.Uint64("to_version", uint64(result.To)),
		slog.Bool("changed", result.Changed()),
	)
	return nil
}

// runSnapshot は施設データのスナップショットを1回出力して終了する。
func runSnapshot(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openPools(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	exporter := snapshot.NewExporter(repository.NewPostgresCommunityRepo(db.communities), cfg.SnapshotPath, slog.Default(), nil)
	n, err := exporter.Run(ctx)
	if err != nil {
		return fmt.Errorf("snapshot export failed: %w", err)
	}

	slog.Info("snapshot written",
		slog.String("path", exporter.Path()),
		slog.Int("communities", n),
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
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
