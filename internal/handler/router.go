package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/silverlens/internal/metrics"
	"github.com/hitoshi/silverlens/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionLoader      middleware.SessionLoader
	CORSAllowedOrigins []string
	CSRFConfig         middleware.CSRFConfig
	RateLimiter        *middleware.RateLimiter // nilの場合はレート制限なし
	Logger             *slog.Logger
	Metrics            metrics.MetricsCollector

	// 認証
	AuthService      AuthServiceInterface
	Sessions         SessionManager
	AuthConfig       AuthHandlerConfig
	LocalAuthEnabled bool

	// 施設データ
	Geo     GeoQuerier
	Counter CommunityCounter

	// 運用
	HealthCheckers []HealthChecker
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Recovery → SecurityHeaders → CORS → Session → Logging
//
// Sessionは未認証のリクエストも通す。認証必須のルートにはRequireAuthを追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins...))
	r.Use(middleware.NewSessionMiddleware(deps.SessionLoader))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))

	authHandler := NewAuthHandler(deps.AuthService, deps.Sessions, deps.AuthConfig, deps.Metrics)
	communityHandler := NewCommunityHandler(deps.Geo, deps.Counter)

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証ルート ---
	r.Route("/auth", func(r chi.Router) {
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// ローカル認証（CSRF検証 + IP単位のレート制限）
		if deps.LocalAuthEnabled {
			r.Group(func(r chi.Router) {
				if deps.RateLimiter != nil {
					r.Use(deps.RateLimiter.LoginMiddleware())
				}
				r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

				r.Post("/local-signup", authHandler.LocalSignUp)
				r.Post("/local-login", authHandler.LocalLogin)

				// 旧フロントエンド向けの別名
				r.Post("/shs-signup", authHandler.LocalSignUp)
				r.Post("/shs", authHandler.LocalLogin)
			})
		}

		// OAuthフロー（無効なプロバイダーは404）
		r.Get("/{provider}", authHandler.Login)
		r.Get("/{provider}/callback", authHandler.Callback)
	})

	// ログアウトは未認証でもCookie破棄とリダイレクトを行う
	r.Get("/logout", authHandler.Logout)
	r.Get("/internal/get-total-communities", communityHandler.GetTotalCommunities)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Get("/home", authHandler.Home)
		r.Get("/internal/get-communities", communityHandler.GetCommunities)
	})

	return r
}
