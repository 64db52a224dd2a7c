package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// セッション状態の保存先。
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL            string        `env:"DATABASE_URL,required,notEmpty"`
	CommunitiesDatabaseURL string        `env:"COMMUNITIES_DATABASE_URL"`
	DBMaxOpenConns         int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns         int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime      time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBStatementTimeout     time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"30s"`

	// OAuth（client IDとsecretの両方が設定されたプロバイダーのみ有効）
	GoogleClientID        string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret    string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL     string `env:"GOOGLE_REDIRECT_URL"`
	MicrosoftClientID     string `env:"MICROSOFT_CLIENT_ID"`
	MicrosoftClientSecret string `env:"MICROSOFT_CLIENT_SECRET"`
	MicrosoftRedirectURL  string `env:"MICROSOFT_REDIRECT_URL"`
	MicrosoftTenant       string `env:"MICROSOFT_TENANT" envDefault:"common"`

	// Local auth
	LocalAuthEnabled bool `env:"LOCAL_AUTH_ENABLED" envDefault:"true"`
	BcryptCost       int  `env:"BCRYPT_COST" envDefault:"10"`

	// Redirects
	FrontendURL     string `env:"FRONTEND_URL" envDefault:"http://localhost:3000/"`
	HomePageURL     string `env:"HOME_PAGE_URL" envDefault:"http://localhost:3000/home-page"`
	LoginFailureURL string `env:"LOGIN_FAILURE_URL" envDefault:"http://localhost:3000/"`

	// Session
	SessionSecret        string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionMaxAge        int           `env:"SESSION_MAX_AGE" envDefault:"86400"`
	SessionStore         string        `env:"SESSION_STORE" envDefault:"memory"`
	SessionMaxEntries    int           `env:"SESSION_MAX_ENTRIES" envDefault:"10000"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1h"`
	RedisURL             string        `env:"REDIS_URL"`

	// Snapshot
	SnapshotPath     string        `env:"SNAPSHOT_PATH" envDefault:"public/communitiesData.json"`
	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"24h"`

	// SMTP（SMTP_HOST未設定時はウェルカムメールをログ出力のみにする）
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	// Rate Limit（ローカル認証のIP単位の1分あたりリクエスト数）
	RateLimitLogin int `env:"RATE_LIMIT_LOGIN" envDefault:"10"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

// Load は.envファイルと環境変数からConfigを読み込む。
// .envが存在しない場合は環境変数のみを使用する。既に設定済みの環境変数は.envで上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load(dotenvFiles ...string) (*Config, error) {
	if err := loadDotEnv(dotenvFiles...); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Derived fields
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CommunitiesDatabaseURL == "" {
		cfg.CommunitiesDatabaseURL = cfg.DatabaseURL
	}
	if cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = cfg.BaseURL + "/auth/google/callback"
	}
	if cfg.MicrosoftRedirectURL == "" {
		cfg.MicrosoftRedirectURL = cfg.BaseURL + "/auth/microsoft/callback"
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE=%s", SessionStoreRedis)
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreMemory, SessionStoreRedis, c.SessionStore)
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive, got %d", c.SessionMaxAge)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	return nil
}

// GoogleEnabled はGoogleログインが有効かどうかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// MicrosoftEnabled はMicrosoftログインが有効かどうかを返す。
func (c *Config) MicrosoftEnabled() bool {
	return c.MicrosoftClientID != "" && c.MicrosoftClientSecret != ""
}

// SessionTTL はセッションの有効期限を返す。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}
