package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/silverlens/internal/metrics"
	"github.com/hitoshi/silverlens/internal/model"
)

// DefaultCookieName はブラウザセッションCookieの名前。
const DefaultCookieName = "sl_session"

// SessionCloser はログアウト時にセッション監査レコードを閉じるためのインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionCloser interface {
	FindLatestByUserID(ctx context.Context, userID string) (*model.Session, error)
	Close(ctx context.Context, id string, logoutAt time.Time) (bool, error)
}

// Config はセッション管理の設定。
type Config struct {
	CookieName   string
	CookieDomain string
	CookieSecure bool
	MaxAge       time.Duration
	Secret       string // Cookie値の署名鍵
}

// Manager はブラウザセッションの開始、読み出し、ログアウトを管理する。
type Manager struct {
	store    Store
	sessions SessionCloser
	config   Config
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(store Store, sessions SessionCloser, config Config, mc metrics.MetricsCollector) *Manager {
	if config.CookieName == "" {
		config.CookieName = DefaultCookieName
	}
	if config.MaxAge <= 0 {
		config.MaxAge = 24 * time.Hour
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Manager{
		store:    store,
		sessions: sessions,
		config:   config,
		metrics:  mc,
		now:      time.Now,
	}
}

// Start は新しいトークンを発行して状態を保存し、Cookieを設定する。
// 保存に失敗した場合は1回だけ再試行する。再試行でも失敗した場合はCookieを設定せずエラーを返す。
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, state *State) error {
	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate session token: %w", err)
	}
	if state.CreatedAt.IsZero() {
		state.CreatedAt = m.now()
	}

	if err := m.store.Save(ctx, token, state, m.config.MaxAge); err != nil {
		slog.Warn("session state save failed, retrying",
			slog.String("user_id", state.UserID),
			slog.String("error", err.Error()),
		)
		if err := m.store.Save(ctx, token, state, m.config.MaxAge); err != nil {
			return fmt.Errorf("failed to save session state: %w", err)
		}
	}

	http.SetCookie(w, m.cookie(m.sign(token), int(m.config.MaxAge.Seconds())))
	return nil
}

// Load はCookieから状態を読み出す。Cookieがない、署名が不正、期限切れの場合はnilを返す。
func (m *Manager) Load(r *http.Request) (*State, error) {
	token, ok := m.tokenFromRequest(r)
	if !ok {
		return nil, nil
	}
	st, err := m.store.Load(r.Context(), token)
	if err != nil {
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}
	return st, nil
}

// Logout はセッション監査レコードを閉じ、一時状態とCookieを破棄する。
// 状態にSessionIDがない場合は、ユーザーの最新セッションを検索して回復する。
// 部分的な失敗はログに記録するのみで、一時状態の破棄とCookieの失効は常に行う。
func (m *Manager) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request, fallbackUserID string) string {
	token, hasToken := m.tokenFromRequest(r)

	var st *State
	if hasToken {
		loaded, err := m.store.Load(ctx, token)
		if err != nil {
			slog.Error("failed to load session state on logout", slog.String("error", err.Error()))
		}
		st = loaded
	}

	outcome := m.closeSession(ctx, st, fallbackUserID)
	m.metrics.RecordLogout(outcome)

	if hasToken {
		if err := m.store.Delete(ctx, token); err != nil {
			slog.Error("failed to delete session state", slog.String("error", err.Error()))
		}
	}
	http.SetCookie(w, m.cookie("", -1))

	return outcome
}

// closeSession は監査レコードにlogout_timeを設定し、結果をmetricsのラベル値で返す。
func (m *Manager) closeSession(ctx context.Context, st *State, fallbackUserID string) string {
	userID := fallbackUserID
	sessionID := ""
	if st != nil {
		sessionID = st.SessionID
		if st.UserID != "" {
			userID = st.UserID
		}
	}

	// 1. SessionIDがなければユーザーの最新セッションから回復
	recovered := false
	if sessionID == "" && userID != "" {
		latest, err := m.sessions.FindLatestByUserID(ctx, userID)
		if err != nil {
			slog.Error("failed to recover session on logout",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		} else if latest != nil {
			sessionID = latest.ID
			recovered = true
		}
	}

	// 2. 回復できなければ開いたままのセッションとして記録のみ
	if sessionID == "" {
		slog.Warn("dangling open session: no session id resolvable on logout",
			slog.String("user_id", userID),
		)
		return metrics.LogoutDangling
	}

	// 3. logout_timeを設定（既に設定済みなら何もしない）
	closed, err := m.sessions.Close(ctx, sessionID, m.now())
	if err != nil {
		slog.Error("failed to close session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return metrics.LogoutDangling
	}
	if !closed {
		return metrics.LogoutAlreadyClosed
	}

	slog.Info("user logged out",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
		slog.Bool("recovered", recovered),
	)
	if recovered {
		return metrics.LogoutRecovered
	}
	return metrics.LogoutClosed
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.config.CookieName,
		Value:    value,
		Path:     "/",
		Domain:   m.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// tokenFromRequest はCookieの署名を検証してトークンを返す。
func (m *Manager) tokenFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.config.CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return m.verify(c.Value)
}

// sign はトークンにHMAC-SHA256署名を付加する。
func (m *Manager) sign(token string) string {
	return token + "." + m.mac(token)
}

func (m *Manager) verify(value string) (string, bool) {
	token, sig, ok := strings.Cut(value, ".")
	if !ok || token == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(m.mac(token))) {
		return "", false
	}
	return token, true
}

func (m *Manager) mac(token string) string {
	h := hmac.New(sha256.New, []byte(m.config.Secret))
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

// generateToken は暗号的に安全なトークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
