// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/silverlens/internal/auth"
	"github.com/hitoshi/silverlens/internal/metrics"
	"github.com/hitoshi/silverlens/internal/middleware"
	"github.com/hitoshi/silverlens/internal/model"
	"github.com/hitoshi/silverlens/internal/session"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分

	// maxFormBytes はローカル認証フォームのリクエストボディ上限。
	maxFormBytes = 64 << 10
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Provider(key string) (auth.OAuthProvider, bool)
	GetLoginURL(key, state string) (string, error)
	HandleCallback(ctx context.Context, key, code string, client model.ClientInfo) (*auth.ReconcileResult, error)
	LoginLocal(ctx context.Context, email, password string, client model.ClientInfo) (*auth.ReconcileResult, error)
	SignUpLocal(ctx context.Context, in auth.SignUpInput, client model.ClientInfo) (*auth.ReconcileResult, error)
}

// SessionManager はブラウザセッションの開始と終了を行うインターフェース。
// session.Managerが実装する。
type SessionManager interface {
	Start(ctx context.Context, w http.ResponseWriter, state *session.State) error
	Logout(ctx context.Context, w http.ResponseWriter, r *http.Request, fallbackUserID string) string
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieSecure    bool
	FrontendURL     string // ログアウト後のリダイレクト先
	HomePageURL     string // ログイン成功後のリダイレクト先
	LoginFailureURL string // OAuthログイン失敗時のリダイレクト先
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	sessions SessionManager
	config   AuthHandlerConfig
	metrics  metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。mcがnilの場合はメトリクスを記録しない。
func NewAuthHandler(service AuthServiceInterface, sessions SessionManager, config AuthHandlerConfig, mc metrics.MetricsCollector) *AuthHandler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		config:   config,
		metrics:  mc,
	}
}

// redirectResponse はローカル認証成功時のレスポンス。
type redirectResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// localAuthRequest はローカル認証のリクエストボディ。JSONとフォームの両方を受け付ける。
type localAuthRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// homeResponse はログインユーザーのプロフィール。
type homeResponse struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Login はOAuthフローを開始する。
// GET /auth/{provider}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "provider")
	if _, ok := h.service.Provider(key); !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProviderNotFoundError(key))
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.GetLoginURL(key, state)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	h.setStateCookie(w, state, oauthStateMaxAge)
	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/{provider}/callback?code=xxx&state=yyy
// 失敗時はログイン失敗ページへリダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "provider")
	p, ok := h.service.Provider(key)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProviderNotFoundError(key))
		return
	}

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	h.setStateCookie(w, "", -1)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch", slog.String("provider", p.Name()))
		h.loginFailed(w, r, p.Name(), metrics.LoginFailure)
		return
	}

	// 2. IdP側で拒否された場合はerrorパラメータが付く
	if idpErr := r.URL.Query().Get("error"); idpErr != "" {
		slog.Warn("oauth provider returned error",
			slog.String("provider", p.Name()),
			slog.String("error", idpErr),
		)
		h.loginFailed(w, r, p.Name(), metrics.LoginFailure)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("missing authorization code", slog.String("provider", p.Name()))
		h.loginFailed(w, r, p.Name(), metrics.LoginFailure)
		return
	}

	// 3. 認証と本人情報の照合
	result, err := h.service.HandleCallback(r.Context(), key, code, clientInfo(r))
	if err != nil {
		slog.Error("oauth callback failed",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		h.loginFailed(w, r, p.Name(), loginResultFor(err))
		return
	}

	// 4. ブラウザセッションを開始
	if err := h.startSession(r.Context(), w, result, p.Name()); err != nil {
		slog.Error("failed to start session",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		h.loginFailed(w, r, p.Name(), metrics.LoginError)
		return
	}

	h.metrics.RecordLogin(p.Name(), metrics.LoginSuccess)
	http.Redirect(w, r, h.config.HomePageURL, http.StatusTemporaryRedirect)
}

// LocalLogin はメールアドレスとパスワードでログインする。
// POST /auth/local-login
func (h *AuthHandler) LocalLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLocalAuthRequest(w, r)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldsError())
		return
	}

	result, err := h.service.LoginLocal(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		h.metrics.RecordLogin(model.ProviderLocal, loginResultFor(err))
		handleServiceError(w, r, err)
		return
	}

	if err := h.startSession(r.Context(), w, result, model.ProviderLocal); err != nil {
		h.metrics.RecordLogin(model.ProviderLocal, metrics.LoginError)
		handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordLogin(model.ProviderLocal, metrics.LoginSuccess)
	writeJSON(w, http.StatusOK, redirectResponse{RedirectURL: h.config.HomePageURL})
}

// LocalSignUp はローカルアカウントを作成し、そのままログインさせる。
// POST /auth/local-signup
func (h *AuthHandler) LocalSignUp(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLocalAuthRequest(w, r)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldsError())
		return
	}

	result, err := h.service.SignUpLocal(r.Context(), auth.SignUpInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, clientInfo(r))
	if err != nil {
		h.metrics.RecordLogin(model.ProviderLocal, loginResultFor(err))
		handleServiceError(w, r, err)
		return
	}

	if err := h.startSession(r.Context(), w, result, model.ProviderLocal); err != nil {
		h.metrics.RecordLogin(model.ProviderLocal, metrics.LoginError)
		handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordLogin(model.ProviderLocal, metrics.LoginSuccess)
	writeJSON(w, http.StatusCreated, redirectResponse{RedirectURL: h.config.HomePageURL})
}

// Home はログインユーザーのプロフィールを返す。
// GET /home
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	st, ok := middleware.StateFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, homeResponse{
		FirstName: st.FirstName,
		LastName:  st.LastName,
		Email:     st.Email,
	})
}

// Logout はログインセッションを閉じ、フロントエンドへリダイレクトする。
// GET /logout
// 未認証でも一時状態とCookieの破棄を行い、常にリダイレクトする。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	outcome := h.sessions.Logout(r.Context(), w, r, userID)
	slog.Debug("logout finished",
		slog.String("user_id", userID),
		slog.String("outcome", outcome),
	)
	http.Redirect(w, r, h.config.FrontendURL, http.StatusTemporaryRedirect)
}

// startSession は照合結果からセッション状態を作り、ブラウザセッションを開始する。
func (h *AuthHandler) startSession(ctx context.Context, w http.ResponseWriter, result *auth.ReconcileResult, provider string) error {
	st := &session.State{
		UserID:    result.User.ID,
		Email:     result.User.Email,
		FirstName: result.User.FirstName,
		LastName:  result.User.LastName,
		Provider:  provider,
	}
	if result.Session != nil {
		st.SessionID = result.Session.ID
	}
	return h.sessions.Start(ctx, w, st)
}

func (h *AuthHandler) loginFailed(w http.ResponseWriter, r *http.Request, provider, result string) {
	h.metrics.RecordLogin(provider, result)
	http.Redirect(w, r, h.config.LoginFailureURL, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) setStateCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// decodeLocalAuthRequest はJSONまたはフォームのリクエストボディを読み取る。
func decodeLocalAuthRequest(w http.ResponseWriter, r *http.Request) (localAuthRequest, error) {
	var req localAuthRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Email = r.PostForm.Get("email")
	req.Password = r.PostForm.Get("password")
	req.FirstName = r.PostForm.Get("firstName")
	req.LastName = r.PostForm.Get("lastName")
	return req, nil
}

// clientInfo はセッションレコードに記録するクライアント情報を取得する。
func clientInfo(r *http.Request) model.ClientInfo {
	return model.ClientInfo{
		IPAddress: middleware.ClientIP(r),
		UserAgent: strings.TrimSpace(r.UserAgent()),
	}
}

// loginResultFor はエラーをログインメトリクスのラベル値に変換する。
// 利用者の入力に起因する失敗はfailure、ストア障害などはerrorとする。
func loginResultFor(err error) string {
	if errors.Is(err, model.ErrConnection) || errors.Is(err, model.ErrQuery) {
		return metrics.LoginError
	}
	return metrics.LoginFailure
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
