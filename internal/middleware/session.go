// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/silverlens/internal/model"
	"github.com/hitoshi/silverlens/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// stateContextKey はリクエストコンテキストにセッション状態を格納するためのキー。
	stateContextKey = contextKey("session_state")
)

// SessionLoader はリクエストからセッション状態を読み出すインターフェース。
// session.Managerが実装する。
type SessionLoader interface {
	Load(r *http.Request) (*session.State, error)
}

// NewSessionMiddleware はセッションCookieから状態を読み出し、
// 認証済みの場合はユーザーIDとセッション状態をリクエストコンテキストに注入する。
// 未認証のリクエストもそのまま通す。認証必須のルートにはRequireAuthを併用する。
func NewSessionMiddleware(loader SessionLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieからセッション状態を取得
			state, err := loader.Load(r)
			if err != nil {
				// ストア障害は未認証として扱う
				slog.Warn("failed to load session state",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if state == nil || state.UserID == "" {
				next.ServeHTTP(w, r)
				return
			}

			// 2. 認証済みユーザーをコンテキストに注入
			ctx := ContextWithState(r.Context(), state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth は未認証のリクエストに401 Unauthorizedを返すミドルウェア。
// NewSessionMiddlewareの後に配置する。
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := UserIDFromContext(r.Context()); err != nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過した認証済みリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// StateFromContext はリクエストコンテキストからセッション状態を取得する。
func StateFromContext(ctx context.Context) (*session.State, bool) {
	state, ok := ctx.Value(stateContextKey).(*session.State)
	return state, ok && state != nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithState はコンテキストにセッション状態とそのユーザーIDを注入する。
func ContextWithState(ctx context.Context, state *session.State) context.Context {
	ctx = context.WithValue(ctx, stateContextKey, state)
	return ContextWithUserID(ctx, state.UserID)
}
