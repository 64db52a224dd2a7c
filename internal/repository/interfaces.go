// Package repository はデータ永続化のインターフェースを定義する。
// すべてのクエリはパラメータバインディングで実行し、値を文字列連結しない。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/silverlens/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByEmail はメールアドレス（完全一致）でユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// emailが既に存在する場合は一意制約違反のエラーを返す（database.IsUniqueViolationで判定可能）。
	Create(ctx context.Context, user *model.User) error
}

// ProviderRepository は認証プロバイダーの永続化インターフェース。
type ProviderRepository interface {
	// FindByName はプロバイダー名（大文字小文字を区別しない）で検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.OAuthProvider, error)

	// Create はプロバイダーを作成する。
	// 同名（大文字小文字を区別しない）が既に存在する場合は一意制約違反のエラーを返す。
	Create(ctx context.Context, provider *model.OAuthProvider) error
}

// SessionRepository はログインセッション監査レコードの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindLatestByUserID はユーザーの最新（login_time降順）のセッションを取得する。
	// 見つからない場合はnilを返す。
	FindLatestByUserID(ctx context.Context, userID string) (*model.Session, error)

	// Close はlogout_timeが未設定のセッションにlogoutAtを設定する。
	// 既にログアウト済み、または存在しない場合はfalseを返す（冪等）。
	Close(ctx context.Context, id string, logoutAt time.Time) (bool, error)
}

// CommunityRepository はコミュニティ（施設）データの参照インターフェース。
type CommunityRepository interface {
	// FindInBounds は矩形範囲内（境界を含む）の施設をcommunity_id順に最大limit件返す。
	// stateが空でない場合は州の完全一致でさらに絞り込む。
	FindInBounds(ctx context.Context, bounds model.Bounds, state string, limit int) ([]model.Community, error)

	// ListAll は全施設を返す。スナップショット出力用。
	ListAll(ctx context.Context) ([]model.Community, error)
}
