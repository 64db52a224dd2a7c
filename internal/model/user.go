// Package model はドメインモデルを定義する。
package model

import "time"

// 認証プロバイダー名。oauth_providers.provider_name に格納される値。
const (
	ProviderGoogle    = "Google"
	ProviderMicrosoft = "Microsoft"
	ProviderLocal     = "SHS"
)

// User はサービス利用ユーザーを表す。
// Passwordはローカル認証ユーザーのみ保持するbcryptハッシュで、外部IdPのみのユーザーは空。
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Password  string
	CreatedAt time.Time
}

// HasPassword はローカル認証用のパスワードハッシュを持つかどうかを返す。
func (u *User) HasPassword() bool {
	return u.Password != ""
}

// OAuthProvider は認証方式（Google, Microsoft, SHS）を表す。
// プロセス全体で共有される参照データで、初回利用時に作成される。
type OAuthProvider struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Session は1回のログインからログアウトまでの監査レコードを表す。
// LogoutTimeはログイン中はnil、ログアウト時に一度だけ設定される。
type Session struct {
	ID         string
	UserID     string
	ProviderID string
	LoginTime  time.Time
	LogoutTime *time.Time
	IPAddress  string
	UserAgent  string
}

// IsOpen はセッションがまだログアウトされていないかどうかを返す。
func (s *Session) IsOpen() bool {
	return s.LogoutTime == nil
}

// Identity は認証ストラテジーが検証済みとして返す本人情報。
type Identity struct {
	Email     string
	FirstName string
	LastName  string
}

// ClientInfo はセッションレコードに記録するクライアント情報。
type ClientInfo struct {
	IPAddress string
	UserAgent string
}
