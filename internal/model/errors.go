// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ストア・認証・地理検索のエラー分類。
// 呼び出し側はerrors.Isで判定する。
var (
	// ErrConnection はストアに到達できない、またはストア側のタイムアウトを表す。
	ErrConnection = errors.New("store connection error")
	// ErrQuery は不正なSQLや制約違反などクエリ実行の失敗を表す。
	ErrQuery = errors.New("store query error")
	// ErrInvalidCredentials はローカル認証の失敗を表す。
	// ユーザー不在とパスワード不一致を区別しない。
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrMissingEmail は外部IdPのプロフィールにメールアドレスが含まれない場合のエラー。
	ErrMissingEmail = errors.New("email claim missing from provider profile")
	// ErrIdentity は照合に必要なメールアドレスが空の場合のエラー。
	ErrIdentity = errors.New("identity has no email")
	// ErrInvalidBounds は地図範囲のパラメータが数値として解釈できない場合のエラー。
	ErrInvalidBounds = errors.New("invalid coordinates")
	// ErrMissingFields はサインアップの必須項目が欠けている場合のエラー。
	ErrMissingFields = errors.New("all fields are required")
	// ErrInvalidEmail はサインアップ時のメールアドレス形式が不正な場合のエラー。
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrPasswordTooLong はbcryptで扱えない長さ(72バイト超)のパスワードを表す。
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
	// ErrUserExists はサインアップ時に既に同じメールアドレスのユーザーが存在する場合のエラー。
	ErrUserExists = errors.New("user already exists")
	// ErrProviderDisabled は無効化された認証プロバイダーが指定された場合のエラー。
	ErrProviderDisabled = errors.New("auth provider is not enabled")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, geo, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeMissingFields      = "MISSING_FIELDS"
	ErrCodeUserExists         = "USER_EXISTS"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodePasswordTooLong    = "PASSWORD_TOO_LONG"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInvalidBounds      = "INVALID_BOUNDS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeProviderNotFound   = "PROVIDER_NOT_FOUND"
	ErrCodeCSRFInvalid        = "CSRF_INVALID"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidCredentialsError はローカル認証失敗エラーを生成する。
// ユーザー列挙を防ぐため、メッセージは常に同一。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewMissingFieldsError はサインアップ必須項目欠落エラーを生成する。
func NewMissingFieldsError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingFields,
		Message:  "All fields are required.",
		Category: "validation",
		Action:   "Enter email, password, first name and last name.",
	}
}

// NewInvalidEmailError はメールアドレス形式の不正エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "Invalid email address.",
		Category: "validation",
		Action:   "Enter a valid email address.",
	}
}

// NewPasswordTooLongError はパスワード長超過エラーを生成する。
func NewPasswordTooLongError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordTooLong,
		Message:  "Password is too long.",
		Category: "validation",
		Action:   "Use a password of at most 72 bytes.",
	}
}

// NewRateLimitedError はログイン試行回数超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many attempts.",
		Category: "auth",
		Action:   "Please wait a moment and try again.",
	}
}

// NewUserExistsError はユーザー重複エラーを生成する。
func NewUserExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserExists,
		Message:  "User already exists.",
		Category: "auth",
		Action:   "Log in with the existing account.",
	}
}

// NewInvalidBoundsError は地図範囲パラメータの不正エラーを生成する。
func NewInvalidBoundsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBounds,
		Message:  "Invalid coordinates",
		Category: "validation",
		Action:   "neLat, neLng, swLat and swLng must be numbers.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Access denied",
		Category: "auth",
		Action:   "Log in and try again.",
	}
}

// NewProviderNotFoundError は未対応または無効な認証プロバイダーのエラーを生成する。
func NewProviderNotFoundError(provider string) *APIError {
	msg := "Auth provider is not enabled."
	if provider != "" {
		msg = fmt.Sprintf("Unknown auth provider: %s", provider)
	}
	return &APIError{
		Code:     ErrCodeProviderNotFound,
		Message:  msg,
		Category: "auth",
		Action:   "Use one of the enabled login methods.",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Server error. Please try again later.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
