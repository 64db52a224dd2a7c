// Package session はブラウザセッション（一時状態）とログインセッション監査レコードのライフサイクルを管理する。
// 一時状態はMemoryStoreまたはRedisStoreに保持し、監査レコードはsessionsテーブルが正とする。
package session

import (
	"context"
	"errors"
	"time"
)

// ErrStoreFull はMemoryStoreが上限に達し、期限切れエントリもない場合のエラー。
var ErrStoreFull = errors.New("session store is full")

// State はブラウザセッショントークンに紐づく一時状態。
// SessionIDはsessionsテーブルの行を指し、ログアウト時にlogout_timeを設定するために使う。
type State struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

// Store は一時状態の保存先のインターフェース。
type Store interface {
	// Save はトークンに状態を保存する。ttl経過後は読み出せない。
	Save(ctx context.Context, token string, state *State, ttl time.Duration) error
	// Load はトークンの状態を返す。存在しない、または期限切れの場合はnilを返す。
	Load(ctx context.Context, token string) (*State, error)
	// Delete はトークンの状態を削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, token string) error
}
