package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/silverlens/internal/database"
	"github.com/hitoshi/silverlens/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

const sessionColumns = `session_id, user_id, provider_id, login_time, logout_time, ip_address, user_agent`

// Create はセッションを作成する。logout_timeは常にNULLで開始する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, provider_id, login_time, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.UserID, session.ProviderID, session.LoginTime,
		session.IPAddress, session.UserAgent,
	)
	return database.Classify("create session", err)
}

// FindLatestByUserID はユーザーの最新セッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindLatestByUserID(ctx context.Context, userID string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_id = $1
		 ORDER BY login_time DESC
		 LIMIT 1`,
		userID,
	)
	return scanSession(row, "find latest session")
}

// Close はセッションのlogout_timeを設定する。既に設定済みの行は更新しない。
func (r *PostgresSessionRepo) Close(ctx context.Context, id string, logoutAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET logout_time = $2
		 WHERE session_id = $1 AND logout_time IS NULL`,
		id, logoutAt,
	)
	if err != nil {
		return false, database.Classify("close session", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, database.Classify("close session", err)
	}
	return n > 0, nil
}

func scanSession(row *sql.Row, op string) (*model.Session, error) {
	s := &model.Session{}
	var logoutTime sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.ProviderID, &s.LoginTime, &logoutTime, &s.IPAddress, &s.UserAgent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(op, err)
	}
	if logoutTime.Valid {
		t := logoutTime.Time
		s.LogoutTime = &t
	}
	return s, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
