package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/silverlens/internal/database"
	"github.com/hitoshi/silverlens/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `user_id, email, first_name, last_name, password, created_at`

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	)
	return scanUser(row, "find user by email")
}

// Create はユーザーを作成する。パスワードが空の場合はNULLとして保存する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	var password sql.NullString
	if user.Password != "" {
		password = sql.NullString{String: user.Password, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (user_id, email, first_name, last_name, password, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.FirstName, user.LastName, password, user.CreatedAt,
	)
	return database.Classify("create user", err)
}

func scanUser(row *sql.Row, op string) (*model.User, error) {
	user := &model.User{}
	var password sql.NullString
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &password, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(op, err)
	}
	user.Password = password.String
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
