package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/silverlens/internal/database"
	"github.com/hitoshi/silverlens/internal/model"
)

// PostgresProviderRepo はPostgreSQLを使用した認証プロバイダーリポジトリ。
type PostgresProviderRepo struct {
	db *sql.DB
}

// NewPostgresProviderRepo はPostgresProviderRepoを生成する。
func NewPostgresProviderRepo(db *sql.DB) *PostgresProviderRepo {
	return &PostgresProviderRepo{db: db}
}

// FindByName はプロバイダー名で検索する。大文字小文字は区別しない。
func (r *PostgresProviderRepo) FindByName(ctx context.Context, name string) (*model.OAuthProvider, error) {
	p := &model.OAuthProvider{}
	err := r.db.QueryRowContext(ctx,
		`SELECT provider_id, provider_name, created_at
		 FROM oauth_providers
		 WHERE lower(provider_name) = lower($1)`,
		name,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify("find provider", err)
	}
	return p, nil
}

// Create はプロバイダーを作成する。
func (r *PostgresProviderRepo) Create(ctx context.Context, provider *model.OAuthProvider) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO oauth_providers (provider_id, provider_name, created_at)
		 VALUES ($1, $2, $3)`,
		provider.ID, provider.Name, provider.CreatedAt,
	)
	return database.Classify("create provider", err)
}

// compile-time interface check
var _ ProviderRepository = (*PostgresProviderRepo)(nil)
