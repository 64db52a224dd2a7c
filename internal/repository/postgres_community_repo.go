package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/silverlens/internal/database"
	"github.com/hitoshi/silverlens/internal/model"
)

var communityColumns = []string{
	"community_id", "facility_name", "street_address", "city", "state",
	"postal_code", "latitude", "longitude", "care_types",
}

// PostgresCommunityRepo はPostgreSQLを使用したコミュニティリポジトリ。
type PostgresCommunityRepo struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

// NewPostgresCommunityRepo はPostgresCommunityRepoを生成する。
func NewPostgresCommunityRepo(db *sql.DB) *PostgresCommunityRepo {
	return &PostgresCommunityRepo{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// FindInBounds は矩形範囲内の施設を返す。
// 座標と州はすべてプレースホルダでバインドする。limitはサーバー側の定数のみを受け付ける。
func (r *PostgresCommunityRepo) FindInBounds(ctx context.Context, b model.Bounds, state string, limit int) ([]model.Community, error) {
	q := r.psql.Select(communityColumns...).
		From("communities").
		Where(sq.Expr("latitude BETWEEN ? AND ?", b.SWLat, b.NELat)).
		Where(sq.Expr("longitude BETWEEN ? AND ?", b.SWLng, b.NELng))
	if state != "" {
		q = q.Where(sq.Eq{"state": state})
	}
	q = q.OrderBy("community_id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, database.Classify("build community query", err)
	}
	return r.query(ctx, "find communities in bounds", query, args...)
}

// ListAll は全施設をcommunity_id順に返す。
func (r *PostgresCommunityRepo) ListAll(ctx context.Context) ([]model.Community, error) {
	query, args, err := r.psql.Select(communityColumns...).
		From("communities").
		OrderBy("community_id").
		ToSql()
	if err != nil {
		return nil, database.Classify("build community query", err)
	}
	return r.query(ctx, "list communities", query, args...)
}

func (r *PostgresCommunityRepo) query(ctx context.Context, op, query string, args ...any) ([]model.Community, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.Classify(op, err)
	}
	defer rows.Close()

	communities := make([]model.Community, 0)
	for rows.Next() {
		var c model.Community
		var lat, lng sql.NullFloat64
		if err := rows.Scan(
			&c.ID, &c.FacilityName, &c.StreetAddress, &c.City, &c.State,
			&c.PostalCode, &lat, &lng, &c.CareTypes,
		); err != nil {
			return nil, database.Classify(op, err)
		}
		if lat.Valid {
			v := lat.Float64
			c.Latitude = &v
		}
		if lng.Valid {
			v := lng.Float64
			c.Longitude = &v
		}
		communities = append(communities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(op, err)
	}

	return communities, nil
}

// compile-time interface check
var _ CommunityRepository = (*PostgresCommunityRepo)(nil)
