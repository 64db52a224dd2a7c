// Package geo は地図ビューポートに対する施設の範囲検索を提供する。
package geo

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/silverlens/internal/metrics"
	"github.com/hitoshi/silverlens/internal/model"
	"github.com/hitoshi/silverlens/internal/repository"
)

// 返却件数の上限。ズームイン時は表示範囲が狭いため多めに返す。
const (
	DetailLimit   = 2000
	OverviewLimit = 1000
	// DetailZoomThreshold を超えるズームレベルでDetailLimitを適用する。
	DetailZoomThreshold = 10
)

// BoundsQuery はクエリパラメータをそのまま保持する検索条件。
type BoundsQuery struct {
	NELat string
	NELng string
	SWLat string
	SWLng string
	Zoom  string
	State string
}

// Request は検証済みの検索条件。
type Request struct {
	Bounds model.Bounds
	Zoom   float64
	State  string
}

// Limit はズームレベルに応じた返却件数の上限を返す。
func (r Request) Limit() int {
	return LimitForZoom(r.Zoom)
}

// LimitForZoom はズームレベルから返却件数の上限を決定する。
func LimitForZoom(zoom float64) int {
	if zoom > DetailZoomThreshold {
		return DetailLimit
	}
	return OverviewLimit
}

// ParseBounds はクエリパラメータを検証してRequestに変換する。
// 4つの座標のいずれかが有限の数値でない場合はmodel.ErrInvalidBoundsを返す。
// zoomは欠落または不正な場合に0として扱う。
func ParseBounds(q BoundsQuery) (Request, error) {
	var req Request

	coords := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"neLat", q.NELat, &req.Bounds.NELat},
		{"neLng", q.NELng, &req.Bounds.NELng},
		{"swLat", q.SWLat, &req.Bounds.SWLat},
		{"swLng", q.SWLng, &req.Bounds.SWLng},
	}
	for _, c := range coords {
		v, ok := parseFinite(c.raw)
		if !ok {
			return Request{}, fmt.Errorf("%s=%q: %w", c.name, c.raw, model.ErrInvalidBounds)
		}
		*c.dst = v
	}

	if z, ok := parseFinite(q.Zoom); ok {
		req.Zoom = z
	}
	req.State = strings.TrimSpace(q.State)

	return req, nil
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Service は施設の範囲検索を提供する。
type Service struct {
	communities repository.CommunityRepository
	metrics     metrics.MetricsCollector
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(communities repository.CommunityRepository, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{communities: communities, metrics: mc}
}

// QueryBounds はクエリパラメータを検証し、範囲内の施設を返す。
func (s *Service) QueryBounds(ctx context.Context, q BoundsQuery) ([]model.Community, error) {
	req, err := ParseBounds(q)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, req)
}

// Query は検証済みの条件で範囲内の施設をcommunity_id順に返す。
// 件数はズームレベルに応じた上限で切り詰める。
func (s *Service) Query(ctx context.Context, req Request) ([]model.Community, error) {
	start := time.Now()

	communities, err := s.communities.FindInBounds(ctx, req.Bounds, req.State, req.Limit())
	if err != nil {
		return nil, fmt.Errorf("failed to query communities: %w", err)
	}

	s.metrics.RecordGeoQuery(time.Since(start), len(communities))
	return communities, nil
}
