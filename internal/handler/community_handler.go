package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/silverlens/internal/geo"
	"github.com/hitoshi/silverlens/internal/model"
)

// GeoQuerier は地図範囲による施設検索のインターフェース。geo.Serviceが実装する。
type GeoQuerier interface {
	QueryBounds(ctx context.Context, q geo.BoundsQuery) ([]model.Community, error)
}

// CommunityCounter はスナップショットに含まれる施設数を返すインターフェース。
// snapshot.Readerが実装する。
type CommunityCounter interface {
	Count() (int, error)
}

// CommunityHandler は施設データ関連のHTTPハンドラー。
type CommunityHandler struct {
	geo     GeoQuerier
	counter CommunityCounter
}

// NewCommunityHandler はCommunityHandlerを生成する。
func NewCommunityHandler(geo GeoQuerier, counter CommunityCounter) *CommunityHandler {
	return &CommunityHandler{geo: geo, counter: counter}
}

type totalCommunitiesResponse struct {
	TotalCommunities int `json:"totalCommunities"`
}

// GetCommunities は地図の表示範囲内の施設一覧を返す。
// GET /internal/get-communities?neLat=&neLng=&swLat=&swLng=&zoom=&state=
func (h *CommunityHandler) GetCommunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	communities, err := h.geo.QueryBounds(r.Context(), geo.BoundsQuery{
		NELat: q.Get("neLat"),
		NELng: q.Get("neLng"),
		SWLat: q.Get("swLat"),
		SWLng: q.Get("swLng"),
		Zoom:  q.Get("zoom"),
		State: q.Get("state"),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if communities == nil {
		communities = []model.Community{}
	}
	writeJSON(w, http.StatusOK, communities)
}

// GetTotalCommunities はスナップショットの施設総数を返す。
// GET /internal/get-total-communities
func (h *CommunityHandler) GetTotalCommunities(w http.ResponseWriter, r *http.Request) {
	n, err := h.counter.Count()
	if err != nil {
		slog.Error("failed to read communities snapshot", slog.String("error", err.Error()))
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totalCommunitiesResponse{TotalCommunities: n})
}
