package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/silverlens/internal/geo"
	"github.com/hitoshi/silverlens/internal/model"
)

// --- モック定義 ---

type mockGeoQuerier struct {
	queryBoundsFn func(ctx context.Context, q geo.BoundsQuery) ([]model.Community, error)
}

func (m *mockGeoQuerier) QueryBounds(ctx context.Context, q geo.BoundsQuery) ([]model.Community, error) {
	if m.queryBoundsFn != nil {
		return m.queryBoundsFn(ctx, q)
	}
	return nil, nil
}

type mockCounter struct {
	n   int
	err error
}

func (m *mockCounter) Count() (int, error) {
	return m.n, m.err
}

func floatPtr(f float64) *float64 { return &f }

// --- テスト ---

func TestCommunityHandler_GetCommunities_PassesQueryParams(t *testing.T) {
	var got geo.BoundsQuery
	h := NewCommunityHandler(&mockGeoQuerier{
		queryBoundsFn: func(_ context.Context, q geo.BoundsQuery) ([]model.Community, error) {
			got = q
			return []model.Community{{
				ID:           7,
				FacilityName: "Sunrise Villa",
				State:        "CA",
				Latitude:     floatPtr(34.05),
				Longitude:    floatPtr(-118.24),
			}}, nil
		},
	}, &mockCounter{})

	req := httptest.NewRequest(http.MethodGet,
		"/internal/get-communities?neLat=35&neLng=-117&swLat=33&swLng=-119&zoom=12&state=CA", nil)
	w := httptest.NewRecorder()
	h.GetCommunities(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	want := geo.BoundsQuery{NELat: "35", NELng: "-117", SWLat: "33", SWLng: "-119", Zoom: "12", State: "CA"}
	if got != want {
		t.Errorf("BoundsQuery = %+v, want %+v", got, want)
	}

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body) != 1 || body[0]["facilityName"] != "Sunrise Villa" {
		t.Errorf("body = %v", body)
	}
}

func TestCommunityHandler_GetCommunities_EmptyResultIsArray(t *testing.T) {
	h := NewCommunityHandler(&mockGeoQuerier{}, &mockCounter{})

	w := httptest.NewRecorder()
	h.GetCommunities(w, httptest.NewRequest(http.MethodGet, "/internal/get-communities", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestCommunityHandler_GetCommunities_InvalidBounds_Returns400(t *testing.T) {
	h := NewCommunityHandler(&mockGeoQuerier{
		queryBoundsFn: func(context.Context, geo.BoundsQuery) ([]model.Community, error) {
			return nil, fmt.Errorf("neLat=%q: %w", "abc", model.ErrInvalidBounds)
		},
	}, &mockCounter{})

	w := httptest.NewRecorder()
	h.GetCommunities(w, httptest.NewRequest(http.MethodGet, "/internal/get-communities?neLat=abc", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidBounds {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidBounds)
	}
}

func TestCommunityHandler_GetCommunities_StoreError_Returns500(t *testing.T) {
	h := NewCommunityHandler(&mockGeoQuerier{
		queryBoundsFn: func(context.Context, geo.BoundsQuery) ([]model.Community, error) {
			return nil, fmt.Errorf("communities.find_in_bounds: %w", model.ErrConnection)
		},
	}, &mockCounter{})

	w := httptest.NewRecorder()
	h.GetCommunities(w, httptest.NewRequest(http.MethodGet, "/internal/get-communities", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
}

func TestCommunityHandler_GetTotalCommunities(t *testing.T) {
	h := NewCommunityHandler(&mockGeoQuerier{}, &mockCounter{n: 1234})

	w := httptest.NewRecorder()
	h.GetTotalCommunities(w, httptest.NewRequest(http.MethodGet, "/internal/get-total-communities", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]int
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["totalCommunities"] != 1234 {
		t.Errorf("totalCommunities = %d, want 1234", body["totalCommunities"])
	}
}

func TestCommunityHandler_GetTotalCommunities_SnapshotUnreadable_Returns500(t *testing.T) {
	h := NewCommunityHandler(&mockGeoQuerier{}, &mockCounter{err: errors.New("open public/communitiesData.json: no such file")})

	w := httptest.NewRecorder()
	h.GetTotalCommunities(w, httptest.NewRequest(http.MethodGet, "/internal/get-total-communities", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
