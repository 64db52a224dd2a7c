package model

// Community は地図上に表示する施設（コミュニティ）を表す。
type Community struct {
	ID            int64    `json:"id"`
	FacilityName  string   `json:"facilityName"`
	StreetAddress string   `json:"streetAddress"`
	City          string   `json:"city"`
	State         string   `json:"state"`
	PostalCode    string   `json:"postalCode"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	CareTypes     string   `json:"careTypes"`
}

// Bounds は地図ビューポートの矩形範囲を表す。
// 緯度・経度ともに両端を含む。
type Bounds struct {
	NELat float64
	NELng float64
	SWLat float64
	SWLng float64
}

// Contains は指定座標が矩形範囲内（境界を含む）にあるかどうかを返す。
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.SWLat && lat <= b.NELat && lng >= b.SWLng && lng <= b.NELng
}
