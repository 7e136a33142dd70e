// Package location はユーザーの位置情報設定と、地図URLからの座標抽出を提供する。
package location

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Coordinates は緯度・経度を表す。
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Default は位置情報が未設定の場合に使う座標（ブエノスアイレス）。
var Default = Coordinates{Lat: -34.6037, Lon: -58.3816}

// DefaultCity はDefaultの表示名。
const DefaultCity = "Buenos Aires"

// Valid は緯度・経度が有効範囲内の有限値かを返す。
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Encode は保存用のJSON {lat, lon} を返す。
func (c Coordinates) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// Decode は保存済みJSONを座標に変換する。
// 空、不正なJSON、数値でないlat/lon、範囲外の値は未設定として扱いfalseを返す。
func Decode(raw []byte) (Coordinates, bool) {
	if len(raw) == 0 {
		return Coordinates{}, false
	}
	var stored struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Coordinates{}, false
	}
	if stored.Lat == nil || stored.Lon == nil {
		return Coordinates{}, false
	}
	c := Coordinates{Lat: *stored.Lat, Lon: *stored.Lon}
	if !c.Valid() {
		return Coordinates{}, false
	}
	return c, true
}

var (
	atPattern    = regexp.MustCompile(`@(-?\d+\.?\d*),(-?\d+\.?\d*)`)
	dataPattern  = regexp.MustCompile(`!3d(-?\d+\.?\d*)!4d(-?\d+\.?\d*)`)
	queryPattern = regexp.MustCompile(`(?:[?&](?:q|query|ll|destination)=)(-?\d+\.?\d*)(?:,|%2C)\s*(-?\d+\.?\d*)`)
	barePattern  = regexp.MustCompile(`(-?\d+\.?\d*),\s*(-?\d+\.?\d*)`)
)

// ParseMapsURL は地図の共有URLまたは "lat, lon" 形式の文字列から座標を抽出する。
// 試行順序: "@lat,lon" → "!3dlat!4dlon" → "q=lat,lon" → 任意の位置の "lat, lon"。
func ParseMapsURL(raw string) (Coordinates, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Coordinates{}, false
	}
	for _, p := range []*regexp.Regexp{atPattern, dataPattern, queryPattern, barePattern} {
		m := p.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lon, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		c := Coordinates{Lat: lat, Lon: lon}
		if c.Valid() {
			return c, true
		}
	}
	return Coordinates{}, false
}
