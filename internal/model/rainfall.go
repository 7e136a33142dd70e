package model

import "time"

// RainfallSource は降水記録の由来を表す。
type RainfallSource string

const (
	RainfallSourceManual RainfallSource = "manual"
	RainfallSourceFile   RainfallSource = "archivo"
)

// Rainfall は降水記録を表す。
// Dateはタイムゾーン境界のずれを避けるため常にUTC正午に固定する。
type Rainfall struct {
	ID        string         `json:"id"`
	FarmID    string         `json:"farm_id"`
	Date      time.Time      `json:"date"`
	Amount    float64        `json:"amount"` // ミリメートル、0以上
	Source    RainfallSource `json:"source"`
	CreatedBy string         `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
}

// MonthlyRainfall は月別の降水量合計を表す。
type MonthlyRainfall struct {
	Month int     `json:"month"`
	Total float64 `json:"total"`
}
