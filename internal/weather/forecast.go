package weather

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	// sampleStep は3時間刻みの予報から1日1件を取り出す間隔。
	sampleStep = 8
	// maxDays は返す予報日数の上限。
	maxDays = 5
	// summarySize は降水見込みの上位件数。
	summarySize = 3
)

// Current は現在の天気を表す。
type Current struct {
	City        string    `json:"city"`
	Time        time.Time `json:"time"`
	Temp        float64   `json:"temp"`
	FeelsLike   float64   `json:"feels_like"`
	TempMin     float64   `json:"temp_min"`
	TempMax     float64   `json:"temp_max"`
	Humidity    int       `json:"humidity"`
	Pressure    int       `json:"pressure"`
	WindSpeed   float64   `json:"wind_speed"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
}

// ForecastEntry は予報の1エントリを表す。Popは降水確率（0〜1）。
type ForecastEntry struct {
	Time        time.Time `json:"time"`
	Temp        float64   `json:"temp"`
	TempMin     float64   `json:"temp_min"`
	TempMax     float64   `json:"temp_max"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	Pop         float64   `json:"pop"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
}

// DayChance は1日分の降水確率を表す。Chanceはパーセント。
type DayChance struct {
	Date        time.Time `json:"date"`
	Label       string    `json:"label"`
	Chance      int       `json:"chance"`
	Description string    `json:"description"`
}

// RainProjection は予報から算出した降水見込みを表す。
type RainProjection struct {
	HasRain       bool        `json:"has_rain"`
	TopDay        *DayChance  `json:"top_day,omitempty"`
	AverageChance int         `json:"average_chance"`
	Summary       []DayChance `json:"summary"`
}

// Forecast は日別の予報と降水見込みを表す。
type Forecast struct {
	City       string          `json:"city"`
	Days       []ForecastEntry `json:"days"`
	Projection RainProjection  `json:"projection"`
	RainAlert  bool            `json:"rain_alert"`
}

// Downsample は3時間刻みの予報から8件おきに取り出し、最大5件を返す。
func Downsample(entries []ForecastEntry) []ForecastEntry {
	days := make([]ForecastEntry, 0, maxDays)
	for i := 0; i < len(entries) && len(days) < maxDays; i += sampleStep {
		days = append(days, entries[i])
	}
	return days
}

// Project は日別予報から降水見込みを算出する。
// 降水確率が0より大きい日のみを対象とし、最も確率の高い日、平均確率、上位3日を返す。
func Project(days []ForecastEntry, loc *time.Location) RainProjection {
	if loc == nil {
		loc = time.UTC
	}

	type rainyDay struct {
		chance DayChance
		pop    float64
	}
	var rainy []rainyDay
	var sum float64
	top := -1
	for _, d := range days {
		if d.Pop <= 0 {
			continue
		}
		rainy = append(rainy, rainyDay{
			chance: DayChance{
				Date:        d.Time,
				Label:       SpanishDayLabel(d.Time.In(loc)),
				Chance:      percent(d.Pop),
				Description: d.Description,
			},
			pop: d.Pop,
		})
		sum += d.Pop
		if top < 0 || d.Pop > rainy[top].pop {
			top = len(rainy) - 1
		}
	}

	if len(rainy) == 0 {
		return RainProjection{HasRain: false, Summary: []DayChance{}}
	}
	topDay := rainy[top].chance

	sorted := make([]rainyDay, len(rainy))
	copy(sorted, rainy)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].pop > sorted[j].pop
	})
	if len(sorted) > summarySize {
		sorted = sorted[:summarySize]
	}
	summary := make([]DayChance, len(sorted))
	for i, r := range sorted {
		summary[i] = r.chance
	}

	return RainProjection{
		HasRain:       true,
		TopDay:        &topDay,
		AverageChance: percent(sum / float64(len(rainy))),
		Summary:       summary,
	}
}

// RainAlert は降水確率が30%を超える日があるかを返す。
func RainAlert(days []ForecastEntry) bool {
	for _, d := range days {
		if d.Pop > 0.3 {
			return true
		}
	}
	return false
}

func percent(p float64) int {
	return int(math.Round(p * 100))
}

var (
	spanishWeekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	spanishMonths   = [...]string{"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sept", "oct", "nov", "dic"}
)

// SpanishDayLabel は "martes, 4 de jun" 形式の日付ラベルを返す。
func SpanishDayLabel(t time.Time) string {
	return fmt.Sprintf("%s, %d de %s", spanishWeekdays[t.Weekday()], t.Day(), spanishMonths[t.Month()-1])
}
