package rainfall

import (
	"math"
	"time"

	"github.com/hitoshi/nimbo/internal/model"
)

// MonthSummary は1か月分の降水の集計値を表す。
type MonthSummary struct {
	Year    int     `json:"year"`
	Month   int     `json:"month"`
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
	Max     float64 `json:"max"`
	Days    int     `json:"days"`
}

// YearChart は年間の月別合計と、記録のある月の平均を表す。
type YearChart struct {
	Year    int                     `json:"year"`
	Months  []model.MonthlyRainfall `json:"months"`
	Average float64                 `json:"average"`
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// Summarize は指定年月に該当する記録から月次集計を計算する。
// Daysは該当する記録数。値は小数第1位に丸める。
func Summarize(records []*model.Rainfall, year int, month time.Month) MonthSummary {
	s := MonthSummary{Year: year, Month: int(month)}
	var total, peak float64
	for _, r := range records {
		d := r.Date.UTC()
		if d.Year() != year || d.Month() != month {
			continue
		}
		total += r.Amount
		if s.Days == 0 || r.Amount > peak {
			peak = r.Amount
		}
		s.Days++
	}
	if s.Days > 0 {
		s.Total = round1(total)
		s.Average = round1(total / float64(s.Days))
		s.Max = round1(peak)
	}
	return s
}

// BuildYearChart は月別合計を丸め、記録のある月の平均を計算する。
func BuildYearChart(year int, totals []model.MonthlyRainfall) YearChart {
	chart := YearChart{Year: year, Months: make([]model.MonthlyRainfall, 0, len(totals))}
	var sum float64
	for _, m := range totals {
		sum += m.Total
		chart.Months = append(chart.Months, model.MonthlyRainfall{Month: m.Month, Total: round1(m.Total)})
	}
	if len(totals) > 0 {
		chart.Average = round1(sum / float64(len(totals)))
	}
	return chart
}
