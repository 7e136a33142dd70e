package sheep

import (
	"math"
	"strings"
	"time"

	"github.com/hitoshi/nimbo/internal/model"
)

const dateLayout = "2006-01-02"

// Input は家畜記録の作成・更新リクエストを表す。日付はYYYY-MM-DD形式。
type Input struct {
	Tag               string   `json:"tag"`
	BirthDate         string   `json:"birth_date"`
	Sex               string   `json:"sex"`
	Breed             string   `json:"breed"`
	MotherTag         string   `json:"mother_tag"`
	FatherTag         string   `json:"father_tag"`
	Weight            *float64 `json:"weight"`
	MilkProduction    string   `json:"milk_production"`
	Diseases          string   `json:"diseases"`
	Pregnant          bool     `json:"pregnant"`
	LastBirth         string   `json:"last_birth"`
	LastInsemination  string   `json:"last_insemination"`
	ExpectedBirthDate string   `json:"expected_birth_date"`
}

// HistoryInput は履歴エントリの作成リクエストを表す。
type HistoryInput struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Date   string `json:"date"`
}

// WeightInput は体重記録の追加リクエストを表す。
type WeightInput struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// parseOptionalDate は空文字列をnilとして扱い、それ以外はYYYY-MM-DDとして解釈する。
func parseOptionalDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, model.NewInvalidSheepFieldError(field)
	}
	return &t, nil
}

// parseDateOr は空文字列の場合にfallbackの日付を返す。
func parseDateOr(field, raw string, fallback time.Time) (time.Time, error) {
	t, err := parseOptionalDate(field, raw)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		y, m, d := fallback.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return *t, nil
}

func validWeight(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func parseSex(raw string) (model.Sex, error) {
	switch model.Sex(strings.ToLower(strings.TrimSpace(raw))) {
	case "", model.SexFemale:
		return model.SexFemale, nil
	case model.SexMale:
		return model.SexMale, nil
	default:
		return "", model.NewInvalidSheepFieldError("sex")
	}
}
