// Package rainfall は降水記録の正規化・一括取り込み・集計を提供する。
package rainfall

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Field は取り込み行から解決する論理列を表す。
type Field int

const (
	FieldDate Field = iota
	FieldAmount
)

// aliasTable は論理列ごとの候補キーを優先順に並べたもの。
var aliasTable = map[Field][]string{
	FieldDate:   {"fecha", "Fecha", "FECHA", "date", "Date"},
	FieldAmount: {"cantidad", "Cantidad", "mm", "MM", "milimetros", "Milimetros", "valor"},
}

// Aliases は論理列の候補キー一覧を返す。
func Aliases(f Field) []string {
	return append([]string(nil), aliasTable[f]...)
}

// Row は取り込みファイルの1行を表す。値はstring、float64、time.Timeのいずれか。
type Row map[string]any

// Entry は正規化済みの降水データを表す。
type Entry struct {
	Date   time.Time
	Amount float64
}

// excelEpoch はスプレッドシートのシリアル日付の起点。
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// maxSerial は9999-12-31に相当するシリアル値。これを超える値は日付として扱わない。
const maxSerial = 2958465

// fallbackLayouts は区切り文字による解析に失敗した場合に試す日付書式。
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	time.RFC1123,
}

// NoonUTC は指定時刻の暦日をUTC正午に固定した時刻を返す。
func NoonUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
}

// Normalize は1行を日付と降水量の組に変換する。
// 日付・降水量のいずれかが解決できない行はfalseを返す。
func Normalize(row Row) (Entry, bool) {
	rawDate, ok := lookup(row, FieldDate)
	if !ok {
		return Entry{}, false
	}
	rawAmount, ok := lookup(row, FieldAmount)
	if !ok {
		return Entry{}, false
	}

	date, ok := NormalizeDate(rawDate)
	if !ok {
		return Entry{}, false
	}
	amount, ok := NormalizeAmount(rawAmount)
	if !ok {
		return Entry{}, false
	}
	return Entry{Date: date, Amount: amount}, true
}

// lookup は別名表に従って値を探す。
// 完全一致を優先し、見つからなければ前後空白を除いた大文字小文字を区別しない比較で探す。
func lookup(row Row, f Field) (any, bool) {
	aliases := aliasTable[f]
	for _, key := range aliases {
		if v, ok := row[key]; ok && present(v) {
			return v, true
		}
	}
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, alias := range aliases {
		for _, key := range keys {
			if v := row[key]; strings.EqualFold(strings.TrimSpace(key), alias) && present(v) {
				return v, true
			}
		}
	}
	return nil, false
}

func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	}
	return true
}

// NormalizeDate は日付値をUTC正午の時刻に変換する。
// time.Time、スプレッドシートのシリアル値、文字列の順に解釈する。
func NormalizeDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return NoonUTC(x), true
	case string:
		return parseDateString(x)
	}
	if n, ok := toFloat(v); ok {
		return fromSerial(n)
	}
	return time.Time{}, false
}

// fromSerial はシリアル値を1899-12-30起点の日数として解釈する。
func fromSerial(n float64) (time.Time, bool) {
	if n <= 0 || n >= maxSerial+1 || math.IsNaN(n) || math.IsInf(n, 0) {
		return time.Time{}, false
	}
	whole := math.Floor(n)
	t := excelEpoch.AddDate(0, 0, int(whole))
	return NoonUTC(t), true
}

// parseDateString は区切り文字を正規化した3要素の日付を解釈する。
// 最後の要素が4桁ならDD-MM-YYYY、それ以外はYYYY-MM-DDとして扱う。
func parseDateString(s string) (time.Time, bool) {
	text := strings.TrimSpace(s)
	if text == "" {
		return time.Time{}, false
	}

	normalized := strings.NewReplacer(".", "-", "/", "-").Replace(text)
	parts := strings.Split(normalized, "-")
	if len(parts) == 3 {
		if t, ok := fromParts(parts); ok {
			return t, true
		}
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return NoonUTC(t), true
		}
	}
	return time.Time{}, false
}

func fromParts(parts []string) (time.Time, bool) {
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
		if len(parts[i]) == 1 {
			parts[i] = "0" + parts[i]
		}
	}

	var ys, ms, ds string
	if len(parts[2]) == 4 {
		ds, ms, ys = parts[0], parts[1], parts[2]
	} else {
		ys, ms, ds = parts[0], parts[1], parts[2]
	}

	year, err := strconv.Atoi(ys)
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(ms)
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(ds)
	if err != nil {
		return time.Time{}, false
	}
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}

	if year < 1000 || year > 9999 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC)
	if t.Day() != day {
		// 2月30日のような存在しない日付
		return time.Time{}, false
	}
	return t, true
}

// NormalizeAmount は降水量を数値に変換する。
// 非有限値と負の値は拒否する。
func NormalizeAmount(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case string:
		text := strings.TrimSpace(x)
		if strings.Count(text, ",") == 1 && !strings.Contains(text, ".") {
			text = strings.Replace(text, ",", ".", 1)
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		f, ok := toFloat(v)
		if !ok {
			return 0, false
		}
		n = f
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0, false
	}
	if n == 0 {
		// -0を0にそろえる
		n = 0
	}
	return n, true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}
