package rainfall

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Format は取り込みファイルの形式を表す。
type Format string

const (
	FormatDelimited Format = "delimited"
	FormatXLSX      Format = "xlsx"
	FormatXLS       Format = "xls"
)

// ErrUnsupportedFormat は対応していない拡張子を示す。
var ErrUnsupportedFormat = errors.New("unsupported file format")

// DetectFormat はファイル名の拡張子から形式を判定する。
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatDelimited, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	}
	return "", ErrUnsupportedFormat
}

// ReadRows はファイル内容をヘッダー付きの行に変換する。
func ReadRows(format Format, data []byte) ([]Row, error) {
	switch format {
	case FormatDelimited:
		return readDelimited(data)
	case FormatXLSX:
		return readXLSX(data)
	case FormatXLS:
		return readXLS(data)
	}
	return nil, ErrUnsupportedFormat
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// delimiters は区切り文字の候補。同数の場合は先頭に近いものを選ぶ。
var delimiters = []rune{',', ';', '\t', '|'}

// detectDelimiter はヘッダー行に最も多く含まれる候補を区切り文字とする。
func detectDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}
	best, bestCount := delimiters[0], 0
	for _, d := range delimiters {
		if n := bytes.Count(header, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func readDelimited(data []byte) ([]Row, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = detectDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	// タブ区切りで空白を読み飛ばすと空セルが詰まってしまう
	r.TrimLeadingSpace = r.Comma != '\t'

	var header []string
	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse delimited file: %w", err)
		}
		if blank(record) {
			continue
		}
		if header == nil {
			header = trimAll(record)
			continue
		}
		rows = append(rows, zipRow(header, record, nil))
	}
	return rows, nil
}

func readXLSX(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("no worksheet found")
	}

	// 日付セルは表示書式ではなくシリアル値で受け取る
	records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet: %w", err)
	}

	var header []string
	var rows []Row
	for i, record := range records {
		if blank(record) {
			continue
		}
		if header == nil {
			header = trimAll(record)
			continue
		}
		rowNum := i + 1
		rows = append(rows, zipRow(header, record, func(col int, value string) any {
			return typedCell(f, sheet, col, rowNum, value)
		}))
	}
	return rows, nil
}

// maxXLSColumns はBIFF8ワークシートの最大列数。
const maxXLSColumns = 256

func readXLS(data []byte) (rows []Row, err error) {
	// 壊れたBIFFデータに対してパーサーがpanicすることがある
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("failed to read workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, errors.New("no worksheet found")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("no worksheet found")
	}

	var header []string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		record := xlsRecord(row)
		if blank(record) {
			continue
		}
		if header == nil {
			header = trimAll(record)
			continue
		}
		rows = append(rows, zipRow(header, record, numericCell))
	}
	return rows, nil
}

// xlsRecord は行のセルを左から読み、末尾の空セルを除いて返す。
func xlsRecord(row *xls.Row) []string {
	record := make([]string, maxXLSColumns)
	for c := range record {
		record[c] = row.Col(c)
	}
	for len(record) > 0 && strings.TrimSpace(record[len(record)-1]) == "" {
		record = record[:len(record)-1]
	}
	return record
}

// numericCell は数値として読める値をfloat64に変換する。
// BIFFの標準書式セルは文字列化された数値で返るため、シリアル日付もここで数値に戻る。
func numericCell(_ int, value string) any {
	if n, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return n
	}
	return value
}

// typedCell は数値セルをfloat64に、それ以外を文字列のまま返す。
func typedCell(f *excelize.File, sheet string, col, row int, value string) any {
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return value
	}
	typ, err := f.GetCellType(sheet, cell)
	if err != nil {
		return value
	}
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeBool, excelize.CellTypeError:
		return value
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return n
	}
	return value
}

// zipRow はヘッダーと値を対応付ける。足りないセルは空文字列、重複したヘッダーは先勝ち。
func zipRow(header, record []string, convert func(col int, value string) any) Row {
	row := make(Row, len(header))
	for i, key := range header {
		if key == "" {
			continue
		}
		if _, dup := row[key]; dup {
			continue
		}
		value := ""
		if i < len(record) {
			value = record[i]
		}
		if convert != nil && value != "" {
			row[key] = convert(i, value)
		} else {
			row[key] = value
		}
	}
	return row
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimAll(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
