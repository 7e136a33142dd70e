package rainfall

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"lluvias.csv", FormatDelimited, false},
		{"LLUVIAS.TXT", FormatDelimited, false},
		{"registro.xlsx", FormatXLSX, false},
		{"viejo.xls", FormatXLS, false},
		{"datos.json", "", true},
		{"sin_extension", "", true},
	}
	for _, tt := range tests {
		got, err := DetectFormat(tt.name)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedFormat, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestReadRows_CSVWithHeader(t *testing.T) {
	data := []byte("\xEF\xBB\xBFfecha,cantidad\n25/12/2024,12.5\n\n2024-12-26,3\n")

	rows, err := ReadRows(FormatDelimited, data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "25/12/2024", rows[0]["fecha"])
	assert.Equal(t, "3", rows[1]["cantidad"])
}

func TestReadRows_SemicolonDelimiter(t *testing.T) {
	data := []byte("Fecha;MM\n01/03/2024;4,5\n02/03/2024;0\n")

	rows, err := ReadRows(FormatDelimited, data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	entry, ok := Normalize(rows[0])
	require.True(t, ok)
	assert.Equal(t, 4.5, entry.Amount)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), entry.Date)
}

func TestReadRows_ShortRecordsFillEmpty(t *testing.T) {
	rows, err := ReadRows(FormatDelimited, []byte("fecha,mm,nota\n2024-01-01\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0]["mm"])
	_, ok := Normalize(rows[0])
	assert.False(t, ok)
}

func TestReadRows_XLSXKeepsSerialDatesNumeric(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "Fecha"))
	require.NoError(t, f.SetCellValue(sheet, "B1", "mm"))
	require.NoError(t, f.SetCellValue(sheet, "A2", 45292))
	require.NoError(t, f.SetCellValue(sheet, "B2", 12.5))
	require.NoError(t, f.SetCellValue(sheet, "A3", "25/12/2024"))
	require.NoError(t, f.SetCellValue(sheet, "B3", "3"))
	require.NoError(t, f.SetCellValue(sheet, "A4", "sin fecha"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rows, err := ReadRows(FormatXLSX, buf.Bytes())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 45292.0, rows[0]["Fecha"])
	assert.Equal(t, 12.5, rows[0]["mm"])
	assert.Equal(t, "25/12/2024", rows[1]["Fecha"])

	first, ok := Normalize(rows[0])
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), first.Date)

	second, ok := Normalize(rows[1])
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 12, 25, 12, 0, 0, 0, time.UTC), second.Date)

	_, ok = Normalize(rows[2])
	assert.False(t, ok)
}

func TestReadRows_XLSXCorrupt(t *testing.T) {
	_, err := ReadRows(FormatXLSX, []byte("not a zip"))
	assert.Error(t, err)
}

func TestReadRows_XLSFirstSheet(t *testing.T) {
	// testdata/lluvias.xls: シート「Lluvias」に Fecha/mm の見出しと3行
	// (シリアル値45292と12.5、文字列の25/12/2024と3、日付のない行)
	data, err := os.ReadFile(filepath.Join("testdata", "lluvias.xls"))
	require.NoError(t, err)

	format, err := DetectFormat("lluvias.xls")
	require.NoError(t, err)

	rows, err := ReadRows(format, data)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 45292.0, rows[0]["Fecha"])
	assert.Equal(t, 12.5, rows[0]["mm"])
	assert.Equal(t, "25/12/2024", rows[1]["Fecha"])
	assert.Equal(t, 3.0, rows[1]["mm"])

	first, ok := Normalize(rows[0])
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, 12.5, first.Amount)

	second, ok := Normalize(rows[1])
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 12, 25, 12, 0, 0, 0, time.UTC), second.Date)

	_, ok = Normalize(rows[2])
	assert.False(t, ok)
}

func TestReadRows_XLSCorrupt(t *testing.T) {
	for _, data := range [][]byte{
		{0xD0, 0xCF, 0x11, 0xE0},
		[]byte("fecha,mm\n2024-01-01,3\n"),
	} {
		_, err := ReadRows(FormatXLS, data)
		assert.Error(t, err)
	}
}

func TestReadRows_TabDelimiter(t *testing.T) {
	data := []byte("fecha\tcantidad\tnota\n25/12/2024\t12.5\t\n26/12/2024\t\tsin dato\n")

	rows, err := ReadRows(FormatDelimited, data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "25/12/2024", rows[0]["fecha"])
	assert.Equal(t, "12.5", rows[0]["cantidad"])
	assert.Equal(t, "", rows[1]["cantidad"])
	assert.Equal(t, "sin dato", rows[1]["nota"])

	entry, ok := Normalize(rows[0])
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 12, 25, 12, 0, 0, 0, time.UTC), entry.Date)
	_, ok = Normalize(rows[1])
	assert.False(t, ok)
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		header string
		want   rune
	}{
		{"fecha,mm", ','},
		{"fecha;mm;nota", ';'},
		{"fecha\tmm", '\t'},
		{"fecha|mm|nota", '|'},
		{"fecha", ','},
		{"fecha;mm,nota", ','},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectDelimiter([]byte(tt.header+"\n1,2;3\t4|5\n")), tt.header)
	}
}
