package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/fleetlens/backend/internal/table"
)

// LoadFile reads the first sheet (or the whole CSV) at path into a raw table.
func LoadFile(path string) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return LoadBytes(filepath.Base(path), data)
}

// LoadBytes parses in-memory content. name is only used for format detection.
func LoadBytes(name string, data []byte) (*table.Table, error) {
	var (
		header  []string
		records [][]string
		err     error
	)

	switch DetectFileType(name) {
	case FileTypeCSV:
		header, records, err = readCSV(bytes.NewReader(data))
	case FileTypeXLSX:
		header, records, err = readXLSX(bytes.NewReader(data))
	case FileTypeXLS:
		header, records, err = readXLS(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported file type: %q", filepath.Ext(name))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	return fromRecords(header, records)
}

func readCSV(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return splitHeader(rows)
}

func readXLSX(r io.Reader) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("no sheets found in workbook")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, err
	}
	return splitHeader(rows)
}

func readXLS(r io.ReadSeeker) ([]string, [][]string, error) {
	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, nil, err
	}
	if wb.NumSheets() == 0 {
		return nil, nil, fmt.Errorf("no sheets found in workbook")
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, nil, fmt.Errorf("first sheet is unreadable")
	}

	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := range cells {
			cells[c] = row.Col(c)
		}
		rows = append(rows, cells)
	}
	return splitHeader(rows)
}

// splitHeader returns the first non-blank row as the header and the rest as data.
func splitHeader(rows [][]string) ([]string, [][]string, error) {
	for i, row := range rows {
		if !blankRecord(row) {
			return row, rows[i+1:], nil
		}
	}
	return nil, nil, ErrNoHeader
}
