package loader

import (
	"errors"
	"strconv"
	"strings"

	"github.com/fleetlens/backend/internal/table"
)

var ErrNoHeader = errors.New("source has no header row")

// missingMarkers are cell contents read as null, matching common spreadsheet
// and CSV export conventions.
var missingMarkers = map[string]struct{}{
	"":       {},
	"NA":     {},
	"N/A":    {},
	"n/a":    {},
	"NaN":    {},
	"nan":    {},
	"NULL":   {},
	"null":   {},
	"#N/A":   {},
	"<NA>":   {},
	"None":   {},
	"#NULL!": {},
}

// fromRecords builds a raw table from a header row and data records. Short
// records are padded with nulls, cells past the header are dropped and
// entirely blank records are skipped. Each column is typed Numeric when all of
// its non-null cells parse as numbers, Text when none do and Mixed otherwise.
func fromRecords(header []string, records [][]string) (*table.Table, error) {
	if len(header) == 0 {
		return nil, ErrNoHeader
	}
	names := normalizeHeaders(header)

	kept := make([][]string, 0, len(records))
	for _, rec := range records {
		if !blankRecord(rec) {
			kept = append(kept, rec)
		}
	}

	columns := make([]*table.Column, len(names))
	for c, name := range names {
		cells := make([]string, len(kept))
		for r, rec := range kept {
			if c < len(rec) {
				cells[r] = rec[c]
			}
		}
		columns[c] = inferColumn(name, cells)
	}

	return table.New(columns...)
}

func blankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func inferColumn(name string, cells []string) *table.Column {
	values := make([]table.Value, len(cells))
	numbers, texts := 0, 0

	for i, cell := range cells {
		if _, missing := missingMarkers[cell]; missing {
			continue
		}
		if f, ok := parseNumber(cell); ok {
			values[i] = table.Number(f)
			numbers++
			continue
		}
		values[i] = table.Text(cell)
		texts++
	}

	colType := table.TypeText
	switch {
	case numbers > 0 && texts == 0:
		colType = table.TypeNumeric
	case numbers > 0 && texts > 0:
		colType = table.TypeMixed
	}

	return &table.Column{Name: name, Type: colType, Values: values}
}

func parseNumber(cell string) (float64, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
