package disk

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/fleetlens/backend/internal/table"
)

const magic = "FLTB1\n"

var ErrBadMagic = errors.New("not a cached table file")

// document is the on-disk columnar layout. Each column stores the kind of
// every row plus dense arrays holding only the values of that kind, in row order.
type document struct {
	Rows    int
	Columns []encodedColumn
}

type encodedColumn struct {
	Name    string
	Type    table.ColumnType
	Kinds   []table.Kind
	Strings []string
	Numbers []float64
	Seconds []int64
	Nanos   []int32
}

func encodeTable(w io.Writer, t *table.Table, compress bool) error {
	doc := document{Rows: t.NumRows(), Columns: make([]encodedColumn, 0, t.NumColumns())}
	for _, col := range t.Columns() {
		enc := encodedColumn{Name: col.Name, Type: col.Type, Kinds: make([]table.Kind, len(col.Values))}
		for i, v := range col.Values {
			enc.Kinds[i] = v.Kind()
			switch v.Kind() {
			case table.KindText:
				enc.Strings = append(enc.Strings, v.Str())
			case table.KindNumber:
				enc.Numbers = append(enc.Numbers, v.Num())
			case table.KindDate:
				ts := v.Time()
				enc.Seconds = append(enc.Seconds, ts.Unix())
				enc.Nanos = append(enc.Nanos, int32(ts.Nanosecond()))
			}
		}
		doc.Columns = append(doc.Columns, enc)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return err
	}

	var payload io.Writer = bw
	var xzw *xz.Writer
	if compress {
		var err error
		xzw, err = xz.NewWriter(bw)
		if err != nil {
			return fmt.Errorf("failed to create xz writer: %w", err)
		}
		payload = xzw
	}

	if err := gob.NewEncoder(payload).Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode table: %w", err)
	}
	if xzw != nil {
		if err := xzw.Close(); err != nil {
			return fmt.Errorf("failed to finish xz stream: %w", err)
		}
	}
	return bw.Flush()
}

func decodeTable(r io.Reader, compressed bool) (*table.Table, error) {
	br := bufio.NewReader(r)
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(br, head); err != nil || string(head) != magic {
		return nil, ErrBadMagic
	}

	var payload io.Reader = br
	if compressed {
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open xz stream: %w", err)
		}
		payload = xzr
	}

	var doc document
	if err := gob.NewDecoder(payload).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode table: %w", err)
	}

	columns := make([]*table.Column, 0, len(doc.Columns))
	for _, enc := range doc.Columns {
		col, err := enc.decode(doc.Rows)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return table.New(columns...)
}

func (enc encodedColumn) decode(rows int) (*table.Column, error) {
	if len(enc.Kinds) != rows {
		return nil, fmt.Errorf("column %q: %d kinds for %d rows", enc.Name, len(enc.Kinds), rows)
	}
	values := make([]table.Value, rows)
	var si, ni, ti int
	for i, k := range enc.Kinds {
		switch k {
		case table.KindText:
			if si >= len(enc.Strings) {
				return nil, fmt.Errorf("column %q: truncated text values", enc.Name)
			}
			values[i] = table.Text(enc.Strings[si])
			si++
		case table.KindNumber:
			if ni >= len(enc.Numbers) {
				return nil, fmt.Errorf("column %q: truncated numeric values", enc.Name)
			}
			values[i] = table.Number(enc.Numbers[ni])
			ni++
		case table.KindDate:
			if ti >= len(enc.Seconds) || ti >= len(enc.Nanos) {
				return nil, fmt.Errorf("column %q: truncated date values", enc.Name)
			}
			values[i] = table.Date(time.Unix(enc.Seconds[ti], int64(enc.Nanos[ti])).UTC())
			ti++
		}
	}
	return &table.Column{Name: enc.Name, Type: enc.Type, Values: values}, nil
}
