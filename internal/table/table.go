package table

import (
	"errors"
	"fmt"
)

// ColumnType is the semantic type of a whole column.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeNumeric ColumnType = "numeric"
	TypeDate    ColumnType = "date"
	TypeMixed   ColumnType = "mixed"
)

// Textual reports whether the column holds strings that may need inference.
func (c ColumnType) Textual() bool {
	return c == TypeText || c == TypeMixed
}

var ErrColumnNotFound = errors.New("column not found")

type Column struct {
	Name   string
	Type   ColumnType
	Values []Value
}

// Table is an ordered set of equally long, uniquely named columns. Tables are
// treated as immutable once built; operations return new tables.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

func New(columns ...*Column) (*Table, error) {
	t := &Table{
		columns: columns,
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		if _, dup := t.index[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", col.Name)
		}
		if i == 0 {
			t.rows = len(col.Values)
		} else if len(col.Values) != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name, len(col.Values), t.rows)
		}
		t.index[col.Name] = i
	}
	return t, nil
}

// MustNew is New for literals in tests and fixtures.
func MustNew(columns ...*Column) *Table {
	t, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) NumRows() int { return t.rows }
func (t *Table) NumColumns() int { return len(t.columns) }
func (t *Table) Columns() []*Column { return t.columns }

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return t.columns[i], nil
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// TextColumn builds a Text column from strings; empty strings become nulls.
func TextColumn(name string, values ...string) *Column {
	col := &Column{Name: name, Type: TypeText, Values: make([]Value, len(values))}
	for i, s := range values {
		if s != "" {
			col.Values[i] = Text(s)
		}
	}
	return col
}

func NumberColumn(name string, values ...float64) *Column {
	col := &Column{Name: name, Type: TypeNumeric, Values: make([]Value, len(values))}
	for i, f := range values {
		col.Values[i] = Number(f)
	}
	return col
}
