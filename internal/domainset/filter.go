package domainset

import (
	"github.com/fleetlens/backend/internal/table"
)

// Filter restricts the rows a domain is collected from. A nil Filter keeps
// every row. Values are matched on their canonical string form.
type Filter interface {
	compile(t *table.Table) (func(row int) bool, error)
}

type equals struct {
	column string
	value  string
}

// Equals keeps rows whose column value is value.
func Equals(column, value string) Filter {
	return equals{column: column, value: value}
}

func (f equals) compile(t *table.Table) (func(int) bool, error) {
	col, err := t.Column(f.column)
	if err != nil {
		return nil, err
	}
	return func(row int) bool {
		v := col.Values[row]
		return !v.IsNull() && v.String() == f.value
	}, nil
}

type anyIn struct {
	columns []string
	values  map[string]struct{}
}

// AnyIn keeps rows where at least one of columns holds one of values.
// Columns missing from the table are ignored.
func AnyIn(columns []string, values ...string) Filter {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return anyIn{columns: columns, values: set}
}

func (f anyIn) compile(t *table.Table) (func(int) bool, error) {
	var cols []*table.Column
	for _, name := range f.columns {
		if col, err := t.Column(name); err == nil {
			cols = append(cols, col)
		}
	}
	return func(row int) bool {
		for _, col := range cols {
			v := col.Values[row]
			if v.IsNull() {
				continue
			}
			if _, ok := f.values[v.String()]; ok {
				return true
			}
		}
		return false
	}, nil
}

type all []Filter

// All keeps rows matching every filter.
func All(filters ...Filter) Filter {
	return all(filters)
}

func (f all) compile(t *table.Table) (func(int) bool, error) {
	preds := make([]func(int) bool, 0, len(f))
	for _, sub := range f {
		if sub == nil {
			continue
		}
		p, err := sub.compile(t)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return func(row int) bool {
		for _, p := range preds {
			if !p(row) {
				return false
			}
		}
		return true
	}, nil
}

func compile(t *table.Table, f Filter) (func(int) bool, error) {
	if f == nil {
		return func(int) bool { return true }, nil
	}
	return f.compile(t)
}
