package query

import (
	"context"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/domainset"
	"github.com/fleetlens/backend/internal/table"
)

// DomainRequest asks for the option list of Columns. Equals restricts rows to
// exact column values; AnyColumns with AnyValues keeps rows where any of those
// columns holds one of the values.
type DomainRequest struct {
	Columns    []string          `json:"columns"`
	Equals     map[string]string `json:"equals,omitempty"`
	AnyColumns []string          `json:"any_columns,omitempty"`
	AnyValues  []string          `json:"any_values,omitempty"`
}

type ColumnGroups struct {
	All     []string `json:"all"`
	Dates   []string `json:"dates"`
	Numeric []string `json:"numeric"`
}

func (r DomainRequest) filter() domainset.Filter {
	var filters []domainset.Filter
	for col, v := range r.Equals {
		filters = append(filters, domainset.Equals(col, v))
	}
	if len(r.AnyColumns) > 0 && len(r.AnyValues) > 0 {
		filters = append(filters, domainset.AnyIn(r.AnyColumns, r.AnyValues...))
	}
	if len(filters) == 0 {
		return nil
	}
	return domainset.All(filters...)
}

// Domain returns the distinct values of the requested columns.
func (e *Engine) Domain(ctx context.Context, datasetKey string, req DomainRequest) ([]domainset.Option, error) {
	if len(req.Columns) == 0 {
		return nil, apperr.BadQuery("no columns requested")
	}
	entry, err := e.datasets.Get(ctx, datasetKey)
	if err != nil {
		return nil, err
	}
	options, err := domainset.Distinct(entry.Table, req.Columns, req.filter())
	if err != nil {
		return nil, apperr.BadQuery("%v", err)
	}
	return options, nil
}

// ProductionDates lists the production dates of one chassis and part.
func (e *Engine) ProductionDates(ctx context.Context, datasetKey, chassisCol, chassis, partCol, part, dateCol string) ([]string, error) {
	if chassisCol == "" || chassis == "" || partCol == "" || part == "" || dateCol == "" {
		return nil, apperr.BadQuery("missing one or more selections")
	}
	entry, err := e.datasets.Get(ctx, datasetKey)
	if err != nil {
		return nil, err
	}
	dates, err := domainset.ProductionDates(entry.Table, chassisCol, chassis, partCol, part, dateCol)
	if err != nil {
		return nil, apperr.BadQuery("%v", err)
	}
	return dates, nil
}

// Columns groups the dataset's column names for column pickers.
func (e *Engine) Columns(ctx context.Context, datasetKey string) (*ColumnGroups, error) {
	entry, err := e.datasets.Get(ctx, datasetKey)
	if err != nil {
		return nil, err
	}
	t := entry.Table
	return &ColumnGroups{
		All:     t.ColumnNames(),
		Dates:   domainset.ColumnsOfType(t, table.TypeDate),
		Numeric: domainset.ColumnsOfType(t, table.TypeNumeric),
	}, nil
}
