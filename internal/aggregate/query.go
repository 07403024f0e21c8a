package aggregate

import (
	"github.com/fleetlens/backend/internal/apperr"
)

type Kind string

const (
	KindOneD       Kind = "1d"
	KindTwoD       Kind = "2d"
	KindComparison Kind = "comparison"
	KindThreeD     Kind = "3d"
)

type SortMode string

const (
	SortNone SortMode = ""
	SortAsc  SortMode = "asc"
	SortDesc SortMode = "desc"
)

type CountMode string

const (
	CountAbsolute   CountMode = "absolute"
	CountPercentage CountMode = "percentage"
)

// Query is one chart request. The concrete types are OneD, TwoD, Comparison
// and ThreeD.
type Query interface {
	Kind() Kind
	validate() error
}

// OneD counts the values of a single column.
type OneD struct {
	X         string
	XFilter   []string
	Sort      SortMode
	TopN      int
	CountMode CountMode
	Style     string
}

// TwoD counts rows per X, or per (X, Y) pair when Stacked.
type TwoD struct {
	X       string
	Y       string
	XFilter []string
	YFilter []string
	Stacked bool
	Sort    SortMode
	TopN    int
	Style   string
}

// Comparison tracks, month by month, how often each compared value appears in
// any of the search columns.
type Comparison struct {
	DateColumn    string
	SearchColumns []string
	CompareValues []string
	// GroupColumn switches the measure to the number of distinct group values,
	// or, together with GroupValue, to the row count within that group.
	GroupColumn string
	GroupValue  string
	Style       string
}

type Style3D string

const (
	StyleScatter Style3D = "scatter_3d"
	StyleLine    Style3D = "line_3d"
	StyleBubble  Style3D = "bubble_3d"
)

type ThreeD struct {
	X, Y, Z                   string
	XFilter, YFilter, ZFilter []string
	Style                     Style3D
}

func (OneD) Kind() Kind { return KindOneD }
func (TwoD) Kind() Kind { return KindTwoD }
func (Comparison) Kind() Kind { return KindComparison }
func (ThreeD) Kind() Kind { return KindThreeD }

func validSort(s SortMode) bool {
	return s == SortNone || s == SortAsc || s == SortDesc
}

func (q OneD) validate() error {
	if q.X == "" {
		return apperr.BadQuery("please select an X-axis column")
	}
	if !validSort(q.Sort) {
		return apperr.BadQuery("unknown sort mode %q", q.Sort)
	}
	if q.TopN < 0 {
		return apperr.BadQuery("top N must not be negative")
	}
	switch q.CountMode {
	case "", CountAbsolute, CountPercentage:
	default:
		return apperr.BadQuery("unknown count mode %q", q.CountMode)
	}
	return nil
}

func (q TwoD) validate() error {
	if q.X == "" || q.Y == "" {
		return apperr.BadQuery("please select both X and Y axis columns")
	}
	if !validSort(q.Sort) {
		return apperr.BadQuery("unknown sort mode %q", q.Sort)
	}
	if q.TopN < 0 {
		return apperr.BadQuery("top N must not be negative")
	}
	return nil
}

func (q Comparison) validate() error {
	if q.DateColumn == "" || len(q.SearchColumns) == 0 || len(q.CompareValues) == 0 {
		return apperr.BadQuery("please choose a date column, search column(s) and compare values")
	}
	if q.GroupColumn == "" && q.GroupValue != "" {
		return apperr.BadQuery("a group value needs a group column")
	}
	return nil
}

func (q ThreeD) validate() error {
	if q.X == "" || q.Y == "" || q.Z == "" {
		return apperr.BadQuery("please select X, Y and Z axes")
	}
	switch q.Style {
	case "", StyleScatter, StyleLine, StyleBubble:
	default:
		return apperr.BadQuery("unknown 3D style %q", q.Style)
	}
	return nil
}
