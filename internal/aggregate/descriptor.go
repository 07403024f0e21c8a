package aggregate

import (
	"github.com/fleetlens/backend/internal/apperr"
)

const styleStacked = "bar_stacked"

// Descriptor is the flat wire form of a chart request as sent by clients.
type Descriptor struct {
	Type      string `json:"type"`
	Mode      string `json:"mode,omitempty"`
	Style     string `json:"style,omitempty"`
	Sort      string `json:"sort,omitempty"`
	TopN      int    `json:"top_n,omitempty"`
	CountMode string `json:"count_mode,omitempty"`

	X       string   `json:"x,omitempty"`
	Y       string   `json:"y,omitempty"`
	Z       string   `json:"z,omitempty"`
	XFilter []string `json:"x_filter,omitempty"`
	YFilter []string `json:"y_filter,omitempty"`
	ZFilter []string `json:"z_filter,omitempty"`

	DateColumn    string   `json:"date_column,omitempty"`
	SearchColumns []string `json:"search_columns,omitempty"`
	CompareValues []string `json:"compare_values,omitempty"`
	GroupColumn   string   `json:"group_column,omitempty"`
	GroupValue    string   `json:"group_value,omitempty"`
}

// Query converts d into its typed form. Field presence is checked later by
// Aggregate; only the request shape is checked here.
func (d Descriptor) Query() (Query, error) {
	switch d.Type {
	case "1d":
		return OneD{
			X:         d.X,
			XFilter:   d.XFilter,
			Sort:      SortMode(d.Sort),
			TopN:      d.TopN,
			CountMode: CountMode(d.CountMode),
			Style:     d.Style,
		}, nil
	case "2d":
		switch d.Mode {
		case "", "normal":
			return TwoD{
				X:       d.X,
				Y:       d.Y,
				XFilter: d.XFilter,
				YFilter: d.YFilter,
				Stacked: d.Style == styleStacked,
				Sort:    SortMode(d.Sort),
				TopN:    d.TopN,
				Style:   d.Style,
			}, nil
		case "comparison":
			return Comparison{
				DateColumn:    d.DateColumn,
				SearchColumns: d.SearchColumns,
				CompareValues: d.CompareValues,
				GroupColumn:   d.GroupColumn,
				GroupValue:    d.GroupValue,
				Style:         d.Style,
			}, nil
		default:
			return nil, apperr.BadQuery("unknown 2D mode %q", d.Mode)
		}
	case "3d":
		return ThreeD{
			X: d.X, Y: d.Y, Z: d.Z,
			XFilter: d.XFilter, YFilter: d.YFilter, ZFilter: d.ZFilter,
			Style: Style3D(d.Style),
		}, nil
	default:
		return nil, apperr.BadQuery("invalid graph type %q", d.Type)
	}
}
