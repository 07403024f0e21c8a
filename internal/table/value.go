package table

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Value is a single cell. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	n    float64
	t    time.Time
}

func Null() Value { return Value{} }
func Text(s string) Value { return Value{kind: KindText, s: s} }
func Number(f float64) Value { return Value{kind: KindNumber, n: f} }
// Date holds t in UTC so a value formats the same before and after a cache
// round trip.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t.UTC()} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Str() string { return v.s }
func (v Value) Num() float64 { return v.n }
func (v Value) Time() time.Time { return v.t }

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// String is the canonical text form used for filtering, grouping and labels.
// Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindDate:
		if isMidnight(v.t) {
			return v.t.Format(dateLayout)
		}
		return v.t.Format(dateTimeLayout)
	default:
		return ""
	}
}

func isMidnight(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.s == o.s
	case KindNumber:
		return v.n == o.n
	case KindDate:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// Compare orders values: nulls first, then numbers, dates and text. Values of
// the same kind compare naturally.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return rank(a.kind) - rank(b.kind)
	}
	switch a.kind {
	case KindNumber:
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		}
		return 0
	case KindDate:
		return a.t.Compare(b.t)
	case KindText:
		return strings.Compare(a.s, b.s)
	default:
		return 0
	}
}

func rank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindNumber:
		return 1
	case KindDate:
		return 2
	default:
		return 3
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.n)
	case KindText, KindDate:
		return json.Marshal(v.String())
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON maps JSON numbers to Number, strings to Text and null to Null.
// Dates come back as Text with their canonical form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Null()
	case float64:
		*v = Number(x)
	case string:
		*v = Text(x)
	case bool:
		*v = Text(strconv.FormatBool(x))
	default:
		*v = Text(string(data))
	}
	return nil
}
