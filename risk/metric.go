package risk

import (
	"strconv"
)

// Metric is a value that may be undefined, e.g. a liquidation price for a
// flat position. The zero Metric is undefined.
type Metric struct {
	Value float64
	Valid bool
}

// Undefined is the metric of a flat position or an impossible division.
var Undefined = Metric{}

// Defined wraps v. NaN and infinities are undefined.
func Defined(v float64) Metric {
	if !finite(v) {
		return Undefined
	}
	return Metric{Value: v, Valid: true}
}

// Or returns the value, or def when undefined.
func (m Metric) Or(def float64) float64 {
	if !m.Valid {
		return def
	}
	return m.Value
}

func (m Metric) String() string {
	if !m.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// MarshalJSON encodes an undefined metric as null.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, m.Value, 'f', -1, 64), nil
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Undefined
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*m = Defined(v)
	return nil
}
