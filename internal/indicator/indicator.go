// Package indicator provides technical indicator calculations over price series.
//
// Every function is pure and total: it never panics or returns an error on
// short or degenerate input. Positions that have not accumulated enough data
// hold an invalid Value rather than a sentinel number.
package indicator

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is an optional indicator reading. The zero Value is undefined.
type Value struct {
	Float float64
	Valid bool
}

// Some returns a defined Value.
func Some(f float64) Value { return Value{Float: f, Valid: true} }

// None is the undefined Value.
var None = Value{}

// Get returns the reading and whether it is defined.
func (v Value) Get() (float64, bool) { return v.Float, v.Valid }

// OrNaN returns the reading or NaN when undefined.
func (v Value) OrNaN() float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float
}

func (v Value) String() string {
	if !v.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(v.Float, 'f', -1, 64)
}

// MarshalJSON encodes an undefined Value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

// UnmarshalJSON decodes null as undefined.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = None
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}

// Series is an indicator output aligned index-for-index with its input.
type Series []Value

// undefined returns an all-undefined series of length n.
func undefined(n int) Series {
	return make(Series, n)
}

// At returns the value at i, or None when i is out of range.
func (s Series) At(i int) Value {
	if i < 0 || i >= len(s) {
		return None
	}
	return s[i]
}

// Last returns the final value of the series.
func (s Series) Last() Value {
	return s.At(len(s) - 1)
}

// Floats returns the series as float64 with NaN for undefined positions.
func (s Series) Floats() []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = v.OrNaN()
	}
	return out
}

// FirstValid returns the index of the first defined value, or -1.
func (s Series) FirstValid() int {
	for i, v := range s {
		if v.Valid {
			return i
		}
	}
	return -1
}
