package dataset

import (
	"fmt"
	"math"
	"strings"
)

// Kind is the inferred storage type of a column, named after the pandas dtypes
// the prompts describe to the model.
type Kind string

const (
	KindInt      Kind = "int64"
	KindFloat    Kind = "float64"
	KindBool     Kind = "bool"
	KindDatetime Kind = "datetime64"
	KindObject   Kind = "object"
)

// Numeric reports whether values of this kind have a float view.
func (k Kind) Numeric() bool { return k == KindInt || k == KindFloat }

// Column holds the raw cells of one column plus a parsed numeric view.
// Missing cells are stored as "" and NaN.
type Column struct {
	name string
	kind Kind
	raw  []string
	nums []float64
}

// Name returns the column name exactly as it appeared in the header.
func (c *Column) Name() string { return c.name }

// Kind returns the inferred dtype.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of rows, missing cells included.
func (c *Column) Len() int { return len(c.raw) }

// At returns the raw cell at row i.
func (c *Column) At(i int) string { return c.raw[i] }

// Float returns the parsed value at row i. Datetime cells are Unix seconds.
func (c *Column) Float(i int) (float64, bool) {
	if c.nums == nil || i < 0 || i >= len(c.nums) || math.IsNaN(c.nums[i]) {
		return 0, false
	}
	return c.nums[i], true
}

// Missing counts empty cells.
func (c *Column) Missing() int {
	n := 0
	for _, v := range c.raw {
		if v == "" {
			n++
		}
	}
	return n
}

// Count returns the number of non-missing cells.
func (c *Column) Count() int { return len(c.raw) - c.Missing() }

// Numbers returns the non-missing parsed values in row order.
func (c *Column) Numbers() []float64 {
	out := make([]float64, 0, len(c.nums))
	for _, v := range c.nums {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Frame is an in-memory table of named columns. It is never mutated after
// construction; Head and friends return new frames sharing no state.
type Frame struct {
	// Name is usually the source file's base name.
	Name string
	// TotalRows counts every data row seen in the source, including rows
	// dropped by Options.MaxRows.
	TotalRows int
	// Notes carries load-time warnings (truncation, renamed headers).
	Notes []string

	cols  []*Column
	index map[string]int
	rows  int
}

// DType pairs a column name with its kind.
type DType struct {
	Name string
	Kind Kind
}

// Columns returns the column names in source order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.name
	}
	return out
}

// Len returns the number of loaded rows.
func (f *Frame) Len() int { return f.rows }

// NumCols returns the number of columns.
func (f *Frame) NumCols() int { return len(f.cols) }

// Empty reports whether the frame has no rows or no columns.
func (f *Frame) Empty() bool { return f.rows == 0 || len(f.cols) == 0 }

// Column looks a column up by exact name, falling back to a case-insensitive match.
func (f *Frame) Column(name string) (*Column, error) {
	if i, ok := f.index[name]; ok {
		return f.cols[i], nil
	}
	for _, c := range f.cols {
		if strings.EqualFold(c.name, strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("column %q not found (available: %s)", name, strings.Join(f.Columns(), ", "))
}

// Float64s returns the full numeric view of a column with NaN for missing cells.
func (f *Frame) Float64s(name string) ([]float64, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if !c.kind.Numeric() && c.kind != KindBool && c.kind != KindDatetime {
		return nil, fmt.Errorf("column %q is %s, not numeric", c.name, c.kind)
	}
	out := make([]float64, len(c.nums))
	copy(out, c.nums)
	return out, nil
}

// Strings returns a copy of the raw cells of a column.
func (f *Frame) Strings(name string) ([]string, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(c.raw))
	copy(out, c.raw)
	return out, nil
}

// NumericColumns lists int64 and float64 columns in source order.
func (f *Frame) NumericColumns() []string {
	var out []string
	for _, c := range f.cols {
		if c.kind.Numeric() {
			out = append(out, c.name)
		}
	}
	return out
}

// DTypes returns the inferred kind of every column.
func (f *Frame) DTypes() []DType {
	out := make([]DType, len(f.cols))
	for i, c := range f.cols {
		out[i] = DType{Name: c.name, Kind: c.kind}
	}
	return out
}

// DTypesString renders dtypes one per line, names padded to a common width.
func (f *Frame) DTypesString() string {
	width := 0
	for _, c := range f.cols {
		if n := len([]rune(c.name)); n > width {
			width = n
		}
	}
	var b strings.Builder
	for _, c := range f.cols {
		b.WriteString(c.name)
		b.WriteString(strings.Repeat(" ", width-len([]rune(c.name))+4))
		b.WriteString(string(c.kind))
		b.WriteString("\n")
	}
	return b.String()
}

// Head returns a frame with the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n < 0 {
		n = 0
	}
	if n > f.rows {
		n = f.rows
	}
	out := &Frame{Name: f.Name, TotalRows: n, index: make(map[string]int, len(f.cols)), rows: n}
	for i, c := range f.cols {
		nc := &Column{name: c.name, kind: c.kind, raw: append([]string(nil), c.raw[:n]...)}
		if c.nums != nil {
			nc.nums = append([]float64(nil), c.nums[:n]...)
		}
		out.cols = append(out.cols, nc)
		out.index[c.name] = i
	}
	return out
}

// Row returns the raw cells of row i in column order.
func (f *Frame) Row(i int) []string {
	out := make([]string, len(f.cols))
	for j, c := range f.cols {
		out[j] = c.raw[i]
	}
	return out
}
