package dataset

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Statistic row labels, in the order pandas uses for describe(include='all').
var describeStats = []string{"count", "unique", "top", "freq", "mean", "std", "min", "25%", "50%", "75%", "max"}

const nan = "NaN"

// Description is a describe(include='all') style table: one row per
// statistic, one column per dataset column.
type Description struct {
	Columns []string
	Stats   []string
	Cells   [][]string // [stat][column]
}

// Describe computes descriptive statistics for every column. Numeric columns
// get count/mean/std/min/quartiles/max; object and bool columns get
// count/unique/top/freq; datetime columns get count/mean/min/quartiles/max.
// Statistics that do not apply are NaN.
func (f *Frame) Describe() *Description {
	d := &Description{Columns: f.Columns(), Stats: describeStats}
	d.Cells = make([][]string, len(describeStats))
	for i := range d.Cells {
		d.Cells[i] = make([]string, len(f.cols))
		for j := range d.Cells[i] {
			d.Cells[i][j] = nan
		}
	}
	set := func(stat string, col int, v string) {
		for i, s := range describeStats {
			if s == stat {
				d.Cells[i][col] = v
				return
			}
		}
	}
	for j, c := range f.cols {
		switch {
		case c.kind.Numeric():
			vals := c.Numbers()
			set("count", j, strconv.Itoa(len(vals)))
			if len(vals) == 0 {
				continue
			}
			mean, std := meanStd(vals)
			sorted := append([]float64(nil), vals...)
			sort.Float64s(sorted)
			set("mean", j, formatFloat(mean))
			set("std", j, formatFloat(std))
			set("min", j, formatFloat(sorted[0]))
			set("25%", j, formatFloat(quantile(sorted, 0.25)))
			set("50%", j, formatFloat(quantile(sorted, 0.5)))
			set("75%", j, formatFloat(quantile(sorted, 0.75)))
			set("max", j, formatFloat(sorted[len(sorted)-1]))
		case c.kind == KindDatetime:
			vals := c.Numbers()
			set("count", j, strconv.Itoa(len(vals)))
			if len(vals) == 0 {
				continue
			}
			mean, _ := meanStd(vals)
			sorted := append([]float64(nil), vals...)
			sort.Float64s(sorted)
			set("mean", j, formatUnix(mean))
			set("min", j, formatUnix(sorted[0]))
			set("25%", j, formatUnix(quantile(sorted, 0.25)))
			set("50%", j, formatUnix(quantile(sorted, 0.5)))
			set("75%", j, formatUnix(quantile(sorted, 0.75)))
			set("max", j, formatUnix(sorted[len(sorted)-1]))
		default:
			counts := valueCounts(c.raw)
			set("count", j, strconv.Itoa(c.Count()))
			if len(counts) == 0 {
				continue
			}
			set("unique", j, strconv.Itoa(len(counts)))
			set("top", j, counts[0].Value)
			set("freq", j, strconv.Itoa(counts[0].Count))
		}
	}
	return d
}

// Value returns the cell for a statistic and column.
func (d *Description) Value(stat, column string) (string, bool) {
	si, ci := -1, -1
	for i, s := range d.Stats {
		if s == stat {
			si = i
		}
	}
	for i, c := range d.Columns {
		if c == column {
			ci = i
		}
	}
	if si < 0 || ci < 0 {
		return "", false
	}
	return d.Cells[si][ci], true
}

// String renders the table with right-aligned cells, like DataFrame.to_string.
func (d *Description) String() string {
	if len(d.Columns) == 0 {
		return "Empty DataFrame\nColumns: []\n"
	}
	labelW := 0
	for _, s := range d.Stats {
		labelW = max(labelW, runeLen(s))
	}
	widths := make([]int, len(d.Columns))
	for j, c := range d.Columns {
		widths[j] = runeLen(c)
		for i := range d.Stats {
			widths[j] = max(widths[j], runeLen(d.Cells[i][j]))
		}
	}
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", labelW))
	for j, c := range d.Columns {
		b.WriteString("  ")
		b.WriteString(padLeft(c, widths[j]))
	}
	b.WriteString("\n")
	for i, s := range d.Stats {
		b.WriteString(s)
		b.WriteString(strings.Repeat(" ", labelW-runeLen(s)))
		for j := range d.Columns {
			b.WriteString("  ")
			b.WriteString(padLeft(d.Cells[i][j], widths[j]))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// CategoryCount is one entry of a value_counts listing.
type CategoryCount struct {
	Value string
	Count int
}

// valueCounts orders distinct non-missing values by count, ties broken by
// first appearance.
func valueCounts(raw []string) []CategoryCount {
	idx := map[string]int{}
	var out []CategoryCount
	for _, v := range raw {
		if v == "" {
			continue
		}
		if i, ok := idx[v]; ok {
			out[i].Count++
			continue
		}
		idx[v] = len(out)
		out = append(out, CategoryCount{Value: v, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// meanStd returns the mean and sample standard deviation (ddof=1) via Welford.
func meanStd(vals []float64) (mean, std float64) {
	var m2 float64
	for i, x := range vals {
		delta := x - mean
		mean += delta / float64(i+1)
		m2 += delta * (x - mean)
	}
	if len(vals) > 1 {
		std = math.Sqrt(m2 / float64(len(vals)-1))
	} else {
		std = math.NaN()
	}
	return mean, std
}

// quantile interpolates linearly between closest ranks of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return nan
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatUnix(v float64) string {
	if math.IsNaN(v) {
		return nan
	}
	return time.Unix(int64(v), 0).UTC().Format("2006-01-02 15:04:05")
}

func runeLen(s string) int { return len([]rune(s)) }

func padLeft(s string, w int) string {
	if n := runeLen(s); n < w {
		return strings.Repeat(" ", w-n) + s
	}
	return s
}

// ValueCounts lists distinct non-missing values of a column, most frequent first.
func (f *Frame) ValueCounts(name string) ([]CategoryCount, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	return valueCounts(c.raw), nil
}

// Quantiles returns the linear-interpolated quantiles qs of vals. NaNs are
// ignored; an empty input yields NaNs.
func Quantiles(vals []float64, qs ...float64) []float64 {
	sorted := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)
	out := make([]float64, len(qs))
	for i, q := range qs {
		if len(sorted) == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = quantile(sorted, q)
	}
	return out
}
