package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/KaramelBytes/vizloom/internal/dataset"
)

// pieSlices caps the number of pie slices; the remainder is folded into "other".
const pieSlices = 12

// Histogram bins a numeric column. bins <= 0 picks Sturges' rule.
func Histogram(df *dataset.Frame, col string, bins int) (*Figure, error) {
	raw, err := df.Float64s(col)
	if err != nil {
		return nil, err
	}
	vals := finite(raw)
	if len(vals) == 0 {
		return nil, fmt.Errorf("viz: column %q has no numeric values", col)
	}
	if bins <= 0 {
		bins = int(math.Ceil(math.Log2(float64(len(vals))))) + 1
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		bins = 1
	}
	width := (hi - lo) / float64(bins)
	counts := make([]int, bins)
	for _, v := range vals {
		i := bins - 1
		if width > 0 {
			i = int((v - lo) / width)
			if i >= bins {
				i = bins - 1
			}
		}
		counts[i]++
	}
	labels := make([]string, bins)
	data := make([]opts.BarData, bins)
	for i := range counts {
		a := lo + float64(i)*width
		labels[i] = fmt.Sprintf("[%.4g, %.4g)", a, a+width)
		data[i] = opts.BarData{Value: counts[i]}
	}
	if bins > 0 {
		labels[bins-1] = fmt.Sprintf("[%.4g, %.4g]", lo+float64(bins-1)*width, hi)
	}

	title := "Distribution of " + col
	bar := charts.NewBar()
	bar.SetGlobalOptions(globals(title)...)
	bar.SetGlobalOptions(
		charts.WithXAxisOpts(opts.XAxis{Name: col}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count"}),
	)
	bar.SetXAxis(labels).AddSeries(col, data)
	return newFigure(KindHistogram, title, bar), nil
}

// Bar plots the mean of value per category, in first-seen order. An empty
// value plots row counts instead.
func Bar(df *dataset.Frame, category, value string) (*Figure, error) {
	cats, err := df.Strings(category)
	if err != nil {
		return nil, err
	}
	var nums []float64
	if value != "" {
		if nums, err = df.Float64s(value); err != nil {
			return nil, err
		}
	}
	type agg struct {
		sum float64
		n   int
	}
	var order []string
	groups := map[string]*agg{}
	for i, c := range cats {
		if c == "" {
			c = "(missing)"
		}
		g, ok := groups[c]
		if !ok {
			g = &agg{}
			groups[c] = g
			order = append(order, c)
		}
		if nums == nil {
			g.n++
			continue
		}
		if v := nums[i]; !math.IsNaN(v) {
			g.sum += v
			g.n++
		}
	}
	data := make([]opts.BarData, len(order))
	for i, c := range order {
		g := groups[c]
		switch {
		case nums == nil:
			data[i] = opts.BarData{Value: g.n}
		case g.n == 0:
			data[i] = opts.BarData{Value: "-"}
		default:
			data[i] = opts.BarData{Value: round(g.sum/float64(g.n), 4)}
		}
	}

	title, series := "Count by "+category, "count"
	if value != "" {
		title, series = "Mean "+value+" by "+category, value
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(globals(title)...)
	bar.SetGlobalOptions(charts.WithXAxisOpts(opts.XAxis{Name: category}))
	bar.SetXAxis(order).AddSeries(series, data)
	return newFigure(KindBar, title, bar), nil
}

// Line draws one series per y column against the x column in row order.
func Line(df *dataset.Frame, x string, ys ...string) (*Figure, error) {
	if len(ys) == 0 {
		return nil, fmt.Errorf("viz: line needs at least one y column")
	}
	xs, err := df.Strings(x)
	if err != nil {
		return nil, err
	}
	line := charts.NewLine()
	title := strings.Join(ys, ", ") + " over " + x
	line.SetGlobalOptions(globals(title)...)
	line.SetGlobalOptions(charts.WithXAxisOpts(opts.XAxis{Name: x}))
	line.SetXAxis(xs)
	for _, y := range ys {
		vals, err := df.Float64s(y)
		if err != nil {
			return nil, err
		}
		data := make([]opts.LineData, len(vals))
		for i, v := range vals {
			if math.IsNaN(v) {
				data[i] = opts.LineData{Value: "-"}
				continue
			}
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(y, data)
	}
	return newFigure(KindLine, title, line), nil
}

// Scatter plots y against x, skipping rows where either is missing.
func Scatter(df *dataset.Frame, x, y string) (*Figure, error) {
	xs, err := df.Float64s(x)
	if err != nil {
		return nil, err
	}
	ys, err := df.Float64s(y)
	if err != nil {
		return nil, err
	}
	data := make([]opts.ScatterData, 0, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		data = append(data, opts.ScatterData{Value: []float64{xs[i], ys[i]}})
	}
	title := y + " vs " + x
	sc := charts.NewScatter()
	sc.SetGlobalOptions(globals(title)...)
	sc.SetGlobalOptions(
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: x, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: y, Scale: opts.Bool(true)}),
	)
	sc.AddSeries(title, data)
	return newFigure(KindScatter, title, sc), nil
}

// Box draws a five-number summary per column; no columns means every
// numeric column.
func Box(df *dataset.Frame, cols ...string) (*Figure, error) {
	if len(cols) == 0 {
		cols = df.NumericColumns()
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("viz: no numeric columns to plot")
	}
	data := make([]opts.BoxPlotData, len(cols))
	for i, c := range cols {
		vals, err := df.Float64s(c)
		if err != nil {
			return nil, err
		}
		q := dataset.Quantiles(vals, 0, 0.25, 0.5, 0.75, 1)
		if math.IsNaN(q[0]) {
			return nil, fmt.Errorf("viz: column %q has no numeric values", c)
		}
		for j := range q {
			q[j] = round(q[j], 4)
		}
		data[i] = opts.BoxPlotData{Name: c, Value: q}
	}
	title := "Spread of " + strings.Join(cols, ", ")
	box := charts.NewBoxPlot()
	box.SetGlobalOptions(globals(title)...)
	box.SetXAxis(cols).AddSeries("box", data)
	return newFigure(KindBox, title, box), nil
}

// Pie shows value frequencies of a column.
func Pie(df *dataset.Frame, col string) (*Figure, error) {
	counts, err := df.ValueCounts(col)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("viz: column %q has no values", col)
	}
	var data []opts.PieData
	other := 0
	for i, c := range counts {
		if i >= pieSlices {
			other += c.Count
			continue
		}
		data = append(data, opts.PieData{Name: c.Value, Value: c.Count})
	}
	if other > 0 {
		data = append(data, opts.PieData{Name: "other", Value: other})
	}
	title := "Share of " + col
	pie := charts.NewPie()
	pie.SetGlobalOptions(globals(title)...)
	pie.AddSeries(col, data, charts.WithPieChartOpts(opts.PieChart{Radius: []string{"35%", "70%"}}))
	return newFigure(KindPie, title, pie), nil
}

// Heatmap draws the Pearson correlation matrix of the numeric columns.
func Heatmap(df *dataset.Frame) (*Figure, error) {
	m := df.Correlation()
	if len(m.Columns) == 0 {
		return nil, fmt.Errorf("viz: no numeric columns to correlate")
	}
	var data []opts.HeatMapData
	for i := range m.Columns {
		for j := range m.Columns {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i, j, round(m.Values[i][j], 2)}})
		}
	}
	title := "Correlation matrix"
	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(globals(title)...)
	hm.SetGlobalOptions(
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: m.Columns, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: m.Columns, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        -1,
			Max:        1,
			InRange:    &opts.VisualMapInRange{Color: []string{"#313695", "#f7f7f7", "#a50026"}},
		}),
	)
	hm.SetXAxis(m.Columns).AddSeries("r", data)
	return newFigure(KindHeatmap, title, hm), nil
}
