// Package viz builds interactive charts from a dataset.Frame. It is the only
// plotting surface exposed to generated code.
package viz

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/render"
	"github.com/google/uuid"
)

// Chart kinds.
const (
	KindHistogram = "histogram"
	KindBar       = "bar"
	KindLine      = "line"
	KindScatter   = "scatter"
	KindBox       = "box"
	KindPie       = "pie"
	KindHeatmap   = "heatmap"
)

// Figure is a titled chart ready to be rendered as a standalone HTML page.
type Figure struct {
	ID    string
	Title string
	Kind  string

	chart render.Renderer
}

func newFigure(kind, title string, chart render.Renderer) *Figure {
	return &Figure{ID: uuid.NewString(), Title: title, Kind: kind, chart: chart}
}

// Render writes the chart as an HTML document.
func (f *Figure) Render(w io.Writer) (err error) {
	if f == nil || f.chart == nil {
		return fmt.Errorf("viz: empty figure")
	}
	defer func() {
		// the echarts renderer panics on template errors
		if r := recover(); r != nil {
			err = fmt.Errorf("viz: render %s: %v", f.Kind, r)
		}
	}()
	return f.chart.Render(w)
}

// HTML renders the figure into memory.
func (f *Figure) HTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func globals(title string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	}
}

// finite drops NaN cells; echarts has no notion of NaN.
func finite(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
