package viz

import "github.com/KaramelBytes/vizloom/internal/dataset"

// The Must variants panic on error. Generated code runs under recover, so a
// panic there surfaces as an execution failure.

func must(f *Figure, err error) *Figure {
	if err != nil {
		panic(err)
	}
	return f
}

func MustHistogram(df *dataset.Frame, col string, bins int) *Figure {
	return must(Histogram(df, col, bins))
}

func MustBar(df *dataset.Frame, category, value string) *Figure {
	return must(Bar(df, category, value))
}

func MustLine(df *dataset.Frame, x string, ys ...string) *Figure {
	return must(Line(df, x, ys...))
}

func MustScatter(df *dataset.Frame, x, y string) *Figure {
	return must(Scatter(df, x, y))
}

func MustBox(df *dataset.Frame, cols ...string) *Figure {
	return must(Box(df, cols...))
}

func MustPie(df *dataset.Frame, col string) *Figure {
	return must(Pie(df, col))
}

func MustHeatmap(df *dataset.Frame) *Figure {
	return must(Heatmap(df))
}
