package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/surface"
)

func frame(t *testing.T) *dataset.Frame {
	t.Helper()
	return dataset.FromRecords("sales.csv", []string{"region", "units", "price"}, [][]string{
		{"north", "10", "2.5"},
		{"south", "4", "3.0"},
		{"north", "6", "2.0"},
	}, dataset.DefaultOptions())
}

func stageOf(t *testing.T, err error) string {
	t.Helper()
	var ee *ExecError
	require.True(t, errors.As(err, &ee), "got %T: %v", err, err)
	return ee.Stage
}

func TestRunPlotsFigures(t *testing.T) {
	rec := surface.NewRecorder()
	code := `
fig, err := viz.Histogram(df, "units", 3)
if err != nil {
	st.Error(err.Error())
	return
}
st.Plot(fig)
st.Plot(viz.MustHeatmap(df))
st.Write("rows: ", df.Len())
`
	err := New(5*time.Second, nil).Run(context.Background(), code, frame(t), rec)
	require.NoError(t, err)

	figs := rec.Figures()
	require.Len(t, figs, 2)
	assert.Equal(t, "Distribution of units", figs[0].Title)
	assert.Equal(t, "Correlation matrix", figs[1].Title)
	assert.Empty(t, rec.Errors())

	var texts []string
	for _, e := range rec.Events() {
		if e.Kind == surface.EventMarkdown {
			texts = append(texts, e.Text)
		}
	}
	assert.Equal(t, []string{"rows: 3"}, texts)
}

func TestRunAcceptsFullFile(t *testing.T) {
	rec := surface.NewRecorder()
	code := `package main

import (
	"fmt"
	"vizloom/st"
	"vizloom/viz"
)

func main() {
	st.Write(fmt.Sprintf("%d columns", len(df.Columns())))
	st.Plot(viz.MustBar(df, "region", "units"))
}
`
	err := New(5*time.Second, nil).Run(context.Background(), code, frame(t), rec)
	require.NoError(t, err)
	require.Len(t, rec.Figures(), 1)
	assert.Equal(t, "Mean units by region", rec.Figures()[0].Title)
}

func TestRunMalformedCode(t *testing.T) {
	err := New(time.Second, nil).Run(context.Background(), "this is not go {", frame(t), surface.NewRecorder())
	require.Error(t, err)
	assert.Equal(t, StageCompile, stageOf(t, err))
}

func TestRunRecoversPanics(t *testing.T) {
	rec := surface.NewRecorder()
	err := New(time.Second, nil).Run(context.Background(), `st.Plot(viz.MustPie(df, "missing"))`, frame(t), rec)
	require.Error(t, err)
	assert.Equal(t, StageRun, stageOf(t, err))
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, err.Error(), `column "missing" not found`)
	assert.Empty(t, rec.Figures())
}

func TestRunTimeout(t *testing.T) {
	start := time.Now()
	err := New(100*time.Millisecond, nil).Run(context.Background(), `time.Sleep(3 * time.Second)`, frame(t), surface.NewRecorder())
	require.Error(t, err)
	assert.Equal(t, StageTimeout, stageOf(t, err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunRejectsForbiddenImports(t *testing.T) {
	code := "import \"os\"\nimport \"strings\"\nos.Exit(1)"
	err := New(time.Second, nil).Run(context.Background(), code, frame(t), surface.NewRecorder())
	require.Error(t, err)
	assert.Equal(t, StagePrepare, stageOf(t, err))
	assert.Contains(t, err.Error(), "forbidden imports: os")
}

func TestRunWithoutDataset(t *testing.T) {
	err := New(time.Second, nil).Run(context.Background(), `st.Write("x")`, nil, surface.NewRecorder())
	assert.Equal(t, StagePrepare, stageOf(t, err))
}

func TestExecLogsAndSurfacesFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	rec := surface.NewRecorder()
	ex := New(time.Second, zap.New(core))

	var err error
	require.NotPanics(t, func() {
		err = ex.Exec(context.Background(), "var m map[string]int\nm[\"x\"] = 1", frame(t), rec)
	})
	require.Error(t, err)

	errs := rec.Errors()
	require.Len(t, errs, 1)
	assert.True(t, strings.HasPrefix(errs[0], "execution failed: run: panic:"), errs[0])
	assert.Equal(t, 1, logs.FilterMessage("generated code failed").Len())
}

func TestPrepare(t *testing.T) {
	src, err := Prepare("import (\n\t\"math\" // sqrt\n\tm \"math\"\n)\nst.Write(m.Sqrt(4))")
	require.NoError(t, err)
	assert.Contains(t, src, "func Run(df *frame.Frame) {\nst.Write(m.Sqrt(4))\n}")
	assert.Contains(t, src, "\tm \"math\"\n")
	assert.Equal(t, 1, strings.Count(src, "\t\"math\"\n"))

	src, err = Prepare("package main\n\nfunc Run(df *frame.Frame) {}\n")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(src, "func Run("))
	assert.Equal(t, 1, strings.Count(src, "package main"))

	_, err = Prepare("import . \"net/http\"")
	assert.ErrorContains(t, err, "forbidden imports")

	_, err = Prepare("package main\n")
	assert.ErrorContains(t, err, "no code to run")

	src, err = Prepare("func half(v float64) float64 { return v / 2 }\nst.Write(half(4))")
	require.NoError(t, err)
	assert.Contains(t, src, "var df *frame.Frame\n\nfunc half(v float64) float64 { return v / 2 }\n\nfunc Run(d *frame.Frame) {\n\tdf = d\nst.Write(half(4))\n}")

	_, err = Prepare("go st.Write(1)")
	assert.ErrorIs(t, err, errGoroutine)
}

func TestRunRejectsGoroutines(t *testing.T) {
	cases := map[string]string{
		"go statement":     "go func() { panic(\"boom\") }()\ntime.Sleep(200 * time.Millisecond)",
		"after func":       "time.AfterFunc(0, func() { panic(\"boom\") })\ntime.Sleep(200 * time.Millisecond)",
		"aliased time":     "import tm \"time\"\ntm.AfterFunc(0, func() { panic(\"boom\") })",
		"inside helper fn": "func spawn() {\n\tgo st.Write(\"x\")\n}\nspawn()",
	}
	for name, code := range cases {
		t.Run(name, func(t *testing.T) {
			rec := surface.NewRecorder()
			var err error
			require.NotPanics(t, func() {
				err = New(5*time.Second, nil).Exec(context.Background(), code, frame(t), rec)
			})
			require.Error(t, err)
			assert.Equal(t, StagePrepare, stageOf(t, err))
			assert.ErrorIs(t, err, errGoroutine)
			require.Len(t, rec.Errors(), 1)
		})
	}
}

func TestStdlibSubsetWithholdsAfterFunc(t *testing.T) {
	syms := stdlibSubset()["time/time"]
	require.NotEmpty(t, syms)
	assert.Contains(t, syms, "Sleep")
	assert.NotContains(t, syms, "AfterFunc")
}

func TestRunHoistsHelperDeclarations(t *testing.T) {
	rec := surface.NewRecorder()
	code := `type label string

func title() label {
	return label(fmt.Sprintf("%d rows", df.Len()))
}

fig := viz.MustBar(df, "region", "units")
st.Write(string(title()))
st.Plot(fig)
`
	err := New(5*time.Second, nil).Run(context.Background(), code, frame(t), rec)
	require.NoError(t, err)
	require.Len(t, rec.Figures(), 1)

	var texts []string
	for _, e := range rec.Events() {
		if e.Kind == surface.EventMarkdown {
			texts = append(texts, e.Text)
		}
	}
	assert.Equal(t, []string{"3 rows"}, texts)
}

func TestHoistDecls(t *testing.T) {
	decls, rest := hoistDecls("x := 1\nfunc add(a, b int) int {\n\treturn a + b\n}\ntype pair struct{ a, b int }\nf := func() int { return x }\nst.Write(add(x, f()))")
	assert.Equal(t, []string{
		"func add(a, b int) int {\n\treturn a + b\n}",
		"type pair struct{ a, b int }",
	}, decls)
	assert.Contains(t, rest, "x := 1")
	assert.Contains(t, rest, "f := func() int { return x }")
	assert.NotContains(t, rest, "func add")

	decls, rest = hoistDecls("st.Write(1)")
	assert.Empty(t, decls)
	assert.Equal(t, "st.Write(1)", rest)
}
