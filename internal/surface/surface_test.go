package surface

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/viz"
)

func figure(t *testing.T) *viz.Figure {
	t.Helper()
	df := dataset.FromRecords("t.csv", []string{"a", "b"}, [][]string{{"1", "2"}, {"2", "4"}, {"3", "7"}}, dataset.DefaultOptions())
	fig, err := viz.Scatter(df, "a", "b")
	require.NoError(t, err)
	return fig
}

func TestRecorderKeepsOrder(t *testing.T) {
	r := NewRecorder()
	fig := figure(t)
	r.Markdown("# hello")
	r.Code("go", "st.Plot(fig)")
	r.Figure(fig)
	r.Figure(nil)
	r.Error("execution failed: boom")

	ev := r.Events()
	require.Len(t, ev, 4)
	assert.Equal(t, []EventKind{EventMarkdown, EventCode, EventFigure, EventError},
		[]EventKind{ev[0].Kind, ev[1].Kind, ev[2].Kind, ev[3].Kind})
	assert.Equal(t, "go", ev[1].Lang)
	assert.Equal(t, []string{"execution failed: boom"}, r.Errors())

	got, ok := r.LookupFigure(fig.ID)
	require.True(t, ok)
	assert.Same(t, fig, got)

	tail, next := r.Since(2)
	assert.Len(t, tail, 2)
	assert.Equal(t, 4, next)

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestRecorderConcurrent(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Markdown("x")
		}()
	}
	wg.Wait()
	assert.Len(t, r.Events(), 20)
}

func TestTerminalWritesFigureFiles(t *testing.T) {
	var out bytes.Buffer
	dir := filepath.Join(t.TempDir(), "figs")
	term := NewTerminal(&out, TerminalOptions{Dir: dir, Plain: true})
	fig := figure(t)

	term.Figure(fig)
	paths := term.Paths()
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, fig.ID+".html"), paths[0])

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "b vs a")
	assert.Contains(t, out.String(), "saved to "+paths[0])
}

func TestTerminalTextAndErrors(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, TerminalOptions{Plain: true})
	term.Markdown("- trend: revenue is up")
	term.Error("request failed: boom")
	term.Note("model %s", "m1")

	s := out.String()
	assert.Contains(t, s, "trend: revenue is up")
	assert.Contains(t, s, "✗ request failed: boom")
	assert.Contains(t, s, "model m1")
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard.Markdown("x")
		Discard.Figure(nil)
		Discard.Error("x")
	})
}
