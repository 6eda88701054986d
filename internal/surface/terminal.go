package surface

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/KaramelBytes/vizloom/internal/viz"
)

var (
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	noteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Terminal prints markdown through glamour and saves figures as HTML files
// under Dir.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	dir   string
	md    *glamour.TermRenderer
	paths []string
}

// TerminalOptions configures NewTerminal.
type TerminalOptions struct {
	// Dir receives figure files; created on first use.
	Dir string
	// Plain disables ANSI styling (pipes, tests).
	Plain bool
	// Width wraps markdown; 0 means 100.
	Width int
}

// NewTerminal builds a terminal surface writing to out.
func NewTerminal(out io.Writer, opt TerminalOptions) *Terminal {
	if opt.Width <= 0 {
		opt.Width = 100
	}
	style := glamour.WithAutoStyle()
	if opt.Plain {
		style = glamour.WithStylePath("notty")
	}
	md, _ := glamour.NewTermRenderer(style, glamour.WithWordWrap(opt.Width))
	return &Terminal{out: out, dir: opt.Dir, md: md}
}

func (t *Terminal) Markdown(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.md != nil {
		if rendered, err := t.md.Render(text); err == nil {
			fmt.Fprint(t.out, rendered)
			return
		}
	}
	fmt.Fprintln(t.out, text)
}

func (t *Terminal) Code(lang, src string) {
	t.Markdown("```" + lang + "\n" + strings.TrimRight(src, "\n") + "\n```")
}

func (t *Terminal) Error(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, errorStyle.Render("✗ "+msg))
}

// Figure writes <Dir>/<figure id>.html and prints its path.
func (t *Terminal) Figure(fig *viz.Figure) {
	if fig == nil {
		return
	}
	path, err := t.save(fig)
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		fmt.Fprintln(t.out, errorStyle.Render("✗ figure not saved: "+err.Error()))
		return
	}
	t.paths = append(t.paths, path)
	fmt.Fprintf(t.out, "✓ Figure %q saved to %s\n", fig.Title, path)
}

func (t *Terminal) save(fig *viz.Figure) (string, error) {
	dir := t.dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, fig.ID+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := fig.Render(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	return path, f.Close()
}

// Note prints a dimmed informational line.
func (t *Terminal) Note(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, noteStyle.Render(fmt.Sprintf(format, args...)))
}

// Paths lists the figure files written so far.
func (t *Terminal) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.paths...)
}
