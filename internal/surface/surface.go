// Package surface is where model output ends up: a terminal, a dashboard
// session, or an in-memory recorder.
package surface

import "github.com/KaramelBytes/vizloom/internal/viz"

// Surface receives rendered text, code, figures and user-facing errors.
// Implementations must be safe for concurrent use.
type Surface interface {
	Markdown(text string)
	Code(lang, src string)
	Figure(fig *viz.Figure)
	Error(msg string)
}

// Discard drops everything.
var Discard Surface = discard{}

type discard struct{}

func (discard) Markdown(string)     {}
func (discard) Code(string, string) {}
func (discard) Figure(*viz.Figure)  {}
func (discard) Error(string)        {}
