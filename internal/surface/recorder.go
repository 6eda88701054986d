package surface

import (
	"sync"
	"time"

	"github.com/KaramelBytes/vizloom/internal/viz"
)

// EventKind tags a recorded surface call.
type EventKind string

const (
	EventMarkdown EventKind = "markdown"
	EventCode     EventKind = "code"
	EventFigure   EventKind = "figure"
	EventError    EventKind = "error"
)

// Event is one call made on a Recorder.
type Event struct {
	Kind   EventKind
	Text   string
	Lang   string
	Figure *viz.Figure
	At     time.Time
}

// Recorder keeps every event in memory, in call order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{now: time.Now} }

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.now == nil {
		r.now = time.Now
	}
	e.At = r.now()
	r.events = append(r.events, e)
}

func (r *Recorder) Markdown(text string)  { r.add(Event{Kind: EventMarkdown, Text: text}) }
func (r *Recorder) Code(lang, src string) { r.add(Event{Kind: EventCode, Lang: lang, Text: src}) }
func (r *Recorder) Error(msg string)      { r.add(Event{Kind: EventError, Text: msg}) }
func (r *Recorder) Figure(fig *viz.Figure) {
	if fig == nil {
		return
	}
	r.add(Event{Kind: EventFigure, Text: fig.Title, Figure: fig})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Since returns events recorded at or after index i, plus the next index.
func (r *Recorder) Since(i int) ([]Event, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i > len(r.events) {
		i = len(r.events)
	}
	out := make([]Event, len(r.events)-i)
	copy(out, r.events[i:])
	return out, len(r.events)
}

// Figures returns the recorded figures in order.
func (r *Recorder) Figures() []*viz.Figure {
	var out []*viz.Figure
	for _, e := range r.Events() {
		if e.Kind == EventFigure {
			out = append(out, e.Figure)
		}
	}
	return out
}

// LookupFigure finds a recorded figure by ID.
func (r *Recorder) LookupFigure(id string) (*viz.Figure, bool) {
	for _, f := range r.Figures() {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

// Errors returns the recorded error messages.
func (r *Recorder) Errors() []string {
	var out []string
	for _, e := range r.Events() {
		if e.Kind == EventError {
			out = append(out, e.Text)
		}
	}
	return out
}

// Reset drops all events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
