package dashboard

import (
	"sync"

	"github.com/google/uuid"

	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/surface"
)

// session is one uploaded dataset and the results produced against it. The
// API key stays server-side and is never rendered.
type session struct {
	id     string
	frame  *dataset.Frame
	rec    *surface.Recorder
	apiKey string

	// mu serializes model calls within the session.
	mu sync.Mutex
}

type sessionStore struct {
	mu    sync.RWMutex
	max   int
	byID  map[string]*session
	order []string
}

func newSessionStore(limit int) *sessionStore {
	return &sessionStore{max: limit, byID: map[string]*session{}}
}

func (st *sessionStore) add(df *dataset.Frame, apiKey string) *session {
	s := &session{
		id:     uuid.NewString(),
		frame:  df,
		rec:    surface.NewRecorder(),
		apiKey: apiKey,
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for len(st.order) >= st.max {
		delete(st.byID, st.order[0])
		st.order = st.order[1:]
	}
	st.byID[s.id] = s
	st.order = append(st.order, s.id)
	return s
}

func (st *sessionStore) get(id string) (*session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byID[id]
	return s, ok
}

func (st *sessionStore) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}
