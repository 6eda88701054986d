// Package dashboard serves the web UI: upload a dataset, then ask for
// recommendations, anomalies or charts against it.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom/internal/assistant"
	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/surface"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// AssistantFactory builds an assistant drawing on s. apiKey is the key typed
// in the upload form and may be empty.
type AssistantFactory func(s surface.Surface, apiKey string) (*assistant.Assistant, error)

// Options configures a Server.
type Options struct {
	Logger       *zap.Logger
	NewAssistant AssistantFactory
	// Load controls how uploads are parsed.
	Load dataset.Options
	// MaxUploadBytes caps the multipart body; 0 means 32 MiB.
	MaxUploadBytes int64
	// MaxSessions caps live sessions; the oldest is dropped first. 0 means 32.
	MaxSessions int
	// RequestTimeout bounds each model call; 0 means 2 minutes.
	RequestTimeout time.Duration
}

// Server holds uploaded sessions and the router.
type Server struct {
	opts     Options
	log      *zap.Logger
	sessions *sessionStore
	router   chi.Router
}

// New builds a server. NewAssistant is required.
func New(opts Options) (*Server, error) {
	if opts.NewAssistant == nil {
		return nil, errors.New("dashboard: NewAssistant is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 32
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	s := &Server{opts: opts, log: opts.Logger, sessions: newSessionStore(opts.MaxSessions)}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	r.Get("/", s.handleIndex)
	r.Post("/upload", s.handleUpload)
	r.Route("/s/{id}", func(r chi.Router) {
		r.Get("/", s.handleSession)
		r.Post("/recommendations", s.handleRecommendations)
		r.Post("/anomalies", s.handleAnomalies)
		r.Post("/viz", s.handleViz)
		r.Get("/figures/{fig}", s.handleFigure)
	})
	return r
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("dashboard listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("render page", zap.String("page", name), zap.Error(err))
	}
}

type indexPage struct {
	Title string
	Error string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index", indexPage{Title: "Upload"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		s.render(w, http.StatusBadRequest, "index", indexPage{Title: "Upload", Error: "upload failed: " + err.Error()})
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		s.render(w, http.StatusBadRequest, "index", indexPage{Title: "Upload", Error: "no file in upload"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.render(w, http.StatusBadRequest, "index", indexPage{Title: "Upload", Error: "upload failed: " + err.Error()})
		return
	}
	df, err := dataset.Read(data, hdr.Filename, s.opts.Load)
	if err != nil {
		s.log.Warn("dataset rejected", zap.String("file", hdr.Filename), zap.Error(err))
		s.render(w, http.StatusBadRequest, "index", indexPage{Title: "Upload", Error: err.Error()})
		return
	}
	sess := s.sessions.add(df, r.FormValue("api_key"))
	s.log.Info("session created", zap.String("session", sess.id), zap.String("dataset", df.Name), zap.Int("rows", df.Len()))
	http.Redirect(w, r, "/s/"+sess.id+"/", http.StatusSeeOther)
}

type sessionPage struct {
	Title    string
	ID       string
	Name     string
	Rows     int
	Columns  []string
	Notes    []string
	DTypes   string
	Describe string
	Events   []surface.Event
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sess, ok := s.sessions.get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
	}
	return sess, ok
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	df := sess.frame
	s.render(w, http.StatusOK, "session", sessionPage{
		Title:    df.Name,
		ID:       sess.id,
		Name:     df.Name,
		Rows:     df.Len(),
		Columns:  df.Columns(),
		Notes:    df.Notes,
		DTypes:   df.DTypesString(),
		Describe: df.Describe().String(),
		Events:   sess.rec.Events(),
	})
}

// run builds the session's assistant and runs op with the session lock held;
// a session handles one model call at a time.
func (s *Server) run(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, a *assistant.Assistant, sess *session)) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	a, err := s.opts.NewAssistant(sess.rec, sess.apiKey)
	if err != nil {
		s.log.Error("build assistant", zap.String("session", sess.id), zap.Error(err))
		sess.rec.Error("request failed: " + err.Error())
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		op(ctx, a, sess)
		cancel()
	}
	http.Redirect(w, r, "/s/"+sess.id+"/", http.StatusSeeOther)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, func(ctx context.Context, a *assistant.Assistant, sess *session) {
		if text := a.GenerateRecommendations(ctx, sess.frame); text != "" {
			sess.rec.Markdown(text)
		}
	})
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, func(ctx context.Context, a *assistant.Assistant, sess *session) {
		if text := a.DetectAnomalies(ctx, sess.frame); text != "" {
			sess.rec.Markdown(text)
		}
	})
}

func (s *Server) handleViz(w http.ResponseWriter, r *http.Request) {
	request := r.FormValue("prompt")
	showCode := r.FormValue("show_code") != ""
	s.run(w, r, func(ctx context.Context, a *assistant.Assistant, sess *session) {
		a.ShowCode = a.ShowCode || showCode
		_, _ = a.Visualize(ctx, sess.frame, request)
	})
}

func (s *Server) handleFigure(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	fig, ok := sess.rec.LookupFigure(chi.URLParam(r, "fig"))
	if !ok {
		http.Error(w, "figure not found", http.StatusNotFound)
		return
	}
	html, err := fig.HTML()
	if err != nil {
		s.log.Error("render figure", zap.String("figure", fig.ID), zap.Error(err))
		http.Error(w, fmt.Sprintf("render failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(html)
}
