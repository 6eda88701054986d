// Package history journals every model call and code execution in a local
// SQLite database.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	// registers the pure-Go driver as "sqlite"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run kinds.
const (
	KindRecommendations = "recommendations"
	KindAnomalies       = "anomalies"
	KindVisualization   = "viz"
	KindExec            = "exec"
	KindSend            = "send"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("run not found")

// Run is one journaled request.
type Run struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Dataset   string    `json:"dataset,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a SQLite-backed run journal.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens or creates the journal at path. ":memory:" gives a private
// in-memory database.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: create dir: %w", err)
		}
	}
	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}
	if memory {
		// each connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate %q: %w", path, err)
	}
	logger.Debug("history opened", zap.String("path", path))
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Record stores r, filling ID, Status and CreatedAt when empty.
func (s *Store) Record(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Kind == "" {
		return r, fmt.Errorf("history: run kind is required")
	}
	if r.Status == "" {
		r.Status = StatusOK
		if r.Error != "" {
			r.Status = StatusFailed
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, dataset, provider, model, prompt, response, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Dataset, r.Provider, r.Model, r.Prompt, r.Response, r.Status, r.Error,
		r.CreatedAt.Format(timeLayout))
	if err != nil {
		return r, fmt.Errorf("history: record: %w", err)
	}
	s.logger.Debug("run recorded", zap.String("id", r.ID), zap.String("kind", r.Kind), zap.String("status", r.Status))
	return r, nil
}

const selectRuns = `SELECT id, kind, dataset, provider, model, prompt, response, status, error, created_at FROM runs`

// List returns up to limit runs, newest first. limit <= 0 means 20.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRuns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the run with the given id. A unique id prefix also matches.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Run{}, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, selectRuns+` WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`,
		id, escapeLike(id)+"%", id)
	if err != nil {
		return Run{}, fmt.Errorf("history: get: %w", err)
	}
	defer rows.Close()
	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch {
	case len(found) == 0:
		return Run{}, ErrNotFound
	case found[0].ID == id || len(found) == 1:
		return found[0], nil
	default:
		return Run{}, fmt.Errorf("history: id prefix %q is ambiguous", id)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var created string
	if err := sc.Scan(&r.ID, &r.Kind, &r.Dataset, &r.Provider, &r.Model, &r.Prompt, &r.Response, &r.Status, &r.Error, &created); err != nil {
		return r, fmt.Errorf("history: scan: %w", err)
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return r, fmt.Errorf("history: bad created_at %q: %w", created, err)
	}
	r.CreatedAt = t
	return r, nil
}

// escapeLike drops LIKE wildcards from user-typed ids.
func escapeLike(s string) string {
	r := strings.NewReplacer("%", "", "_", "")
	return r.Replace(s)
}
