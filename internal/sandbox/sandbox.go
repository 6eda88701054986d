// Package sandbox runs model-generated Go code against a dataset with the
// yaegi interpreter. The code only sees a small allow-list of standard
// packages plus the frame, viz and st bindings.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"path"
	"reflect"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/surface"
	"github.com/KaramelBytes/vizloom/internal/viz"
)

// DefaultTimeout bounds a run when the executor has none configured.
const DefaultTimeout = 10 * time.Second

// Stages reported by ExecError.
const (
	StagePrepare = "prepare"
	StageCompile = "compile"
	StageRun     = "run"
	StageTimeout = "timeout"
)

// ExecError is returned for every failed run.
type ExecError struct {
	Stage string
	Err   error
}

func (e *ExecError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *ExecError) Unwrap() error { return e.Err }

// PanicError carries a value recovered from generated code.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Executor interprets generated code. The zero value is usable.
type Executor struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

// New returns an executor with the given timeout and logger.
func New(timeout time.Duration, logger *zap.Logger) *Executor {
	return &Executor{Timeout: timeout, Logger: logger}
}

func (e *Executor) logger() *zap.Logger {
	if e == nil || e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Exec runs code and never lets a failure escape as a panic. Failures are
// logged, reported on s as "execution failed: ...", and returned.
func (e *Executor) Exec(ctx context.Context, code string, df *dataset.Frame, s surface.Surface) error {
	if s == nil {
		s = surface.Discard
	}
	err := e.Run(ctx, code, df, s)
	if err != nil {
		e.logger().Error("generated code failed", zap.Error(err))
		s.Error("execution failed: " + err.Error())
	}
	return err
}

// Run prepares, compiles and executes code with df bound to the Run
// parameter and st bound to s. The returned error is always an *ExecError.
func (e *Executor) Run(ctx context.Context, code string, df *dataset.Frame, s surface.Surface) error {
	if df == nil {
		return &ExecError{Stage: StagePrepare, Err: errors.New("no dataset loaded")}
	}
	src, err := Prepare(code)
	if err != nil {
		return &ExecError{Stage: StagePrepare, Err: err}
	}

	timeout := DefaultTimeout
	if e != nil && e.Timeout > 0 {
		timeout = e.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run, err := compile(ctx, src, s)
	if err != nil {
		if ctx.Err() != nil {
			return &ExecError{Stage: StageTimeout, Err: ctx.Err()}
		}
		return &ExecError{Stage: StageCompile, Err: err}
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r}
			}
		}()
		run(df)
		done <- nil
	}()

	select {
	case err := <-done:
		e.logger().Debug("generated code finished", zap.Duration("elapsed", time.Since(start)), zap.Bool("ok", err == nil))
		if err != nil {
			return &ExecError{Stage: StageRun, Err: err}
		}
		return nil
	case <-ctx.Done():
		// the interpreted goroutine cannot be stopped; it is abandoned
		return &ExecError{Stage: StageTimeout, Err: fmt.Errorf("exceeded %s: %w", timeout, ctx.Err())}
	}
}

func compile(ctx context.Context, src string, s surface.Surface) (func(*dataset.Frame), error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlibSubset()); err != nil {
		return nil, fmt.Errorf("load stdlib: %w", err)
	}
	if err := i.Use(bindings(s)); err != nil {
		return nil, fmt.Errorf("load bindings: %w", err)
	}
	if _, err := i.EvalWithContext(ctx, src); err != nil {
		return nil, err
	}
	v, err := i.EvalWithContext(ctx, "main.Run")
	if err != nil {
		return nil, fmt.Errorf("func Run not found: %w", err)
	}
	run, ok := v.Interface().(func(*dataset.Frame))
	if !ok {
		return nil, fmt.Errorf("func Run has signature %s, want func(*frame.Frame)", v.Type())
	}
	return run, nil
}

// withheld lists symbols left out of the allow-listed packages: they run
// code on a goroutine the run cannot recover.
var withheld = map[string]bool{
	"time.AfterFunc": true,
}

// stdlibSubset picks the allow-listed packages out of yaegi's stdlib table.
func stdlibSubset() interp.Exports {
	out := interp.Exports{}
	for _, p := range stdlibNames() {
		key := p + "/" + path.Base(p)
		syms, ok := stdlib.Symbols[key]
		if !ok {
			continue
		}
		kept := make(map[string]reflect.Value, len(syms))
		for name, v := range syms {
			if !withheld[p+"."+name] {
				kept[name] = v
			}
		}
		out[key] = kept
	}
	return out
}

// bindings exports the frame, viz and st packages. st writes to s.
func bindings(s surface.Surface) interp.Exports {
	return interp.Exports{
		framePkg + "/frame": {
			"Frame":      reflect.ValueOf((*dataset.Frame)(nil)),
			"Column":     reflect.ValueOf((*dataset.Column)(nil)),
			"CorrMatrix": reflect.ValueOf((*dataset.CorrMatrix)(nil)),
			"Quantiles":  reflect.ValueOf(dataset.Quantiles),
		},
		vizPkg + "/viz": {
			"Figure":        reflect.ValueOf((*viz.Figure)(nil)),
			"Histogram":     reflect.ValueOf(viz.Histogram),
			"Bar":           reflect.ValueOf(viz.Bar),
			"Line":          reflect.ValueOf(viz.Line),
			"Scatter":       reflect.ValueOf(viz.Scatter),
			"Box":           reflect.ValueOf(viz.Box),
			"Pie":           reflect.ValueOf(viz.Pie),
			"Heatmap":       reflect.ValueOf(viz.Heatmap),
			"MustHistogram": reflect.ValueOf(viz.MustHistogram),
			"MustBar":       reflect.ValueOf(viz.MustBar),
			"MustLine":      reflect.ValueOf(viz.MustLine),
			"MustScatter":   reflect.ValueOf(viz.MustScatter),
			"MustBox":       reflect.ValueOf(viz.MustBox),
			"MustPie":       reflect.ValueOf(viz.MustPie),
			"MustHeatmap":   reflect.ValueOf(viz.MustHeatmap),
		},
		stPkg + "/st": {
			"Plot":     reflect.ValueOf(func(fig *viz.Figure) { s.Figure(fig) }),
			"Write":    reflect.ValueOf(func(a ...any) { s.Markdown(fmt.Sprint(a...)) }),
			"Markdown": reflect.ValueOf(func(text string) { s.Markdown(text) }),
			"Code":     reflect.ValueOf(func(lang, src string) { s.Code(lang, src) }),
			"Error":    reflect.ValueOf(func(msg string) { s.Error(msg) }),
		},
	}
}
