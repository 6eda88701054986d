// Package assistant runs the generate prompt, call model, show or execute
// loop. Every operation is synchronous.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom/internal/ai"
	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/history"
	"github.com/KaramelBytes/vizloom/internal/prompt"
	"github.com/KaramelBytes/vizloom/internal/sandbox"
	"github.com/KaramelBytes/vizloom/internal/surface"
	"github.com/KaramelBytes/vizloom/internal/utils"
)

// Default completion budgets.
const (
	DefaultMaxTokens    = 2000
	DefaultVizMaxTokens = 1500
)

// ErrNoResponse is returned by Visualize when the model call failed. The
// failure has already been logged and surfaced.
var ErrNoResponse = errors.New("no response from model")

var errNoDataset = errors.New("no dataset loaded")

// Journal records runs. *history.Store implements it.
type Journal interface {
	Record(ctx context.Context, r history.Run) (history.Run, error)
}

// Assistant wires a model runtime to a surface. Only Runtime and Model are
// required; everything else has a usable default.
type Assistant struct {
	Runtime  ai.Runtime
	Provider string
	Model    string

	Prompts  *prompt.Builder
	Surface  surface.Surface
	Executor *sandbox.Executor
	Journal  Journal
	Logger   *zap.Logger

	MaxTokens    int
	VizMaxTokens int
	Temperature  float64

	// OnDelta receives streamed chunks when set and the runtime can stream.
	OnDelta func(string)
	// ShowCode makes Visualize display the extracted code before running it.
	ShowCode bool
}

func (a *Assistant) log() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func (a *Assistant) surface() surface.Surface {
	if a.Surface == nil {
		return surface.Discard
	}
	return a.Surface
}

func (a *Assistant) prompts() *prompt.Builder {
	if a.Prompts == nil {
		return &prompt.Builder{}
	}
	return a.Prompts
}

func (a *Assistant) budget(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

// Send forwards text to the model and returns its text. It never returns
// an error: failures are logged, reported as "request failed: ..." on the
// surface, and yield "".
func (a *Assistant) Send(ctx context.Context, text string, maxTokens int) string {
	return a.send(ctx, history.KindSend, "", text, maxTokens)
}

func (a *Assistant) send(ctx context.Context, kind, datasetName, text string, maxTokens int) string {
	maxTokens = a.budget(maxTokens, DefaultMaxTokens)
	log := a.log().With(zap.String("kind", kind), zap.String("model", a.Model))
	a.checkContext(log, text, maxTokens)

	start := time.Now()
	resp, err := a.generate(ctx, text, maxTokens)
	run := history.Run{Kind: kind, Dataset: datasetName, Provider: a.Provider, Model: a.Model, Prompt: text}
	if err != nil {
		log.Error("model request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		a.surface().Error("request failed: " + err.Error())
		run.Error = err.Error()
		a.record(ctx, run)
		return ""
	}

	fields := []zap.Field{
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	}
	if resp.RequestID != "" {
		fields = append(fields, zap.String("request_id", resp.RequestID))
	}
	if cost, ok := ai.EstimateCostUSD(a.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens); ok {
		fields = append(fields, zap.Float64("cost_usd", cost))
	}
	log.Info("model request done", fields...)

	out, _ := resp.Text()
	run.Response = out
	a.record(ctx, run)
	return out
}

// generate calls the runtime, streaming when requested. An empty reply is an
// error so callers never mistake it for a successful answer.
func (a *Assistant) generate(ctx context.Context, text string, maxTokens int) (*ai.GenerateResponse, error) {
	if a.Runtime == nil {
		return nil, errors.New("no model runtime configured")
	}
	req := ai.UserPrompt(a.Model, text, maxTokens, a.Temperature)

	if sr, ok := a.Runtime.(ai.StreamRuntime); ok && a.OnDelta != nil {
		var b strings.Builder
		err := sr.GenerateStream(ctx, req, func(delta string) {
			b.WriteString(delta)
			a.OnDelta(delta)
		})
		if err != nil {
			return nil, err
		}
		if b.Len() == 0 {
			return nil, errors.New("empty response")
		}
		return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: b.String()}}}}, nil
	}

	resp, err := a.Runtime.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, ok := resp.Text(); !ok {
		return nil, errors.New("empty response: no choices returned")
	}
	return resp, nil
}

// checkContext warns when the prompt plus budget likely exceeds the model's
// context window. The prompt is sent unchanged.
func (a *Assistant) checkContext(log *zap.Logger, text string, maxTokens int) {
	info, ok := ai.LookupModel(a.Model)
	if !ok {
		return
	}
	if fits, n := utils.FitsContext(text, maxTokens, info.ContextTokens); !fits {
		log.Warn("prompt may exceed model context",
			zap.Int("prompt_tokens_est", n),
			zap.Int("max_tokens", maxTokens),
			zap.Int("context_tokens", info.ContextTokens))
	}
}

func (a *Assistant) record(ctx context.Context, r history.Run) {
	if a.Journal == nil {
		return
	}
	if _, err := a.Journal.Record(ctx, r); err != nil {
		a.log().Warn("history record failed", zap.Error(err))
	}
}

// fail reports a failure that happened before any model call.
func (a *Assistant) fail(prefix string, err error) {
	a.log().Error(prefix, zap.Error(err))
	a.surface().Error(prefix + ": " + err.Error())
}

// GenerateRecommendations asks for a bullet-point report of trends,
// suggested actions and unexpected relationships.
func (a *Assistant) GenerateRecommendations(ctx context.Context, df *dataset.Frame) string {
	if df == nil {
		a.fail("request failed", errNoDataset)
		return ""
	}
	p, err := a.prompts().Recommendations(df)
	if err != nil {
		a.fail("request failed", err)
		return ""
	}
	return a.send(ctx, history.KindRecommendations, df.Name, p, a.budget(a.MaxTokens, DefaultMaxTokens))
}

// DetectAnomalies asks the model to find and explain anomalies.
func (a *Assistant) DetectAnomalies(ctx context.Context, df *dataset.Frame) string {
	if df == nil {
		a.fail("request failed", errNoDataset)
		return ""
	}
	p, err := a.prompts().Anomalies(df)
	if err != nil {
		a.fail("request failed", err)
		return ""
	}
	return a.send(ctx, history.KindAnomalies, df.Name, p, a.budget(a.MaxTokens, DefaultMaxTokens))
}

// VisualizationCode asks for Go code answering request. The raw model text
// is returned; use ExtractCode to get the code.
func (a *Assistant) VisualizationCode(ctx context.Context, df *dataset.Frame, request string) string {
	if df == nil {
		a.fail("request failed", errNoDataset)
		return ""
	}
	p, err := a.prompts().Visualization(df, request)
	if err != nil {
		a.fail("request failed", err)
		return ""
	}
	return a.send(ctx, history.KindVisualization, df.Name, p, a.budget(a.VizMaxTokens, DefaultVizMaxTokens))
}

// ExecGeneratedCode runs code against df, drawing on the surface. Failures
// are logged and reported as "execution failed: ..."; the error is returned
// for callers that want an exit status.
func (a *Assistant) ExecGeneratedCode(ctx context.Context, code string, df *dataset.Frame) error {
	ex := a.Executor
	if ex == nil {
		ex = sandbox.New(sandbox.DefaultTimeout, a.Logger)
	}
	err := ex.Exec(ctx, code, df, a.surface())
	run := history.Run{Kind: history.KindExec, Prompt: code}
	if df != nil {
		run.Dataset = df.Name
	}
	if err != nil {
		run.Error = err.Error()
	}
	a.record(ctx, run)
	return err
}

// Visualize chains VisualizationCode, ExtractCode and ExecGeneratedCode and
// returns the code that ran.
func (a *Assistant) Visualize(ctx context.Context, df *dataset.Frame, request string) (string, error) {
	raw := a.VisualizationCode(ctx, df, request)
	if raw == "" {
		return "", ErrNoResponse
	}
	code := ExtractCode(raw)
	if a.ShowCode {
		a.surface().Code("go", code)
	}
	return code, a.ExecGeneratedCode(ctx, code, df)
}
