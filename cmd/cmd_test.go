package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/vizloom/internal/ai"
	"github.com/KaramelBytes/vizloom/internal/assistant"
	cfgpkg "github.com/KaramelBytes/vizloom/internal/config"
	"github.com/KaramelBytes/vizloom/internal/history"
	"github.com/KaramelBytes/vizloom/internal/surface"
)

const salesCSV = "region,units,price\nnorth,10,2.5\nsouth,4,3.0\nnorth,6,2.75\neast,8,4.0\n"

type stubRuntime struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []ai.GenerateRequest
}

func (s *stubRuntime) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: s.reply}}}}, nil
}

func (s *stubRuntime) calls() []ai.GenerateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ai.GenerateRequest(nil), s.reqs...)
}

type stubStreamRuntime struct {
	stubRuntime
	chunks []string
}

func (s *stubStreamRuntime) GenerateStream(_ context.Context, req ai.GenerateRequest, onDelta func(string)) error {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	for _, c := range s.chunks {
		onDelta(c)
	}
	return nil
}

type harness struct {
	home     string
	data     string
	provider string
	rc       ai.RuntimeConfig
}

// setup isolates HOME, writes the sales fixture and routes every runtime
// through rt.
func setup(t *testing.T, rt ai.Runtime) *harness {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENROUTER_API_KEY", "GEMINI_API_KEY"} {
		t.Setenv(k, "")
	}
	h := &harness{home: home, data: filepath.Join(home, "sales.csv")}
	require.NoError(t, os.WriteFile(h.data, []byte(salesCSV), 0o644))

	prev := newRuntime
	newRuntime = func(provider string, rc ai.RuntimeConfig) (ai.Runtime, error) {
		h.provider, h.rc = provider, rc
		return rt, nil
	}
	t.Cleanup(func() {
		newRuntime = prev
		cfg, cfgErr = nil, nil
	})
	return h
}

// resetFlags clears values and Changed state left by earlier invocations.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func runCmdIn(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(stdin)
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func runCmd(t *testing.T, args ...string) (string, error) {
	return runCmdIn(t, strings.NewReader(""), args...)
}

func TestDescribePrintsTypesAndStats(t *testing.T) {
	h := setup(t, &stubRuntime{})
	out, err := runCmd(t, "describe", h.data)
	require.NoError(t, err)
	assert.Contains(t, out, "(4 rows × 3 columns)")
	assert.Contains(t, out, "Columns and types:")
	assert.Contains(t, out, "Descriptive statistics:")
	for _, col := range []string{"region", "units", "price"} {
		assert.Contains(t, out, col)
	}

	out, err = runCmd(t, "describe", h.data, "--extended")
	require.NoError(t, err)
	assert.Contains(t, out, "Descriptive statistics:")
}

func TestDescribeShowPrompt(t *testing.T) {
	h := setup(t, &stubRuntime{})
	out, err := runCmd(t, "describe", h.data, "--show-prompt", "recommendations")
	require.NoError(t, err)
	assert.Contains(t, out, "region, units, price")

	out, err = runCmd(t, "describe", h.data, "--show-prompt", "viz", "--request", "units by region")
	require.NoError(t, err)
	assert.Contains(t, out, "units by region")

	_, err = runCmd(t, "describe", h.data, "--show-prompt", "viz")
	assert.ErrorContains(t, err, "--request")
	_, err = runCmd(t, "describe", h.data, "--show-prompt", "poem")
	assert.ErrorContains(t, err, "unknown prompt kind")
}

func TestRecommendCallsModelAndRecordsHistory(t *testing.T) {
	rt := &stubRuntime{reply: "- units rise in the north"}
	h := setup(t, rt)

	out, err := runCmd(t, "recommend", h.data, "--api-key", "sk-flag")
	require.NoError(t, err)
	assert.Contains(t, out, "units rise in the north")
	assert.Contains(t, out, "claude-3-5-sonnet-20241022")

	calls := rt.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 2000, calls[0].MaxTokens)
	assert.Contains(t, calls[0].Messages[0].Content, "region, units, price")
	assert.Equal(t, "anthropic", h.provider)
	assert.Equal(t, "sk-flag", h.rc.APIKey)

	out, err = runCmd(t, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "recommendations")
	assert.Contains(t, out, "sales.csv")

	out, err = runCmd(t, "history", "list", "--json")
	require.NoError(t, err)
	var runs []history.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusOK, runs[0].Status)

	out, err = runCmd(t, "history", "show", runs[0].ID[:8])
	require.NoError(t, err)
	assert.Contains(t, out, "--- prompt ---")
	assert.Contains(t, out, "units rise in the north")
}

func TestRecommendOutputFileAndJSON(t *testing.T) {
	rt := &stubRuntime{reply: "- watch east prices"}
	h := setup(t, rt)
	path := filepath.Join(h.home, "out.json")

	out, err := runCmd(t, "recommend", h.data, "-q", "--json", "--output", path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "recommendations", rec["kind"])
	assert.Equal(t, "- watch east prices", rec["content"])

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"content": "- watch east prices"`)
}

func TestRecommendOutputCreatesParentDir(t *testing.T) {
	rt := &stubRuntime{reply: "- watch east prices"}
	h := setup(t, rt)
	path := filepath.Join(h.home, "reports", "2024", "recs.md")

	_, err := runCmd(t, "recommend", h.data, "-q", "--output", path)
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "- watch east prices")
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestDryRunSkipsModel(t *testing.T) {
	rt := &stubRuntime{reply: "unused"}
	h := setup(t, rt)
	out, err := runCmd(t, "anomalies", h.data, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "--dry-run")
	assert.Contains(t, out, "region, units, price")
	assert.Empty(t, rt.calls())
}

func TestBudgetLimitBlocksCall(t *testing.T) {
	rt := &stubRuntime{reply: "unused"}
	h := setup(t, rt)
	_, err := runCmd(t, "recommend", h.data, "--budget-limit", "0.0001")
	assert.ErrorContains(t, err, "exceeds budget limit")
	assert.Empty(t, rt.calls())
}

func TestAnomaliesFailureIsReported(t *testing.T) {
	rt := &stubRuntime{err: errors.New("upstream down")}
	h := setup(t, rt)
	out, err := runCmd(t, "anomalies", h.data, "-q")
	assert.ErrorIs(t, err, assistant.ErrNoResponse)
	assert.Contains(t, out, "request failed: upstream down")

	out, err = runCmd(t, "history", "list", "--json")
	require.NoError(t, err)
	var runs []history.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusFailed, runs[0].Status)
	assert.Equal(t, history.KindAnomalies, runs[0].Kind)
}

func TestStreamingPrintsChunks(t *testing.T) {
	rt := &stubStreamRuntime{chunks: []string{"- first ", "point"}}
	h := setup(t, rt)
	out, err := runCmd(t, "recommend", h.data, "--stream", "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "- first point")
}

func TestVizRunsGeneratedCode(t *testing.T) {
	rt := &stubRuntime{reply: "Here you go:\n```go\nst.Plot(viz.MustBar(df, \"region\", \"units\"))\n```\n"}
	h := setup(t, rt)
	dir := filepath.Join(h.home, "charts")

	out, err := runCmd(t, "viz", h.data, "--prompt", "units per region", "--output-dir", dir, "--show-code", "--max-tokens", "700")
	require.NoError(t, err)
	assert.Contains(t, out, "MustBar")
	assert.Contains(t, out, "saved to")
	assert.Equal(t, 700, rt.calls()[0].MaxTokens)

	files, err := filepath.Glob(filepath.Join(dir, "*.html"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	b, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "echarts.init")
}

func TestVizNoExecSavesCode(t *testing.T) {
	rt := &stubRuntime{reply: "```go\nst.Plot(viz.MustHeatmap(df))\n```"}
	h := setup(t, rt)
	dir := filepath.Join(h.home, "charts")
	codePath := filepath.Join(h.home, "chart.go")

	_, err := runCmd(t, "viz", h.data, "-p", "correlations", "--no-exec", "--save-code", codePath, "--output-dir", dir)
	require.NoError(t, err)
	b, err := os.ReadFile(codePath)
	require.NoError(t, err)
	assert.Equal(t, "st.Plot(viz.MustHeatmap(df))\n", string(b))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestVizBadCodeFails(t *testing.T) {
	rt := &stubRuntime{reply: "```go\nthis is not go\n```"}
	h := setup(t, rt)
	out, err := runCmd(t, "viz", h.data, "--prompt", "anything", "--output-dir", t.TempDir())
	assert.ErrorContains(t, err, "visualization failed")
	assert.Contains(t, out, "execution failed: compile:")
}

func TestVizRequiresPrompt(t *testing.T) {
	h := setup(t, &stubRuntime{})
	_, err := runCmd(t, "viz", h.data)
	assert.ErrorContains(t, err, "--prompt is required")
}

func TestExecFromStdin(t *testing.T) {
	rt := &stubRuntime{}
	h := setup(t, rt)
	out, err := runCmdIn(t, strings.NewReader(`st.Write("rows:", df.Len())`), "exec", h.data, "--code", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "rows:4")
	assert.Empty(t, rt.calls())
}

func TestExecForbiddenImport(t *testing.T) {
	h := setup(t, &stubRuntime{})
	codePath := filepath.Join(h.home, "bad.go")
	require.NoError(t, os.WriteFile(codePath, []byte("import \"os\"\n\nos.Exit(3)\n"), 0o644))
	out, err := runCmd(t, "exec", h.data, "--code", codePath)
	assert.ErrorContains(t, err, "forbidden imports: os")
	assert.Contains(t, out, "execution failed")
}

func TestConfigSetAndShow(t *testing.T) {
	setup(t, &stubRuntime{})
	_, err := runCmd(t, "config", "set", "max_tokens", "900")
	require.NoError(t, err)
	_, err = runCmd(t, "config", "set", "api_key", "sk-abcdef123")
	require.NoError(t, err)

	out, err := runCmd(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "max_tokens: 900")
	assert.Contains(t, out, "api_key: sk-****123")
	assert.NotContains(t, out, "sk-abcdef123")

	_, err = runCmd(t, "config", "set", "language", "de")
	assert.Error(t, err)
	_, err = runCmd(t, "config", "set", "default_provider", "nowhere")
	assert.ErrorContains(t, err, "invalid default_provider")
	_, err = runCmd(t, "config", "set", "bogus", "1")
	assert.ErrorContains(t, err, "unknown key")
}

func TestModelsShowAndSync(t *testing.T) {
	h := setup(t, &stubRuntime{})
	t.Cleanup(ai.ResetCatalog)

	out, err := runCmd(t, "models", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "claude-3-5-sonnet-20241022")

	path := filepath.Join(h.home, "models.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"acme/tiny":{"ContextTokens":4096,"InputPerK":0.1,"OutputPerK":0.2}}`), 0o644))
	_, err = runCmd(t, "models", "sync", "--file", path, "--merge")
	require.NoError(t, err)
	_, ok := ai.LookupModel("acme/tiny")
	assert.True(t, ok)
	_, ok = ai.LookupModel("claude-3-5-sonnet-20241022")
	assert.True(t, ok)

	_, err = runCmd(t, "models", "fetch", "--provider", "ollama")
	require.NoError(t, err)
	_, ok = ai.LookupModel("acme/tiny")
	assert.False(t, ok)
}

func TestDatasetFlagOptions(t *testing.T) {
	opt, err := datasetFlags{delimiter: "tab", decimal: "comma", thousands: "space", maxRows: 5, sheetIndex: 2}.options()
	require.NoError(t, err)
	assert.Equal(t, '\t', opt.Delimiter)
	assert.Equal(t, ',', opt.DecimalSeparator)
	assert.Equal(t, ' ', opt.ThousandsSeparator)
	assert.Equal(t, 5, opt.MaxRows)
	assert.Equal(t, 2, opt.SheetIndex)

	_, err = datasetFlags{delimiter: "#"}.options()
	assert.Error(t, err)
	_, err = datasetFlags{decimal: "x"}.options()
	assert.Error(t, err)
	_, err = datasetFlags{thousands: "_"}.options()
	assert.Error(t, err)
}

func TestSelectModelPrecedence(t *testing.T) {
	c := &cfgpkg.Global{DefaultProvider: "anthropic", DefaultModel: "cfg-model"}

	got, err := selectModel(c, "anthropic", modelFlags{model: "cli-model"})
	require.NoError(t, err)
	assert.Equal(t, "cli-model", got)

	got, err = selectModel(c, "ollama", modelFlags{provider: "ollama", tier: "cheap"})
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:8b-instruct", got)

	got, err = selectModel(c, "anthropic", modelFlags{})
	require.NoError(t, err)
	assert.Equal(t, "cfg-model", got)

	// the configured model belongs to another provider
	got, err = selectModel(c, "gemini", modelFlags{provider: "gemini"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", got)

	_, err = selectModel(c, "anthropic", modelFlags{tier: "huge"})
	assert.Error(t, err)
}

func TestEnforceBudget(t *testing.T) {
	assert.NoError(t, enforceBudget(0.0, 1.0))
	assert.NoError(t, enforceBudget(2.0, 0))
	assert.Error(t, enforceBudget(2.0, 1.0))
}

func TestDashboardFactoryPrefersSessionKey(t *testing.T) {
	h := setup(t, &stubRuntime{reply: "ok"})
	c, err := cfgpkg.Load("")
	require.NoError(t, err)

	factory := dashboardFactory(serveCmd, c, modelFlags{apiKey: "sk-flag"}, nil)
	a, err := factory(surface.Discard, "sk-form")
	require.NoError(t, err)
	assert.Equal(t, "sk-form", h.rc.APIKey)
	assert.Equal(t, "claude-3-5-sonnet-20241022", a.Model)

	_, err = factory(surface.Discard, "")
	require.NoError(t, err)
	assert.Equal(t, "sk-flag", h.rc.APIKey)
}

func TestDescribeExpandsGlobs(t *testing.T) {
	h := setup(t, &stubRuntime{})
	dir := filepath.Join(h.home, "exports")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"a.csv", "b.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(salesCSV), 0o644))
	}

	out, err := runCmd(t, "describe", filepath.Join(dir, "*.csv"), filepath.Join(dir, "a.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "[1/2]")
	assert.Contains(t, out, "[2/2]")
	assert.Contains(t, out, "Dataset: b.csv")

	_, err = runCmd(t, "describe", filepath.Join(dir, "*.xlsx"))
	assert.ErrorContains(t, err, "no input files matched")
}
