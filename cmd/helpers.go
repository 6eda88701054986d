package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom/internal/ai"
	"github.com/KaramelBytes/vizloom/internal/assistant"
	cfgpkg "github.com/KaramelBytes/vizloom/internal/config"
	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/history"
	"github.com/KaramelBytes/vizloom/internal/prompt"
	"github.com/KaramelBytes/vizloom/internal/sandbox"
	"github.com/KaramelBytes/vizloom/internal/surface"
	"github.com/KaramelBytes/vizloom/internal/utils"
)

// newRuntime is swapped in tests.
var newRuntime = ai.InitializeClient

// errDryRun stops a command after the prompt preview.
var errDryRun = errors.New("dry run")

type datasetFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	maxRows    int
	sheetName  string
	sheetIndex int
}

func addDatasetFlags(c *cobra.Command, f *datasetFlags) {
	c.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | '|' (sniffed if omitted)")
	c.Flags().StringVar(&f.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	c.Flags().StringVar(&f.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	c.Flags().IntVar(&f.maxRows, "max-rows", 100000, "maximum rows to load (0 = unlimited)")
	c.Flags().StringVar(&f.sheetName, "sheet-name", "", "XLSX: sheet name to load")
	c.Flags().IntVar(&f.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}

func (f datasetFlags) options() (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	opt.MaxRows = f.maxRows
	opt.SheetName = f.sheetName
	if f.sheetIndex > 0 {
		opt.SheetIndex = f.sheetIndex
	}
	switch f.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case ";":
		opt.Delimiter = ';'
	case "|":
		opt.Delimiter = '|'
	case "\t", "tab":
		opt.Delimiter = '\t'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", f.delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(f.decimal)) {
	case "":
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", f.decimal)
	}
	switch strings.ToLower(f.thousands) {
	case "":
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", f.thousands)
	}
	return opt, nil
}

func (f datasetFlags) load(path string) (*dataset.Frame, error) {
	opt, err := f.options()
	if err != nil {
		return nil, err
	}
	df, err := dataset.Load(path, opt)
	if err != nil {
		return nil, err
	}
	logger.Debug("dataset loaded", zap.String("path", path), zap.Int("rows", df.Len()), zap.Int("columns", df.NumCols()))
	return df, nil
}

type modelFlags struct {
	provider    string
	model       string
	tier        string
	apiKey      string
	maxTokens   int
	temperature float64
	stream      bool
	dryRun      bool
	budgetLimit float64
	quiet       bool
}

func addModelFlags(c *cobra.Command, f *modelFlags) {
	c.Flags().StringVar(&f.provider, "provider", "", "model provider: anthropic|openrouter|gemini|ollama (default from config)")
	c.Flags().StringVar(&f.model, "model", "", "model name (default from config)")
	c.Flags().StringVar(&f.tier, "tier", "", "pick the provider's recommended model: cheap|balanced|high-context")
	c.Flags().StringVar(&f.apiKey, "api-key", "", "API key (overrides config and environment)")
	c.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "completion token budget (default from config)")
	c.Flags().Float64Var(&f.temperature, "temperature", 0, "sampling temperature (default from config)")
}

// addCallFlags registers the flags of commands that make one model call.
func addCallFlags(c *cobra.Command, f *modelFlags) {
	c.Flags().BoolVar(&f.stream, "stream", false, "stream the answer as it is generated")
	c.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the prompt and cost estimate without calling the model")
	c.Flags().Float64Var(&f.budgetLimit, "budget-limit", 0, "refuse to call the model when the estimated max cost exceeds this many USD")
	c.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "suppress token and cost notes")
}

// resolveProvider picks flag, then config, then anthropic.
func resolveProvider(c *cfgpkg.Global, flag string) string {
	p := strings.ToLower(strings.TrimSpace(flag))
	if p == "" && c != nil {
		p = strings.ToLower(c.DefaultProvider)
	}
	if p == "" {
		p = ai.ProviderAnthropic
	}
	return p
}

// selectModel picks the explicit model, then a tier recommendation, then
// the configured default when it belongs to the chosen provider, then the
// provider's default.
func selectModel(c *cfgpkg.Global, provider string, f modelFlags) (string, error) {
	if f.model != "" {
		return f.model, nil
	}
	if f.tier != "" {
		name, ok := ai.RecommendModel(provider, f.tier)
		if !ok {
			return "", fmt.Errorf("unknown --tier %q for provider %s (use cheap|balanced|high-context)", f.tier, provider)
		}
		return name, nil
	}
	if c != nil && c.DefaultModel != "" && (f.provider == "" || strings.EqualFold(provider, c.DefaultProvider)) {
		return c.DefaultModel, nil
	}
	return ai.DefaultModel(provider), nil
}

func runtimeConfig(c *cfgpkg.Global, apiKey string) ai.RuntimeConfig {
	rc := ai.RuntimeConfig{
		HTTPTimeout: 60 * time.Second,
		RetryMax:    3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		APIKey:      apiKey,
		Host:        "http://127.0.0.1:11434",
	}
	if c == nil {
		return rc
	}
	if c.HTTPTimeoutSec > 0 {
		rc.HTTPTimeout = time.Duration(c.HTTPTimeoutSec) * time.Second
	}
	if c.RetryMaxAttempts > 0 {
		rc.RetryMax = c.RetryMaxAttempts
	}
	if c.RetryBaseDelayMs > 0 {
		rc.BaseDelay = time.Duration(c.RetryBaseDelayMs) * time.Millisecond
	}
	if c.RetryMaxDelayMs > 0 {
		rc.MaxDelay = time.Duration(c.RetryMaxDelayMs) * time.Millisecond
	}
	if c.OllamaHost != "" {
		rc.Host = c.OllamaHost
	}
	return rc
}

func newTerminal(cmd *cobra.Command, c *cfgpkg.Global, outputDir string) *surface.Terminal {
	dir := outputDir
	if dir == "" && c != nil {
		dir = c.OutputDir
	}
	return surface.NewTerminal(cmd.OutOrStdout(), surface.TerminalOptions{Dir: dir, Plain: noColor})
}

// openHistory opens the run journal when enabled. A journal that cannot be
// opened is logged and skipped; the command still runs.
func openHistory(c *cfgpkg.Global) (*history.Store, func()) {
	if c == nil || !c.HistoryEnabled || c.HistoryDB == "" {
		return nil, func() {}
	}
	st, err := history.Open(c.HistoryDB, logger)
	if err != nil {
		logger.Warn("history disabled", zap.String("path", c.HistoryDB), zap.Error(err))
		return nil, func() {}
	}
	return st, func() { _ = st.Close() }
}

// newAssistant wires an assistant without a model runtime: enough to run
// code. withModel adds the runtime.
func newAssistant(c *cfgpkg.Global, s surface.Surface, store *history.Store) (*assistant.Assistant, error) {
	builder, err := prompt.New(c.Language, c.SummaryDetail)
	if err != nil {
		return nil, err
	}
	a := &assistant.Assistant{
		Prompts:      builder,
		Surface:      s,
		Executor:     sandbox.New(time.Duration(c.ExecTimeoutSec)*time.Second, logger),
		Logger:       logger,
		MaxTokens:    c.MaxTokens,
		VizMaxTokens: c.VizMaxTokens,
		Temperature:  c.Temperature,
	}
	if store != nil {
		a.Journal = store
	}
	return a, nil
}

// withModel resolves provider, model and key, then attaches a runtime.
// apiKey may be empty.
func withModel(cmd *cobra.Command, a *assistant.Assistant, c *cfgpkg.Global, f modelFlags, apiKey string) error {
	provider := resolveProvider(c, f.provider)
	model, err := selectModel(c, provider, f)
	if err != nil {
		return err
	}
	// a per-session key wins over the flag, which wins over config
	key := apiKey
	if key == "" {
		key = f.apiKey
	}
	if key == "" {
		key = c.KeyFor(provider)
	}
	rt, err := newRuntime(provider, runtimeConfig(c, key))
	if err != nil {
		return err
	}
	a.Runtime, a.Provider, a.Model = rt, provider, model
	if f.maxTokens > 0 {
		a.MaxTokens, a.VizMaxTokens = f.maxTokens, f.maxTokens
	}
	if cmd.Flags().Changed("temperature") {
		a.Temperature = f.temperature
	}
	return nil
}

// preflight prints the token and cost estimate, enforces --budget-limit and
// handles --dry-run. It returns errDryRun when the caller should stop.
func preflight(w io.Writer, a *assistant.Assistant, f modelFlags, text string, maxTokens int) error {
	tokens := utils.CountTokens(text)
	var estCost float64
	if cost, ok := ai.EstimateCostUSD(a.Model, tokens, maxTokens); ok {
		estCost = cost
	}
	if !f.quiet {
		fmt.Fprintf(w, "Model: %s (%s) · prompt≈%d tokens · max-tokens %d", a.Model, a.Provider, tokens, maxTokens)
		if estCost > 0 {
			fmt.Fprintf(w, " · est. max cost ~$%.4f", estCost)
		}
		fmt.Fprintln(w)
	}
	if err := enforceBudget(estCost, f.budgetLimit); err != nil {
		return err
	}
	if f.dryRun {
		fmt.Fprintln(w, "\n--dry-run: no API call will be made. Prompt preview below --")
		fmt.Fprintln(w, text)
		return errDryRun
	}
	return nil
}

func enforceBudget(estCost, limit float64) error {
	if limit > 0 && estCost > 0 && estCost > limit {
		return fmt.Errorf("estimated cost ~$%.4f exceeds budget limit ~$%.4f", estCost, limit)
	}
	return nil
}

// streamTo sets OnDelta when streaming was asked for and the runtime can
// stream. It reports whether the answer will already be on w.
func streamTo(w io.Writer, a *assistant.Assistant, f modelFlags) bool {
	if !f.stream {
		return false
	}
	if _, ok := a.Runtime.(ai.StreamRuntime); !ok {
		if !f.quiet {
			fmt.Fprintln(w, "⚠ Streaming not supported for this provider; falling back to non-streaming.")
		}
		return false
	}
	a.OnDelta = func(delta string) { fmt.Fprint(w, delta) }
	return true
}

type outputOptions struct {
	JSON         bool
	Kind         string
	Dataset      string
	Model        string
	Provider     string
	OutputPath   string
	AlreadyShown bool
}

// writeResult shows content on the terminal (unless streaming already did)
// and optionally saves it to --output as markdown or JSON.
func writeResult(w io.Writer, term *surface.Terminal, content string, opts outputOptions) error {
	record := map[string]any{
		"kind":     opts.Kind,
		"dataset":  opts.Dataset,
		"provider": opts.Provider,
		"model":    opts.Model,
		"content":  content,
	}
	switch {
	case opts.JSON:
		b, err := utils.PrettyJSON(record)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	case opts.AlreadyShown:
		fmt.Fprintln(w)
	default:
		term.Markdown(content)
	}

	if opts.OutputPath == "" {
		return nil
	}
	data := []byte(content)
	if strings.HasSuffix(strings.ToLower(opts.OutputPath), ".json") {
		b, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		data = b
	}
	if err := utils.SafeWriteFile(opts.OutputPath, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if !opts.JSON {
		fmt.Fprintf(w, "💾 Saved output to %s\n", opts.OutputPath)
	}
	return nil
}
