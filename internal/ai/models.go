package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

// ModelInfo carries the context size and pricing used for prompt-size and
// cost hints. Prices are USD per 1K tokens and only indicative.
type ModelInfo struct {
	Name          string
	Provider      string `json:",omitempty"`
	ContextTokens int
	InputPerK     float64
	OutputPerK    float64
}

// builtinModels seeds the catalog. Direct-provider names (Anthropic, Gemini)
// sit next to their OpenRouter aliases.
var builtinModels = []ModelInfo{
	{"claude-3-5-sonnet-20241022", ProviderAnthropic, 200000, 0.003, 0.015},
	{"claude-3-5-haiku-20241022", ProviderAnthropic, 200000, 0.0008, 0.004},
	{"claude-3-haiku-20240307", ProviderAnthropic, 200000, 0.00025, 0.00125},
	{"gemini-1.5-flash", ProviderGemini, 1000000, 0.0002, 0.0008},
	{"gemini-1.5-pro", ProviderGemini, 2000000, 0.00125, 0.005},
	{"gemini-2.0-flash", ProviderGemini, 1000000, 0.0001, 0.0004},
	{"anthropic/claude-3.5-sonnet", ProviderOpenRouter, 200000, 0.003, 0.015},
	{"anthropic/claude-3-haiku", ProviderOpenRouter, 200000, 0.00025, 0.00125},
	{"openai/gpt-4o-mini", ProviderOpenRouter, 128000, 0.0006, 0.0024},
	{"openai/gpt-4o", ProviderOpenRouter, 128000, 0.005, 0.015},
	{"openai/gpt-4.1-mini", ProviderOpenRouter, 128000, 0.0005, 0.0015},
	{"google/gemini-1.5-flash", ProviderOpenRouter, 1000000, 0.0002, 0.0008},
	{"google/gemini-1.5-pro", ProviderOpenRouter, 1000000, 0.00125, 0.005},
	{"deepseek/deepseek-r1:free", ProviderOpenRouter, 128000, 0, 0},
	{"meta-llama/llama-3.1-8b-instruct", ProviderOpenRouter, 131072, 0, 0},
	{"meta-llama/llama-3.1-70b-instruct", ProviderOpenRouter, 131072, 0, 0},
	{"llama3:latest", ProviderOllama, 8192, 0, 0},
	{"llama3.1:8b-instruct", ProviderOllama, 8192, 0, 0},
	{"mistral-nemo:latest", ProviderOllama, 8192, 0, 0},
	{"qwen2.5-coder:7b", ProviderOllama, 32768, 0, 0},
	{"phi3:mini-128k-instruct", ProviderOllama, 128000, 0, 0},
}

var (
	catalogMu sync.RWMutex
	models    = builtinCatalog()
)

func builtinCatalog() map[string]ModelInfo {
	m := make(map[string]ModelInfo, len(builtinModels))
	for _, mi := range builtinModels {
		m[mi.Name] = mi
	}
	return m
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	return float64(promptTokens)/1000*mi.InputPerK + float64(completionTokens)/1000*mi.OutputPerK, true
}

// LoadCatalogFromJSON loads a map[string]ModelInfo from a file, e.g.
// {"openai/gpt-4o-mini": {"Name":"openai/gpt-4o-mini","ContextTokens":128000,"InputPerK":0.0006,"OutputPerK":0.0024}}
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeCatalog(f)
}

func decodeCatalog(r io.Reader) (map[string]ModelInfo, error) {
	var m map[string]ModelInfo
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for k, v := range m {
		if v.Name == "" {
			v.Name = k
			m[k] = v
		}
	}
	return m, nil
}

// FetchCatalog downloads a JSON catalog in the LoadCatalogFromJSON format.
func FetchCatalog(ctx context.Context, url string) (map[string]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch: unexpected status %s: %s", resp.Status, string(b))
	}
	return decodeCatalog(resp.Body)
}

// ApplyCatalog merges m into the catalog, or replaces the catalog when merge
// is false. A nil map is ignored.
func ApplyCatalog(m map[string]ModelInfo, merge bool) {
	if m == nil {
		return
	}
	catalogMu.Lock()
	defer catalogMu.Unlock()
	if !merge {
		models = make(map[string]ModelInfo, len(m))
	}
	for k, v := range m {
		models[k] = v
	}
}

// ResetCatalog restores the built-in catalog.
func ResetCatalog() {
	catalogMu.Lock()
	models = builtinCatalog()
	catalogMu.Unlock()
}

// Catalog returns a copy of the current model catalog.
func Catalog() map[string]ModelInfo {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	out := make(map[string]ModelInfo, len(models))
	for k, v := range models {
		out[k] = v
	}
	return out
}

// CatalogNames returns catalog keys in sorted order.
func CatalogNames() []string {
	cat := Catalog()
	names := make([]string, 0, len(cat))
	for k := range cat {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
