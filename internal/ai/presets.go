package ai

// providerAliases maps CLI provider names onto the catalog's provider tag.
var providerAliases = map[string]string{
	ProviderOpenRouter: ProviderOpenRouter,
	ProviderOpenAI:     ProviderOpenRouter,
	ProviderMeta:       ProviderOpenRouter,
	ProviderLlama:      ProviderOpenRouter,
	ProviderGoogle:     ProviderGemini,
	ProviderGemini:     ProviderGemini,
	ProviderAnthropic:  ProviderAnthropic,
	ProviderOllama:     ProviderOllama,
	ProviderLocal:      ProviderOllama,
}

// presetPrefixes narrows the OpenRouter catalog for vendor-named presets.
var presetPrefixes = map[string]string{
	ProviderOpenAI: "openai/",
	ProviderMeta:   "meta-llama/",
	ProviderLlama:  "meta-llama/",
}

// PresetCatalog returns the built-in entries for a known provider. The
// result can be merged into or replace the in-memory catalog.
func PresetCatalog(provider string) (map[string]ModelInfo, bool) {
	tag, ok := providerAliases[provider]
	if !ok {
		return nil, false
	}
	prefix := presetPrefixes[provider]
	out := map[string]ModelInfo{}
	for _, mi := range builtinModels {
		if mi.Provider != tag {
			continue
		}
		if prefix != "" && (len(mi.Name) < len(prefix) || mi.Name[:len(prefix)] != prefix) {
			continue
		}
		out[mi.Name] = mi
	}
	return out, len(out) > 0
}

// tiers lists recommended models per provider for cheap, balanced and
// high-context use.
var tiers = map[string]map[string]string{
	ProviderOpenRouter: {"cheap": "deepseek/deepseek-r1:free", "balanced": "openai/gpt-4o", "high-context": "anthropic/claude-3.5-sonnet"},
	ProviderOpenAI:     {"cheap": "openai/gpt-4o-mini", "balanced": "openai/gpt-4o", "high-context": "openai/gpt-4o"},
	ProviderAnthropic:  {"cheap": "claude-3-5-haiku-20241022", "balanced": "claude-3-5-sonnet-20241022", "high-context": "claude-3-5-sonnet-20241022"},
	ProviderGemini:     {"cheap": "gemini-2.0-flash", "balanced": "gemini-1.5-pro", "high-context": "gemini-1.5-pro"},
	ProviderGoogle:     {"cheap": "google/gemini-1.5-flash", "balanced": "google/gemini-1.5-pro", "high-context": "google/gemini-1.5-pro"},
	ProviderLlama:      {"cheap": "meta-llama/llama-3.1-8b-instruct", "balanced": "meta-llama/llama-3.1-70b-instruct", "high-context": "meta-llama/llama-3.1-70b-instruct"},
	ProviderOllama:     {"cheap": "llama3.1:8b-instruct", "balanced": "qwen2.5-coder:7b", "high-context": "phi3:mini-128k-instruct"},
}

func init() {
	tiers[ProviderMeta] = tiers[ProviderLlama]
	tiers[ProviderLocal] = tiers[ProviderOllama]
}

// RecommendModel returns a recommended model name for a given tier and provider.
// If provider is empty, defaults to "openrouter". Tiers: cheap|balanced|high-context.
func RecommendModel(provider, tier string) (string, bool) {
	if provider == "" {
		provider = ProviderOpenRouter
	}
	name, ok := tiers[provider][tier]
	return name, ok
}

// DefaultModel is the model used when neither flags nor config name one.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic, "":
		return "claude-3-5-sonnet-20241022"
	case ProviderGemini, ProviderGoogle:
		return "gemini-2.0-flash"
	case ProviderOllama, ProviderLocal:
		return "llama3.1:8b-instruct"
	}
	return "anthropic/claude-3.5-sonnet"
}
