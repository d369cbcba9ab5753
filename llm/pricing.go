package llm

// ModelInfo describes a known model in the catalog, including the per-token
// pricing used for cost accounting.
type ModelInfo struct {
	ID                   string   `json:"id"`
	Provider             string   `json:"provider"`
	DisplayName          string   `json:"display_name"`
	ContextWindow        int      `json:"context_window"`
	MaxOutput            int      `json:"max_output,omitempty"`
	SupportsTools        bool     `json:"supports_tools"`
	InputCostPerMillion  float64  `json:"input_cost_per_million"`
	OutputCostPerMillion float64  `json:"output_cost_per_million"`
	Aliases              []string `json:"aliases,omitempty"`
}

// Models is the built-in model catalog (February 2026).
var Models = []ModelInfo{
	// Anthropic
	{
		ID: "claude-opus-4-6", Provider: "anthropic", DisplayName: "Claude Opus 4.6",
		ContextWindow: 200000, MaxOutput: 32768, SupportsTools: true,
		InputCostPerMillion: 15.0, OutputCostPerMillion: 75.0,
		Aliases: []string{"opus", "claude-opus"},
	},
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: 16384, SupportsTools: true,
		InputCostPerMillion: 3.0, OutputCostPerMillion: 15.0,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},

	// OpenAI
	{
		ID: "gpt-5.2", Provider: "openai", DisplayName: "GPT-5.2",
		ContextWindow: 1047576, MaxOutput: 32768, SupportsTools: true,
		InputCostPerMillion: 2.50, OutputCostPerMillion: 10.0,
		Aliases: []string{"gpt5"},
	},
	{
		ID: "gpt-5.2-mini", Provider: "openai", DisplayName: "GPT-5.2 Mini",
		ContextWindow: 1047576, MaxOutput: 16384, SupportsTools: true,
		InputCostPerMillion: 0.75, OutputCostPerMillion: 3.0,
		Aliases: []string{"gpt5-mini"},
	},

	// Gemini
	{
		ID: "gemini-3-pro-preview", Provider: "gemini", DisplayName: "Gemini 3 Pro (Preview)",
		ContextWindow: 1048576, MaxOutput: 65536, SupportsTools: true,
		InputCostPerMillion: 1.25, OutputCostPerMillion: 5.0,
		Aliases: []string{"gemini-pro", "gemini-3-pro"},
	},
	{
		ID: "gemini-3-flash-preview", Provider: "gemini", DisplayName: "Gemini 3 Flash (Preview)",
		ContextWindow: 1048576, MaxOutput: 65536, SupportsTools: true,
		InputCostPerMillion: 0.15, OutputCostPerMillion: 0.60,
		Aliases: []string{"gemini-flash", "gemini-3-flash"},
	},
}

// LookupModel returns the catalog entry for a model ID or alias, or nil if
// unknown.
func LookupModel(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	var result []ModelInfo
	for _, m := range Models {
		if provider == "" || m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// CostUSD estimates the dollar cost of a completion with the given token
// counts. The second return is false when the model is not in the catalog.
func CostUSD(modelID string, inputTokens, outputTokens int) (float64, bool) {
	info := LookupModel(modelID)
	if info == nil {
		return 0, false
	}
	cost := float64(inputTokens)/1e6*info.InputCostPerMillion +
		float64(outputTokens)/1e6*info.OutputCostPerMillion
	return cost, true
}
