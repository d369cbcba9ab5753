package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter implements ProviderAdapter on top of a gollm.LLM instance,
// translating between the unified request/response types and gollm's API.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// AdapterConfig holds construction parameters for a GollmAdapter.
type AdapterConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	ExtraOpts   []gollm.ConfigOption
}

// NewGollmAdapter creates a GollmAdapter for the given provider. If apiKey is
// empty, gollm reads it from the provider's environment variable.
func NewGollmAdapter(provider, apiKey string, cfgs ...AdapterConfig) (*GollmAdapter, error) {
	cfg := AdapterConfig{MaxTokens: 4096, Temperature: 0.7}
	if len(cfgs) > 0 {
		if cfgs[0].MaxTokens == 0 {
			cfgs[0].MaxTokens = cfg.MaxTokens
		}
		cfg = cfgs[0]
	}

	model := cfg.Model
	if model == "" {
		if models := ListModels(provider); len(models) > 0 {
			model = models[0].ID
		} else {
			return nil, &ConfigurationError{SDKError: SDKError{
				Message: fmt.Sprintf("no default model known for provider %q", provider),
			}}
		}
	}

	opts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.MaxTokens),
		gollm.SetTemperature(cfg.Temperature),
		gollm.SetMaxRetries(0), // retries are handled by Retry
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		opts = append(opts, gollm.SetAPIKey(apiKey))
	}
	opts = append(opts, cfg.ExtraOpts...)

	inner, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("gollm init for provider %s: %w", provider, err)
	}

	return &GollmAdapter{provider: provider, llm: inner, model: model}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, inner gollm.LLM) *GollmAdapter {
	return &GollmAdapter{provider: provider, llm: inner}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.buildPrompt(req)
	a.applyOverrides(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.classifyError(err)
	}

	return a.buildResponse(req, text), nil
}

// buildPrompt flattens the unified message list into a gollm Prompt. gollm
// takes a single prompt string plus a system prompt, so assistant and tool
// turns are folded in as labeled context.
func (a *GollmAdapter) buildPrompt(req Request) *gollm.Prompt {
	var system strings.Builder
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system.WriteString(msg.TextContent())
			system.WriteString("\n")
		case RoleUser:
			parts = append(parts, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				parts = append(parts, "[Assistant]: "+text)
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				var content string
				if err := json.Unmarshal(part.ToolResult.Content, &content); err != nil || content == "" {
					content = string(part.ToolResult.Content)
				}
				label := "[Tool Result]"
				if part.ToolResult.IsError {
					label = "[Tool Error]"
				}
				parts = append(parts, label+": "+content)
			}
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if s := strings.TrimSpace(system.String()); s != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(s, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	defs := req.ToolDefs
	for _, t := range req.Tools {
		defs = append(defs, t.Definition())
	}
	if len(defs) > 0 {
		tools := make([]gollm.Tool, 0, len(defs))
		for _, d := range defs {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        d.Name,
					Description: d.Description,
					Parameters:  d.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyOverrides applies per-request parameters to the underlying gollm LLM.
func (a *GollmAdapter) applyOverrides(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.TopP != nil {
		a.llm.SetOption("top_p", *req.TopP)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse constructs a unified Response from generated text, extracting
// any tool calls gollm left embedded in the text.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	var content []ContentPart
	calls, cleaned := extractToolCalls(text)
	if cleaned != "" {
		content = append(content, TextPart(cleaned))
	}
	for _, tc := range calls {
		content = append(content, ToolCallPart(tc.ID, tc.Name, tc.Arguments))
	}
	if len(content) == 0 {
		content = []ContentPart{TextPart(text)}
	}

	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if len(calls) > 0 {
		finish = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      Message{Role: RoleAssistant, Content: content},
		FinishReason: finish,
		// gollm does not expose provider-reported usage; approximate from
		// text length at 4 chars per token.
		Usage: approximateUsage(req, text),
	}
}

// extractToolCalls parses tool calls gollm may return as JSON embedded in the
// response text. It returns the parsed calls and the text with the JSON block
// removed.
func extractToolCalls(text string) ([]ToolCallData, string) {
	start := strings.Index(text, `{"tool_calls"`)
	if start == -1 {
		start = strings.Index(text, `[{"name"`)
	}
	if start == -1 {
		return nil, text
	}

	var raw []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &raw); err != nil {
		return nil, text
	}

	calls := make([]ToolCallData, 0, len(raw))
	for _, rc := range raw {
		calls = append(calls, ToolCallData{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: rc.Arguments,
		})
	}
	return calls, strings.TrimSpace(text[:start])
}

func approximateUsage(req Request, text string) Usage {
	input := 0
	for _, msg := range req.Messages {
		input += len(msg.TextContent()) / 4
	}
	if input == 0 {
		input = 10
	}
	output := len(text) / 4
	return Usage{InputTokens: input, OutputTokens: output, TotalTokens: input + output}
}

// errorClasses maps substrings of gollm error text to unified error builders,
// checked in order.
var errorClasses = []struct {
	needles []string
	build   func(pe ProviderError) error
}{
	{[]string{"401", "unauthorized", "invalid key", "invalid api key"},
		func(pe ProviderError) error { pe.StatusCode = 401; return &AuthenticationError{ProviderError: pe} }},
	{[]string{"403", "forbidden"},
		func(pe ProviderError) error { pe.StatusCode = 403; return &AccessDeniedError{ProviderError: pe} }},
	{[]string{"404", "not found"},
		func(pe ProviderError) error { pe.StatusCode = 404; return &NotFoundError{ProviderError: pe} }},
	{[]string{"429", "rate limit"},
		func(pe ProviderError) error {
			pe.StatusCode = 429
			pe.Retryable = true
			return &RateLimitError{ProviderError: pe}
		}},
	{[]string{"context length", "too many tokens"},
		func(pe ProviderError) error { pe.StatusCode = 413; return &ContextLengthError{ProviderError: pe} }},
	{[]string{"500", "internal server"},
		func(pe ProviderError) error {
			pe.StatusCode = 500
			pe.Retryable = true
			return &ServerError{ProviderError: pe}
		}},
	{[]string{"content filter", "safety"},
		func(pe ProviderError) error { return &ContentFilterError{ProviderError: pe} }},
}

// classifyError converts a gollm error into the unified error hierarchy by
// inspecting its message.
func (a *GollmAdapter) classifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "timeout") {
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	}

	pe := ProviderError{
		SDKError: SDKError{Message: msg, Cause: err},
		Provider: a.provider,
	}
	for _, class := range errorClasses {
		for _, needle := range class.needles {
			if strings.Contains(lower, needle) {
				return class.build(pe)
			}
		}
	}

	// Unclassified provider failures default to retryable.
	pe.Retryable = true
	return &pe
}
