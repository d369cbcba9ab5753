package agentrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mhollis/agentward/llm"
)

// LLMCaller implements ModelCaller on top of the llm package's tool loop.
type LLMCaller struct {
	client   *llm.Client
	provider string
}

// NewLLMCaller wraps an existing llm.Client. Provider routing follows the
// client's own resolution (explicit default, then model catalog).
func NewLLMCaller(client *llm.Client) *LLMCaller {
	return &LLMCaller{client: client}
}

// NewCallerFromConfig builds a caller for the config's model, creating a
// gollm-backed provider adapter with the config's API key.
func NewCallerFromConfig(cfg RunConfig) (*LLMCaller, error) {
	info := llm.LookupModel(cfg.Model)
	if info == nil {
		return nil, fmt.Errorf("model %q is not in the catalog", cfg.Model)
	}
	adapter, err := llm.NewGollmAdapter(info.Provider, cfg.APIKey, llm.AdapterConfig{Model: info.ID})
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(
		llm.WithProvider(info.Provider, adapter),
		llm.WithDefaultProvider(info.Provider),
	)
	return &LLMCaller{client: client, provider: info.Provider}, nil
}

// Call drives one step-capped tool loop, reporting each executed tool call
// to the hook. A hook abort surfaces as ErrCallAborted; a cancelled context
// surfaces as the context's error.
func (c *LLMCaller) Call(ctx context.Context, call ModelCall) (*ModelOutput, error) {
	tools := make([]llm.Tool, 0, len(call.Tools))
	for _, t := range call.Tools {
		tools = append(tools, llm.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			Execute:     wrapExecute(t),
		})
	}

	var hook func(llm.LoopStep) llm.StepDecision
	if call.OnToolCall != nil {
		hook = func(ls llm.LoopStep) llm.StepDecision {
			args, err := ParseArgs(ls.Call.Arguments)
			if err != nil {
				args = map[string]interface{}{"_raw": string(ls.Call.Arguments)}
			}
			inv := ToolInvocation{
				ToolName: ls.Call.Name,
				Args:     args,
				Result:   stepValue(ls),
				IsError:  ls.Result.IsError,
			}
			if call.OnToolCall(inv) == StepAbort {
				return llm.StopLoop
			}
			return llm.ContinueLoop
		}
	}

	res, err := llm.RunToolLoop(ctx, llm.ToolLoopOptions{
		Client:   c.client,
		Model:    call.Model,
		Provider: c.provider,
		System:   call.SystemPrompt,
		Prompt:   call.UserPrompt,
		Tools:    tools,
		MaxSteps: call.MaxSteps,
		OnStep:   hook,
	})
	if err != nil {
		var abort *llm.AbortError
		if errors.As(err, &abort) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrCallAborted
		}
		return nil, err
	}

	return &ModelOutput{
		Text: res.Text,
		Usage: Usage{
			PromptTokens:     res.Usage.InputTokens,
			CompletionTokens: res.Usage.OutputTokens,
			TotalTokens:      res.Usage.TotalTokens,
		},
	}, nil
}

// wrapExecute adapts an engine tool (map arguments) to the llm tool shape
// (raw JSON arguments).
func wrapExecute(t Tool) func(json.RawMessage) (interface{}, error) {
	if t.Execute == nil {
		return nil
	}
	return func(raw json.RawMessage) (interface{}, error) {
		args, err := ParseArgs(raw)
		if err != nil {
			return nil, err
		}
		return t.Execute(args)
	}
}

// stepValue prefers the tool's raw return value; errored calls only have the
// serializable error string.
func stepValue(ls llm.LoopStep) interface{} {
	if ls.Raw != nil {
		return ls.Raw
	}
	return ls.Result.Content
}
