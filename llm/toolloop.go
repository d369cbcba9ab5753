package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// StepDecision is returned by a tool-loop step observer to tell the loop
// whether to keep going. Aborting is cooperative: the loop stops cleanly and
// returns an AbortError instead of unwinding through a panic.
type StepDecision int

const (
	ContinueLoop StepDecision = iota
	StopLoop
)

// LoopStep describes one executed tool call, reported to the observer after
// the tool has run.
type LoopStep struct {
	Index  int             // 0-based position across the whole loop
	Call   ToolCall        // the model-issued call
	Result ToolResult      // the executed result (IsError set on tool failure)
	Raw    interface{}     // the value the tool handler returned, pre-serialization
}

// ToolLoopOptions configures RunToolLoop.
type ToolLoopOptions struct {
	Client          *Client
	Model           string
	Provider        string
	System          string
	Prompt          string
	Tools           []Tool
	ToolChoice      *ToolChoice
	MaxSteps        int          // cap on executed tool calls; 0 means no tool execution
	MaxRetries      int          // per-round completion retries; 0 uses the default policy
	Retry           *RetryPolicy // full policy override; takes precedence over MaxRetries
	Temperature     *float64
	MaxTokens       *int
	OnStep          func(step LoopStep) StepDecision
	ProviderOptions map[string]interface{}
}

// ToolLoopResult is the outcome of a completed (or capped) tool loop.
type ToolLoopResult struct {
	Text         string       // final assistant text
	FinishReason FinishReason // reason of the last round
	Usage        Usage        // accumulated across all rounds
	StepsRun     int          // tool calls actually executed
}

// RunToolLoop drives a multi-step tool-calling conversation: complete, execute
// any tool calls sequentially (strictly in the order the model issued them),
// feed results back, and repeat until the model stops calling tools, the step
// cap is reached, the context is cancelled, or the observer aborts.
//
// Tool execution errors are not fatal: they are returned to the model as
// error-flagged results. A completion error after retries, a cancelled
// context, or an observer abort terminates the loop; observer aborts surface
// as *AbortError.
func RunToolLoop(ctx context.Context, opts ToolLoopOptions) (*ToolLoopResult, error) {
	client := opts.Client
	if client == nil {
		client = DefaultClient()
	}

	policy := DefaultRetryPolicy()
	if opts.MaxRetries > 0 {
		policy.MaxRetries = opts.MaxRetries
	}
	if opts.Retry != nil {
		policy = *opts.Retry
	}

	toolMap := make(map[string]Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		toolMap[t.Name] = t
	}

	conversation := []Message{}
	if opts.System != "" {
		conversation = append(conversation, SystemMessage(opts.System))
	}
	conversation = append(conversation, UserMessage(opts.Prompt))

	result := &ToolLoopResult{}

	for {
		if err := ctx.Err(); err != nil {
			return result, &AbortError{SDKError: SDKError{Message: "tool loop cancelled", Cause: err}}
		}

		req := Request{
			Model:           opts.Model,
			Provider:        opts.Provider,
			Messages:        conversation,
			Tools:           opts.Tools,
			ToolChoice:      opts.ToolChoice,
			Temperature:     opts.Temperature,
			MaxTokens:       opts.MaxTokens,
			ProviderOptions: opts.ProviderOptions,
		}

		resp, err := Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return client.Complete(ctx, req)
		})
		if err != nil {
			return result, err
		}

		result.Text = resp.Text()
		result.FinishReason = resp.FinishReason
		result.Usage = result.Usage.Add(resp.Usage)

		calls := resp.ToolCalls()
		if len(calls) == 0 || resp.FinishReason.Reason != "tool_calls" {
			return result, nil
		}

		conversation = append(conversation, resp.Message)

		for _, call := range calls {
			if result.StepsRun >= opts.MaxSteps {
				// Step cap reached; stop without executing further calls.
				return result, nil
			}

			tr, raw := executeCall(toolMap, call)
			result.StepsRun++

			if opts.OnStep != nil {
				step := LoopStep{Index: result.StepsRun - 1, Call: call, Result: tr, Raw: raw}
				if opts.OnStep(step) == StopLoop {
					return result, &AbortError{SDKError: SDKError{Message: "tool loop aborted by step observer"}}
				}
			}

			content, _ := json.Marshal(tr.Content)
			conversation = append(conversation, ToolResultMessage(call.ID, string(content), tr.IsError))
		}
	}
}

// executeCall dispatches a single tool call and normalizes the outcome. The
// raw return value is surfaced alongside the serializable result so observers
// can inspect it without re-parsing.
func executeCall(toolMap map[string]Tool, call ToolCall) (ToolResult, interface{}) {
	tool, ok := toolMap[call.Name]
	if !ok || tool.Execute == nil {
		return ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Unknown tool: %s", call.Name),
			IsError:    true,
		}, nil
	}

	output, err := safeExecute(tool, call.Arguments)
	if err != nil {
		return ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Tool error (%s): %v", call.Name, err),
			IsError:    true,
		}, nil
	}

	return ToolResult{ToolCallID: call.ID, Content: output}, output
}

// safeExecute runs a tool handler, converting a panic into an ordinary
// error so one misbehaving tool cannot take down the whole round.
func safeExecute(tool Tool, args json.RawMessage) (out interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return tool.Execute(args)
}
