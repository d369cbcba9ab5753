package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// scriptedAdapter returns a fixed sequence of responses, one per Complete
// call, then keeps returning the last one.
type scriptedAdapter struct {
	name      string
	responses []*Response
	errs      []error
	calls     int
	requests  []Request
}

func (s *scriptedAdapter) Name() string { return s.name }

func (s *scriptedAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	s.requests = append(s.requests, req)
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func toolCallResponse(usage Usage, calls ...ToolCall) *Response {
	parts := make([]ContentPart, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, ToolCallPart(c.ID, c.Name, c.Arguments))
	}
	return &Response{
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: FinishReason{Reason: "tool_calls"},
		Usage:        usage,
	}
}

func finalResponse(text string, usage Usage) *Response {
	return &Response{
		Message:      AssistantMessage(text),
		FinishReason: FinishReason{Reason: "stop"},
		Usage:        usage,
	}
}

func loopClient(adapter *scriptedAdapter) *Client {
	return NewClient(WithProvider(adapter.name, adapter))
}

func echoTool(t *testing.T, log *[]string) Tool {
	return Tool{
		Name:        "echo",
		Description: "echoes its input",
		Parameters:  map[string]interface{}{"type": "object"},
		Execute: func(args json.RawMessage) (interface{}, error) {
			var parsed map[string]interface{}
			if err := json.Unmarshal(args, &parsed); err != nil {
				t.Fatalf("bad args: %v", err)
			}
			*log = append(*log, parsed["text"].(string))
			return map[string]interface{}{"echoed": parsed["text"]}, nil
		},
	}
}

func TestRunToolLoopNoToolCalls(t *testing.T) {
	adapter := &scriptedAdapter{
		name:      "openai",
		responses: []*Response{finalResponse("done", Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15})},
	}

	result, err := RunToolLoop(context.Background(), ToolLoopOptions{
		Client:   loopClient(adapter),
		Prompt:   "hello",
		MaxSteps: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "done" {
		t.Errorf("expected %q, got %q", "done", result.Text)
	}
	if result.StepsRun != 0 {
		t.Errorf("expected 0 steps, got %d", result.StepsRun)
	}
	if result.Usage.TotalTokens != 15 {
		t.Errorf("expected total tokens 15, got %d", result.Usage.TotalTokens)
	}
}

func TestRunToolLoopExecutesTools(t *testing.T) {
	adapter := &scriptedAdapter{
		name: "openai",
		responses: []*Response{
			toolCallResponse(Usage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120},
				ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"text":"first"}`)}),
			finalResponse("all done", Usage{InputTokens: 150, OutputTokens: 10, TotalTokens: 160}),
		},
	}

	var executed []string
	result, err := RunToolLoop(context.Background(), ToolLoopOptions{
		Client:   loopClient(adapter),
		Prompt:   "do work",
		Tools:    []Tool{echoTool(t, &executed)},
		MaxSteps: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "all done" {
		t.Errorf("expected final text, got %q", result.Text)
	}
	if result.StepsRun != 1 {
		t.Errorf("expected 1 step, got %d", result.StepsRun)
	}
	if len(executed) != 1 || executed[0] != "first" {
		t.Errorf("expected tool executed once with %q, got %v", "first", executed)
	}
	if result.Usage.TotalTokens != 280 {
		t.Errorf("expected accumulated usage 280, got %d", result.Usage.TotalTokens)
	}

	// The second round's conversation carries the tool result back.
	last := adapter.requests[1].Messages
	found := false
	for _, m := range last {
		if m.Role == RoleTool {
			found = true
		}
	}
	if !found {
		t.Error("expected a tool result message in the second request")
	}
}

func TestRunToolLoopStepCap(t *testing.T) {
	adapter := &scriptedAdapter{
		name: "openai",
		responses: []*Response{
			toolCallResponse(Usage{},
				ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"text":"a"}`)},
				ToolCall{ID: "c2", Name: "echo", Arguments: json.RawMessage(`{"text":"b"}`)},
				ToolCall{ID: "c3", Name: "echo", Arguments: json.RawMessage(`{"text":"c"}`)}),
		},
	}

	var executed []string
	result, err := RunToolLoop(context.Background(), ToolLoopOptions{
		Client:   loopClient(adapter),
		Prompt:   "do work",
		Tools:    []Tool{echoTool(t, &executed)},
		MaxSteps: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StepsRun != 2 {
		t.Errorf("expected exactly 2 steps, got %d", result.StepsRun)
	}
	if len(executed) != 2 {
		t.Errorf("expected 2 executions, got %v", executed)
	}
}

func TestRunToolLoopObserverAbort(t *testing.T) {
	adapter := &scriptedAdapter{
		name: "openai",
		responses: []*Response{
			toolCallResponse(Usage{},
				ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"text":"a"}`)},
				ToolCall{ID: "c2", Name: "echo", Arguments: json.RawMessage(`{"text":"b"}`)}),
		},
	}

	var executed []string
	var observed []LoopStep
	result, err := RunToolLoop(context.Background(), ToolLoopOptions{
		Client:   loopClient(adapter),
		Prompt:   "do work",
		Tools:    []Tool{echoTool(t, &executed)},
		MaxSteps: 10,
		OnStep: func(step LoopStep) StepDecision {
			observed = append(observed, step)
			return StopLoop
		},
	})
	if err == nil {
		t.Fatal("expected abort error")
	}
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %T", err)
	}
	if result.StepsRun != 1 {
		t.Errorf("expected 1 step before abort, got %d", result.StepsRun)
	}
	if len(observed) != 1 || observed[0].Call.Name != "echo" {
		t.Errorf("expected one observed echo step, got %v", observed)
	}
}

func TestRunToolLoopCancelledContext(t *testing.T) {
	adapter := &scriptedAdapter{
		name:      "openai",
		responses: []*Response{finalResponse("never", Usage{})},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunToolLoop(ctx, ToolLoopOptions{
		Client: loopClient(adapter),
		Prompt: "hello",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Errorf("expected AbortError, got %T", err)
	}
	if adapter.calls != 0 {
		t.Errorf("expected no provider calls, got %d", adapter.calls)
	}
}

func TestRunToolLoopUnknownTool(t *testing.T) {
	adapter := &scriptedAdapter{
		name: "openai",
		responses: []*Response{
			toolCallResponse(Usage{},
				ToolCall{ID: "c1", Name: "nonexistent", Arguments: json.RawMessage(`{}`)}),
			finalResponse("recovered", Usage{}),
		},
	}

	var results []ToolResult
	result, err := RunToolLoop(context.Background(), ToolLoopOptions{
		Client:   loopClient(adapter),
		Prompt:   "do work",
		MaxSteps: 5,
		OnStep: func(step LoopStep) StepDecision {
			results = append(results, step.Result)
			return ContinueLoop
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "recovered" {
		t.Errorf("expected loop to continue past unknown tool, got %q", result.Text)
	}
	if len(results) != 1 || !results[0].IsError {
		t.Errorf("expected one error-flagged result, got %v", results)
	}
}

func TestRunToolLoopToolPanic(t *testing.T) {
	adapter := &scriptedAdapter{
		name: "openai",
		responses: []*Response{
			toolCallResponse(Usage{},
				ToolCall{ID: "c1", Name: "bomb", Arguments: json.RawMessage(`{}`)}),
			finalResponse("recovered", Usage{}),
		},
	}

	bomb := Tool{
		Name: "bomb",
		Execute: func(args json.RawMessage) (interface{}, error) {
			panic("tool blew up")
		},
	}

	var results []ToolResult
	result, err := RunToolLoop(context.Background(), ToolLoopOptions{
		Client:   loopClient(adapter),
		Prompt:   "do work",
		Tools:    []Tool{bomb},
		MaxSteps: 5,
		OnStep: func(step LoopStep) StepDecision {
			results = append(results, step.Result)
			return ContinueLoop
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "recovered" {
		t.Errorf("expected loop to continue past the panic, got %q", result.Text)
	}
	if len(results) != 1 || !results[0].IsError {
		t.Fatalf("expected one error-flagged result, got %v", results)
	}
	content, _ := results[0].Content.(string)
	if !strings.Contains(content, "tool blew up") {
		t.Errorf("expected panic message in result, got %q", content)
	}
}

func TestRunToolLoopRetriesCompletion(t *testing.T) {
	adapter := &scriptedAdapter{
		name: "openai",
		errs: []error{&ServerError{ProviderError: ProviderError{
			SDKError: SDKError{Message: "overloaded"}, Retryable: true,
		}}},
		responses: []*Response{nil, finalResponse("ok", Usage{})},
	}

	fast := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}
	result, err := RunToolLoop(context.Background(), ToolLoopOptions{
		Client: loopClient(adapter),
		Prompt: "hello",
		Retry:  &fast,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "ok" {
		t.Errorf("expected %q, got %q", "ok", result.Text)
	}
	if adapter.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", adapter.calls)
	}
}
