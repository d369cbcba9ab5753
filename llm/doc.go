// Package llm provides a provider-agnostic LLM client that wraps the gollm
// library (github.com/teilomillet/gollm) behind a small adapter interface.
//
// # Architecture
//
// The package is layered bottom-up:
//
//   - ProviderAdapter interface and shared request/response types
//   - Retry logic, error classification, and the model pricing catalog
//   - Client with provider routing and middleware
//   - RunToolLoop, a step-capped multi-round tool-calling driver
//
// # Quick Start
//
// Using the Client directly:
//
//	adapter, _ := llm.NewGollmAdapter("openai", os.Getenv("OPENAI_API_KEY"))
//	client := llm.NewClient(llm.WithProvider("openai", adapter))
//
//	resp, _ := client.Complete(ctx, llm.Request{
//	    Model:    "gpt-5.2",
//	    Messages: []llm.Message{llm.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text())
//
// Driving a tool-calling conversation:
//
//	result, err := llm.RunToolLoop(ctx, llm.ToolLoopOptions{
//	    Client:   client,
//	    Model:    "claude-sonnet-4-5",
//	    Prompt:   "Find and summarize the stale cards",
//	    Tools:    tools,
//	    MaxSteps: 10,
//	    OnStep: func(step llm.LoopStep) llm.StepDecision {
//	        return llm.ContinueLoop
//	    },
//	})
//
// The loop executes tool calls strictly in the order the model issued them
// and feeds results back until the model stops calling tools or the step cap
// is reached. The OnStep observer may stop the loop cooperatively; an abort
// surfaces as *AbortError.
//
// # Errors
//
// All failures are typed: AuthenticationError, RateLimitError, ServerError
// and friends embed ProviderError, which carries the provider name, HTTP
// status, and a Retry-After hint when the provider supplied one. IsRetryable
// reports whether an error is safe to retry; Retry applies a RetryPolicy
// around any operation.
package llm
