// Package agentrun implements a guardrailed agent execution engine.
//
// It wraps a single multi-step, tool-calling model invocation with the
// bounded constraints that keep an otherwise open-ended loop from running
// forever or overspending: a step cap, a wall-clock timeout, a cost budget,
// repeated-tool-call loop detection, and cooperative cancellation. Every
// possible termination path is normalized into one uniform RunResult so
// callers branch on a single value instead of a try/catch hierarchy.
//
// # Architecture
//
//   - Runner: the orchestrator. Execute races the model call against a timer,
//     observes each tool-call step as it is reported, and owns cancellation.
//   - ModelCaller: the model call capability. The llm-backed implementation
//     drives llm.RunToolLoop; tests substitute scripted fakes.
//   - IsLooping: pure window comparison over tool-call records.
//   - EstimateCost / PriceTable: converts measured usage into dollars and
//     compares against the run's ceiling.
//   - ActionFromStep: promotes pending-confirmation tool results into
//     approval-gated Actions; nothing destructive executes unattended.
//
// # Quick Start
//
//	caller, err := agentrun.NewCallerFromConfig(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	runner := agentrun.NewRunner(caller)
//
//	result := runner.Execute(ctx, agentrun.Request{
//	    SystemPrompt: "You organize a canvas of cards.",
//	    UserPrompt:   "Tidy up the orphaned cards.",
//	    Tools:        registry.Tools(),
//	    Config:       cfg,
//	})
//	fmt.Println(result.Status, result.Summary)
//
// A run never panics outward and Execute never returns an error: failures of
// any kind (timeout, cancellation, loop detection, budget exceedance,
// provider errors) come back as a RunResult with the matching status and a
// machine-readable reason in Error.
package agentrun
