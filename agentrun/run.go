package agentrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCallAborted is returned by a ModelCaller when the step hook told it to
// stop. The runner translates it using the abort reason it recorded before
// returning StepAbort.
var ErrCallAborted = errors.New("model call aborted by step hook")

// StepDecision is the step hook's verdict: keep going or stop the call.
type StepDecision int

const (
	StepContinue StepDecision = iota
	StepAbort
)

// ToolInvocation describes one executed tool call as reported by the model
// call.
type ToolInvocation struct {
	ToolName string
	Args     map[string]interface{}
	Result   interface{}
	IsError  bool
}

// ModelOutput is what a completed model call returns.
type ModelOutput struct {
	Text  string
	Usage Usage
}

// ModelCall carries everything a ModelCaller needs for one invocation. The
// OnToolCall hook is invoked synchronously after each executed tool call;
// returning StepAbort makes the caller stop and return ErrCallAborted.
type ModelCall struct {
	Model        string
	APIKey       string
	SystemPrompt string
	UserPrompt   string
	Tools        []Tool
	MaxSteps     int
	OnToolCall   func(inv ToolInvocation) StepDecision
}

// ModelCaller is the model call capability the runner races against its
// timer. It is invoked exactly once per run.
type ModelCaller interface {
	Call(ctx context.Context, call ModelCall) (*ModelOutput, error)
}

// Runner executes guardrailed agent runs. A Runner is safe for concurrent
// use; all per-run state is exclusive to each Execute call.
type Runner struct {
	caller     ModelCaller
	prices     PriceTable
	logger     *slog.Logger
	events     *EventEmitter
	loopWindow int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPriceTable overrides the default catalog-backed price table.
func WithPriceTable(table PriceTable) RunnerOption {
	return func(r *Runner) { r.prices = table }
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithLoopWindow overrides the loop-detection window size.
func WithLoopWindow(n int) RunnerOption {
	return func(r *Runner) { r.loopWindow = n }
}

// NewRunner creates a Runner around the given model caller.
func NewRunner(caller ModelCaller, opts ...RunnerOption) *Runner {
	r := &Runner{
		caller:     caller,
		prices:     CatalogPricing{},
		logger:     slog.New(slog.DiscardHandler),
		events:     NewEventEmitter(256),
		loopWindow: DefaultLoopWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events returns the runner's event channel for live progress display.
func (r *Runner) Events() <-chan RunEvent {
	return r.events.Events()
}

// Close releases the runner's event channel.
func (r *Runner) Close() {
	r.events.Close()
}

// Request is the input to Execute.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Tools        []Tool
	Config       RunConfig
	// OnStep is invoked synchronously once per completed step, for live
	// progress UI. Behavior of the callback itself is the caller's concern.
	OnStep func(step Step)
}

// runState is the per-run mutable state. The step hook runs on the model
// call's goroutine while Execute's goroutine may assemble a result after the
// timer wins the race, so access is guarded.
type runState struct {
	mu      sync.Mutex
	start   time.Time
	steps   []Step
	actions []Action
	records []ToolCallRecord
	abort   string // Reason code set by the hook before returning StepAbort
}

// record appends one step (and any derived action and loop-detection record)
// and returns the step plus a snapshot of all records.
func (s *runState) record(inv ToolInvocation) (Step, []ToolCallRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := Step{
		Index:     len(s.steps),
		ToolName:  inv.ToolName,
		Args:      inv.Args,
		Result:    classifyResult(inv.Result),
		Timestamp: time.Now(),
	}
	s.steps = append(s.steps, step)
	if a, ok := ActionFromStep(step); ok {
		s.actions = append(s.actions, a)
	}
	s.records = append(s.records, ToolCallRecord{ToolName: inv.ToolName, ArgsHash: ArgsHash(inv.Args)})
	snapshot := make([]ToolCallRecord, len(s.records))
	copy(snapshot, s.records)
	return step, snapshot
}

func (s *runState) setAbort(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abort = reason
}

func (s *runState) abortReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abort
}

// assembler snapshots the collected steps and actions so a result can be
// built without racing the step hook.
func (s *runState) assembler() resultAssembler {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := make([]Step, len(s.steps))
	copy(steps, s.steps)
	actions := make([]Action, len(s.actions))
	copy(actions, s.actions)
	return resultAssembler{steps: steps, actions: actions}
}

// Execute runs one guardrailed agent invocation. It always returns a
// RunResult and never panics outward or returns an error: every termination
// path, including provider failures, is normalized into the result's status,
// summary and machine-readable error reason. Retry policy is the caller's
// concern; Execute issues none.
func (r *Runner) Execute(ctx context.Context, req Request) *RunResult {
	cfg := req.Config

	if err := cfg.Validate(); err != nil {
		return resultAssembler{}.failure(StatusError, ReasonGenericError, err.Error(),
			"The run could not start because its configuration is invalid.")
	}

	// A token already triggered at entry short-circuits the whole run: no
	// steps, no usage, and the model is never invoked.
	if ctx.Err() != nil {
		return resultAssembler{}.failure(StatusCancelled, ReasonCancelled, "cancelled before start",
			"The run was cancelled before the model was invoked.")
	}

	runID := uuid.New().String()
	state := &runState{start: time.Now()}
	r.events.Emit(runID, EventRunStart, map[string]interface{}{"model": cfg.Model})
	r.logger.Debug("run started", "run_id", runID, "model", cfg.Model, "max_steps", cfg.MaxSteps)

	callCtx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()

	call := ModelCall{
		Model:        cfg.Model,
		APIKey:       cfg.APIKey,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Tools:        req.Tools,
		MaxSteps:     cfg.MaxSteps,
		OnToolCall: func(inv ToolInvocation) StepDecision {
			step, records := state.record(inv)
			if req.OnStep != nil {
				req.OnStep(step)
			}
			r.events.Emit(runID, EventStep, map[string]interface{}{
				"index": step.Index,
				"tool":  step.ToolName,
				"error": inv.IsError,
			})

			if IsLooping(records, r.loopWindow) {
				state.setAbort(ReasonLoopDetected)
				r.events.Emit(runID, EventLoopDetected, map[string]interface{}{"window": r.loopWindow})
				return StepAbort
			}
			// Secondary circuit breaker: the elapsed-time check catches a
			// run that blows its budget mid-stream, before the outer timer
			// branch is reached.
			if time.Since(state.start) > cfg.Timeout {
				state.setAbort(ReasonTimeout)
				return StepAbort
			}
			return StepContinue
		},
	}

	type callOutcome struct {
		out *ModelOutput
		err error
	}
	done := make(chan callOutcome, 1)
	go func() {
		// A panicking caller or tool surfaces as a failed run, never as a
		// process crash.
		defer func() {
			if p := recover(); p != nil {
				done <- callOutcome{err: fmt.Errorf("model call panicked: %v", p)}
			}
		}()
		out, err := r.caller.Call(callCtx, call)
		done <- callOutcome{out: out, err: err}
	}()

	timer := time.NewTimer(cfg.Timeout)
	defer timer.Stop()

	// First to settle wins: the model call, the wall-clock timer, or the
	// caller's cancellation.
	select {
	case <-ctx.Done():
		cancelCall()
		return r.finish(runID, state.assembler().failure(StatusCancelled, ReasonCancelled,
			"run cancelled", "The run was cancelled before it completed."))

	case <-timer.C:
		// The call's eventual outcome is discarded.
		cancelCall()
		return r.finish(runID, state.assembler().failure(StatusTimeout, ReasonTimeout,
			fmt.Sprintf("run exceeded %v", cfg.Timeout),
			fmt.Sprintf("The run was stopped after exceeding its %v time limit.", cfg.Timeout)))

	case oc := <-done:
		return r.finish(runID, r.settle(ctx, runID, state, cfg, oc.out, oc.err))
	}
}

// settle maps a completed model call (or its failure) onto a RunResult.
func (r *Runner) settle(ctx context.Context, runID string, state *runState, cfg RunConfig, out *ModelOutput, err error) *RunResult {
	asm := state.assembler()

	if err != nil {
		switch {
		case errors.Is(err, ErrCallAborted):
			if state.abortReason() == ReasonTimeout {
				return asm.failure(StatusTimeout, ReasonTimeout,
					fmt.Sprintf("run exceeded %v mid-step", cfg.Timeout),
					fmt.Sprintf("The run was stopped mid-step after exceeding its %v time limit.", cfg.Timeout))
			}
			return asm.failure(StatusError, ReasonLoopDetected,
				fmt.Sprintf("last %d tool calls repeat the preceding %d", r.loopWindow, r.loopWindow),
				"The run was stopped because the agent kept repeating the same tool calls.")

		case errors.Is(err, context.Canceled), ctx.Err() != nil:
			return asm.failure(StatusCancelled, ReasonCancelled, "run cancelled",
				"The run was cancelled before it completed.")

		default:
			return asm.failure(StatusError, ReasonGenericError, err.Error(),
				"The run failed with an unexpected error from the model call.")
		}
	}

	asm.usage = out.Usage
	cost := EstimateCost(r.prices, cfg.Model, out.Usage.PromptTokens, out.Usage.CompletionTokens)
	if cost > cfg.MaxCostUSD {
		r.logger.Warn("cost budget exceeded", "cost_usd", cost, "max_cost_usd", cfg.MaxCostUSD)
		r.events.Emit(runID, EventBudgetExceeded, map[string]interface{}{
			"cost_usd":     cost,
			"max_cost_usd": cfg.MaxCostUSD,
		})
		return asm.failure(StatusError, ReasonCostExceeded,
			fmt.Sprintf("estimated cost $%.4f exceeds budget $%.4f", cost, cfg.MaxCostUSD),
			fmt.Sprintf("The run finished but its estimated cost of $%.4f exceeded the $%.4f budget.", cost, cfg.MaxCostUSD))
	}

	return asm.success(out.Text)
}

func (r *Runner) finish(runID string, res *RunResult) *RunResult {
	r.events.Emit(runID, EventRunEnd, map[string]interface{}{
		"status": string(res.Status),
		"steps":  len(res.Steps),
	})
	r.logger.Debug("run finished", "run_id", runID, "status", res.Status, "steps", len(res.Steps))
	return res
}
