package agentrun

import "fmt"

// Status is the terminal outcome of a run. Exactly one status is chosen per
// run.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Machine-readable reason codes carried at the front of RunResult.Error.
const (
	ReasonCancelled    = "cancelled"
	ReasonTimeout      = "timeout"
	ReasonLoopDetected = "loop_detected"
	ReasonCostExceeded = "cost_exceeded"
	ReasonGenericError = "generic_error"
)

// Usage is the token accounting for a run. All fields are zero when the run
// aborted before any accounting was available.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RunResult is the single uniform value every run terminates with. Steps and
// actions collected before a failure are always retained; Summary is always
// populated with prose; Error is present iff Status != success and carries a
// machine-oriented reason distinct from Summary.
type RunResult struct {
	Status  Status   `json:"status"`
	Actions []Action `json:"actions"`
	Steps   []Step   `json:"steps"`
	Summary string   `json:"summary"`
	Usage   Usage    `json:"usage"`
	Error   string   `json:"error,omitempty"`
}

// resultAssembler normalizes every termination path of a run into a
// RunResult. It guarantees the RunResult invariants independently of which
// path produced it.
type resultAssembler struct {
	steps   []Step
	actions []Action
	usage   Usage
}

func (a resultAssembler) success(summary string) *RunResult {
	if summary == "" {
		summary = fmt.Sprintf("Run completed after %d tool call(s).", len(a.steps))
	}
	return &RunResult{
		Status:  StatusSuccess,
		Actions: a.actions,
		Steps:   a.steps,
		Summary: summary,
		Usage:   a.usage,
	}
}

// failure builds a non-success result. reason is one of the Reason* codes,
// detail the machine-oriented specifics, summary the human explanation.
func (a resultAssembler) failure(status Status, reason, detail, summary string) *RunResult {
	errMsg := reason
	if detail != "" {
		errMsg = fmt.Sprintf("%s: %s", reason, detail)
	}
	return &RunResult{
		Status:  status,
		Actions: a.actions,
		Steps:   a.steps,
		Summary: summary,
		Usage:   a.usage,
		Error:   errMsg,
	}
}
