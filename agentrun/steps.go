package agentrun

import (
	"fmt"
	"time"
)

// pendingStatus is the envelope marker tools use to flag an effect that needs
// human approval before it is applied.
const pendingStatus = "pending_confirmation"

// PendingConfirmation is the tagged form of a tool result that must be
// surfaced for approval instead of executing unattended.
type PendingConfirmation struct {
	ActionType  string                 `json:"action_type"`
	Description string                 `json:"description"`
	Payload     map[string]interface{} `json:"payload"`
}

// StepResult is a tagged union: either a plain value or a pending
// confirmation. The shape is decided exactly once, at the tool boundary, so
// downstream consumers never re-inspect raw payloads.
type StepResult struct {
	Value   interface{}          `json:"value,omitempty"`
	Pending *PendingConfirmation `json:"pending,omitempty"`
}

// IsPending reports whether the result carries a pending confirmation.
func (r StepResult) IsPending() bool { return r.Pending != nil }

// Step is one recorded tool-call-and-result pair within a run. Steps are
// append-only and strictly chronological.
type Step struct {
	Index     int                    `json:"index"`
	ToolName  string                 `json:"tool_name"`
	Args      map[string]interface{} `json:"args"`
	Result    StepResult             `json:"result"`
	Timestamp time.Time              `json:"timestamp"`
}

// classifyResult inspects a raw tool return value once and produces the
// tagged StepResult. A map carrying status == "pending_confirmation" becomes
// the Pending variant with the entire payload retained; everything else is a
// plain value.
func classifyResult(v interface{}) StepResult {
	m, ok := v.(map[string]interface{})
	if !ok {
		return StepResult{Value: capValue(v)}
	}
	status, _ := m["status"].(string)
	if status != pendingStatus {
		return StepResult{Value: capValue(v)}
	}

	actionType, _ := m["actionType"].(string)
	description, _ := m["description"].(string)
	return StepResult{Pending: &PendingConfirmation{
		ActionType:  actionType,
		Description: description,
		Payload:     m,
	}}
}

// maxRecordedChars caps string results recorded into step history. The tool's
// consumer still sees the full value; only the run record is truncated.
const maxRecordedChars = 16384

// capValue truncates oversized string results head-and-tail, keeping the run
// record bounded.
func capValue(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok || len(s) <= maxRecordedChars {
		return v
	}
	half := maxRecordedChars / 2
	removed := len(s) - maxRecordedChars
	return s[:half] +
		fmt.Sprintf("\n[... %d characters truncated ...]\n", removed) +
		s[len(s)-half:]
}
