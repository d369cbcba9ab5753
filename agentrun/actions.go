package agentrun

import (
	"fmt"

	"github.com/google/uuid"
)

// Action types a pending confirmation may carry.
const (
	ActionDelete         = "delete"
	ActionRename         = "rename"
	ActionCreateBranch   = "create_branch"
	ActionCreateDocument = "create_document"
)

// Action is a proposed, approval-gated effect derived from a tool result. The
// engine never mutates an Action after creation; approval happens outside
// this subsystem.
type Action struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Approved    bool                   `json:"approved"`
	Data        map[string]interface{} `json:"data"`
}

// ActionFromStep promotes a pending-confirmation step into an Action with a
// fresh ID. Steps with plain results produce no Action. When the envelope
// omits an action type or description, generic placeholders keep the proposal
// presentable to an approver.
func ActionFromStep(step Step) (Action, bool) {
	p := step.Result.Pending
	if p == nil {
		return Action{}, false
	}

	actionType := p.ActionType
	if actionType == "" {
		actionType = "unknown"
	}
	description := p.Description
	if description == "" {
		description = fmt.Sprintf("Proposed %s action from tool %q", actionType, step.ToolName)
	}

	return Action{
		ID:          uuid.New().String(),
		Type:        actionType,
		Description: description,
		Approved:    false,
		Data:        p.Payload,
	}, true
}

// CollectActions derives the full action list from step history. The runner
// accumulates actions incrementally as steps arrive; this is the pure
// equivalent, useful for re-deriving proposals from a stored run.
func CollectActions(steps []Step) []Action {
	var actions []Action
	for _, step := range steps {
		if a, ok := ActionFromStep(step); ok {
			actions = append(actions, a)
		}
	}
	return actions
}
