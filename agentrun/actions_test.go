package agentrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingStep(index int, payload map[string]interface{}) Step {
	return Step{
		Index:    index,
		ToolName: "delete_card",
		Result:   classifyResult(payload),
	}
}

func TestActionFromStepPending(t *testing.T) {
	step := pendingStep(0, map[string]interface{}{
		"status":      "pending_confirmation",
		"actionType":  "delete",
		"description": "Delete card 42",
		"cardId":      "42",
	})

	action, ok := ActionFromStep(step)
	require.True(t, ok)
	assert.Equal(t, "delete", action.Type)
	assert.Equal(t, "Delete card 42", action.Description)
	assert.False(t, action.Approved)
	assert.NotEmpty(t, action.ID)
	// The full envelope rides along for the approver.
	assert.Equal(t, "42", action.Data["cardId"])
}

func TestActionFromStepPlainResult(t *testing.T) {
	step := Step{ToolName: "search", Result: classifyResult("three results")}
	_, ok := ActionFromStep(step)
	assert.False(t, ok)
}

func TestActionFromStepFreshIDs(t *testing.T) {
	payload := map[string]interface{}{
		"status":     "pending_confirmation",
		"actionType": "rename",
	}
	a1, ok := ActionFromStep(pendingStep(0, payload))
	require.True(t, ok)
	a2, ok := ActionFromStep(pendingStep(1, payload))
	require.True(t, ok)
	assert.NotEqual(t, a1.ID, a2.ID)
}

func TestActionFromStepFallbacks(t *testing.T) {
	step := pendingStep(0, map[string]interface{}{
		"status": "pending_confirmation",
	})

	action, ok := ActionFromStep(step)
	require.True(t, ok)
	assert.Equal(t, "unknown", action.Type)
	assert.Contains(t, action.Description, "unknown")
	assert.Contains(t, action.Description, "delete_card")
}

func TestCollectActions(t *testing.T) {
	steps := []Step{
		{ToolName: "search", Result: classifyResult("results")},
		pendingStep(1, map[string]interface{}{
			"status":     "pending_confirmation",
			"actionType": "delete",
			"cardId":     "1",
		}),
		{ToolName: "summarize", Result: classifyResult("summary")},
		pendingStep(3, map[string]interface{}{
			"status":     "pending_confirmation",
			"actionType": "create_branch",
			"name":       "feature/x",
		}),
	}

	actions := CollectActions(steps)
	require.Len(t, actions, 2)
	assert.Equal(t, "delete", actions[0].Type)
	assert.Equal(t, "create_branch", actions[1].Type)
}

func TestCollectActionsEmpty(t *testing.T) {
	assert.Empty(t, CollectActions(nil))
	assert.Empty(t, CollectActions([]Step{{Result: classifyResult(42)}}))
}
