package agentrun

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// DefaultLoopWindow is the window size used by the runner's per-step check.
const DefaultLoopWindow = 3

// ToolCallRecord is the minimal fingerprint of one tool call kept for loop
// detection. Records live only for the duration of a run and never appear in
// the RunResult.
type ToolCallRecord struct {
	ToolName string
	ArgsHash string
}

// ArgsHash computes a deterministic signature for tool-call arguments.
// json.Marshal sorts map keys, so equal argument maps always hash equally.
// Unserializable arguments fall back to the fmt representation; two distinct
// unserializable values may collide and falsely trigger detection, a bounded
// trade-off accepted for determinism.
func ArgsHash(args map[string]interface{}) string {
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", args))
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// IsLooping reports whether the tail of history repeats: it compares the last
// windowSize records against the windowSize records immediately preceding
// them and returns true only when every pair matches on both tool name and
// argument hash. Histories shorter than 2*windowSize are undecided, not
// "safe", and return false.
func IsLooping(history []ToolCallRecord, windowSize int) bool {
	if windowSize < 1 || len(history) < 2*windowSize {
		return false
	}

	recent := history[len(history)-windowSize:]
	previous := history[len(history)-2*windowSize : len(history)-windowSize]

	for i := range recent {
		if recent[i].ToolName != previous[i].ToolName || recent[i].ArgsHash != previous[i].ArgsHash {
			return false
		}
	}
	return true
}
