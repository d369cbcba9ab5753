package agentrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEmitterDelivers(t *testing.T) {
	e := NewEventEmitter(4)
	defer e.Close()

	e.Emit("run-1", EventRunStart, map[string]interface{}{"model": "m"})
	e.Emit("run-1", EventRunEnd, nil)

	ev := <-e.Events()
	assert.Equal(t, EventRunStart, ev.Kind)
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, "m", ev.Data["model"])
	assert.False(t, ev.Timestamp.IsZero())

	ev = <-e.Events()
	assert.Equal(t, EventRunEnd, ev.Kind)
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter(2)
	defer e.Close()

	// Third emit must not block.
	e.Emit("r", EventStep, nil)
	e.Emit("r", EventStep, nil)
	e.Emit("r", EventStep, nil)

	count := 0
	for {
		select {
		case <-e.Events():
			count++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 2, count)
}

func TestEventEmitterClose(t *testing.T) {
	e := NewEventEmitter(2)
	e.Emit("r", EventStep, nil)
	e.Close()
	e.Close() // idempotent

	// Emit after close is a no-op, not a panic.
	e.Emit("r", EventStep, nil)

	ev, ok := <-e.Events()
	require.True(t, ok)
	assert.Equal(t, EventStep, ev.Kind)

	_, ok = <-e.Events()
	assert.False(t, ok)
}

func TestEventEmitterDefaultBuffer(t *testing.T) {
	e := NewEventEmitter(0)
	defer e.Close()
	e.Emit("r", EventStep, nil)
	ev := <-e.Events()
	assert.Equal(t, EventStep, ev.Kind)
}
