package agentrun

import (
	"sync"
	"time"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventRunStart       EventKind = "run_start"
	EventStep           EventKind = "step"
	EventLoopDetected   EventKind = "loop_detected"
	EventBudgetExceeded EventKind = "budget_exceeded"
	EventRunEnd         EventKind = "run_end"
)

// RunEvent is a typed progress event emitted while a run executes. Events
// supplement the synchronous OnStep callback for hosts that prefer a channel.
type RunEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter delivers run events to the host application via a buffered
// channel. Emission never blocks the run: when the buffer is full the event
// is dropped.
type EventEmitter struct {
	ch     chan RunEvent
	closed bool
	mu     sync.Mutex
}

// NewEventEmitter creates an EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{ch: make(chan RunEvent, bufferSize)}
}

// Emit sends an event. Events sent after Close are silently dropped.
func (e *EventEmitter) Emit(runID string, kind EventKind, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := RunEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		RunID:     runID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
		// Buffer full; drop rather than stall the run.
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan RunEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
