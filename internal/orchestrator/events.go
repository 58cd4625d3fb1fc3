package orchestrator

import "time"

// EventType identifies what happened in a session.
type EventType string

const (
	// EventTaskStarted fires when an agent process has been spawned for a task.
	EventTaskStarted EventType = "task_started"
	// EventTaskFinished fires when an agent process exited cleanly.
	EventTaskFinished EventType = "task_finished"
	// EventTaskFailed fires when an agent process exited with an error.
	EventTaskFailed EventType = "task_failed"
	// EventSessionDone fires once after all tasks have settled.
	EventSessionDone EventType = "session_done"
)

// Event is one observable state change during a session.
type Event struct {
	Type      EventType
	Namespace string
	Task      string
	PID       int
	Err       error
	Timestamp time.Time
}
