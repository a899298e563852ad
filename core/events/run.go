package events

import "time"

// Kind classifies a RunEvent.
type Kind string

const (
	KindState  Kind = "state"
	KindMove   Kind = "move"
	KindFailed Kind = "failed"
)

// RunEvent is published by the allocation engine while a run progresses.
// State is set for every kind; the move fields only for KindMove.
type RunEvent struct {
	RunID     string
	Kind      Kind
	State     string
	AgentID   string
	FromGroup int
	ToGroup   int
	Err       error
	Time      time.Time
}
