package client

import (
	"math"
	"time"
)

type EventKind string

const (
	EventChannelConnected     EventKind = "channel_connected"
	EventChannelUnavailable   EventKind = "channel_unavailable"
	EventChannelLost          EventKind = "channel_lost"
	EventProgress             EventKind = "progress"
	EventExecuting            EventKind = "executing"
	EventExecuted             EventKind = "executed"
	EventExecutionStart       EventKind = "execution_start"
	EventExecutionCached      EventKind = "execution_cached"
	EventExecutionInterrupted EventKind = "execution_interrupted"
	EventExecutionError       EventKind = "execution_error"
)

// IsChannelState reports whether the kind describes the streaming channel
// itself rather than job execution.
func (k EventKind) IsChannelState() bool {
	switch k {
	case EventChannelConnected, EventChannelUnavailable, EventChannelLost:
		return true
	}
	return false
}

// ProgressEvent is one normalized observation of a running job.
type ProgressEvent struct {
	Kind     EventKind `json:"kind"`
	At       time.Time `json:"at"`
	PromptID string    `json:"prompt_id,omitempty"`
	Node     string    `json:"node,omitempty"`
	Value    *float64  `json:"value,omitempty"`
	Max      *float64  `json:"max,omitempty"`
	Percent  *float64  `json:"percent,omitempty"`
	Message  string    `json:"message,omitempty"`
	RawType  string    `json:"raw_type,omitempty"`
}

func newEvent(kind EventKind) ProgressEvent {
	return ProgressEvent{Kind: kind, At: time.Now().UTC()}
}

// progressPercent is value/max as a percentage rounded to two decimals.
func progressPercent(value, max *float64) *float64 {
	if value == nil || max == nil || *max <= 0 {
		return nil
	}
	p := math.Round(*value / *max * 100 * 100) / 100
	return &p
}
