package client

import (
	"log/slog"
)

// EventHandlers defines optional callbacks per progress event kind. All
// handlers are optional; only provide the ones you care about.
type EventHandlers struct {
	// OnChannel is called for channel_connected, channel_unavailable and channel_lost
	OnChannel func(ProgressEvent)

	// OnStarted is called when execution begins
	OnStarted func(ProgressEvent)

	// OnExecuting is called when a node starts executing
	OnExecuting func(ProgressEvent)

	// OnCached is called when nodes are served from the server cache
	OnCached func(ProgressEvent)

	// OnProgress is called with step updates during node execution
	OnProgress func(ProgressEvent)

	// OnExecuted is called when a node produced output
	OnExecuted func(ProgressEvent)

	// OnInterrupted is called when the job was interrupted
	OnInterrupted func(ProgressEvent)

	// OnError is called if there was an exception during execution
	OnError func(ProgressEvent)
}

// DefaultEventHandlers logs execution milestones through l.
func DefaultEventHandlers(l *slog.Logger) *EventHandlers {
	if l == nil {
		l = slog.Default()
	}
	return &EventHandlers{
		OnChannel: func(ev ProgressEvent) {
			l.Info("progress channel", "state", string(ev.Kind))
		},
		OnStarted: func(ev ProgressEvent) {
			l.Info("Execution started", "prompt_id", ev.PromptID)
		},
		OnExecuting: func(ev ProgressEvent) {
			l.Info("Executing node", "node", ev.Node)
		},
		OnCached: func(ev ProgressEvent) {
			l.Info("Using cached result", "node", ev.Node)
		},
		OnProgress: func(ev ProgressEvent) {
			args := []any{"node", ev.Node}
			if ev.Value != nil && ev.Max != nil {
				args = append(args, "value", *ev.Value, "max", *ev.Max)
			}
			if ev.Percent != nil {
				args = append(args, "percent", *ev.Percent)
			}
			l.Info("Progress", args...)
		},
		OnExecuted: func(ev ProgressEvent) {
			l.Info("Node executed", "node", ev.Node)
		},
		OnInterrupted: func(ev ProgressEvent) {
			l.Warn("Execution interrupted", "prompt_id", ev.PromptID)
		},
		OnError: func(ev ProgressEvent) {
			l.Error("Execution error", "node", ev.Node, "error", ev.Message)
		},
	}
}

// Dispatch routes ev to the matching handler.
func (h *EventHandlers) Dispatch(ev ProgressEvent) {
	if h == nil {
		return
	}
	var fn func(ProgressEvent)
	switch ev.Kind {
	case EventChannelConnected, EventChannelUnavailable, EventChannelLost:
		fn = h.OnChannel
	case EventExecutionStart:
		fn = h.OnStarted
	case EventExecuting:
		fn = h.OnExecuting
	case EventExecutionCached:
		fn = h.OnCached
	case EventProgress:
		fn = h.OnProgress
	case EventExecuted:
		fn = h.OnExecuted
	case EventExecutionInterrupted:
		fn = h.OnInterrupted
	case EventExecutionError:
		fn = h.OnError
	}
	if fn != nil {
		fn(ev)
	}
}

// WithProgressHandler replaces the progress handler (builder pattern)
func (h *EventHandlers) WithProgressHandler(fn func(ProgressEvent)) *EventHandlers {
	h.OnProgress = fn
	return h
}

// WithErrorHandler replaces the error handler (builder pattern)
func (h *EventHandlers) WithErrorHandler(fn func(ProgressEvent)) *EventHandlers {
	h.OnError = fn
	return h
}
