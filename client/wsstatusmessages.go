package client

import (
	"math"

	"github.com/richinsley/comfyagent/internal/xjson"
)

// WSStatusMessage is an inbound frame from the /ws endpoint:
// {"type": "...", "data": {...}}.
type WSStatusMessage struct {
	Type string
	Data map[string]any
}

/*
{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 1}}}}
{"type": "execution_start", "data": {"prompt_id": "ed986d60-2a27-4d28-8871-2fdb36582902"}}
{"type": "execution_cached", "data": {"nodes": [], "prompt_id": "ed986d60-..."}}
{"type": "executing", "data": {"node": "3", "prompt_id": "ed986d60-..."}}
{"type": "progress", "data": {"value": 5, "max": 20, "node": "3", "prompt_id": "ed986d60-..."}}
{"type": "executed", "data": {"node": "9", "output": {"images": [...]}, "prompt_id": "ed986d60-..."}}
{"type": "execution_error", "data": {"node_id": "3", "exception_message": "...", "prompt_id": "ed986d60-..."}}
*/

// decodeStatusMessage returns false for frames without a type.
func decodeStatusMessage(payload any) (*WSStatusMessage, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	typ := stringField(obj, "type")
	if typ == "" {
		return nil, false
	}
	data, _ := obj["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return &WSStatusMessage{Type: typ, Data: data}, true
}

// NormalizeProgressFrame parses a text frame and normalizes it.
func NormalizeProgressFrame(frame []byte, targetPromptID string) (*ProgressEvent, bool) {
	var payload any
	if err := xjson.Unmarshal(frame, &payload); err != nil {
		return nil, false
	}
	return NormalizeProgressMessage(payload, targetPromptID)
}

// NormalizeProgressMessage maps a decoded frame to a ProgressEvent. Frames for
// another prompt, unknown types and malformed payloads yield false. Frames
// without a prompt id are kept.
func NormalizeProgressMessage(payload any, targetPromptID string) (*ProgressEvent, bool) {
	msg, ok := decodeStatusMessage(payload)
	if !ok {
		return nil, false
	}
	promptID := stringField(msg.Data, "prompt_id")
	if promptID != "" && promptID != targetPromptID {
		return nil, false
	}

	var ev ProgressEvent
	switch msg.Type {
	case "progress":
		ev = newEvent(EventProgress)
		ev.Node = stringField(msg.Data, "node")
		ev.Value = numberField(msg.Data, "value")
		ev.Max = numberField(msg.Data, "max")
		ev.Percent = progressPercent(ev.Value, ev.Max)
	case "executing":
		ev = newEvent(EventExecuting)
		ev.Node = stringField(msg.Data, "node")
	case "executed":
		ev = newEvent(EventExecuted)
		ev.Node = stringField(msg.Data, "node")
	case "execution_start":
		ev = newEvent(EventExecutionStart)
	case "execution_cached":
		ev = newEvent(EventExecutionCached)
		ev.Node = stringField(msg.Data, "node")
	case "execution_interrupted":
		ev = newEvent(EventExecutionInterrupted)
	case "execution_error":
		ev = newEvent(EventExecutionError)
		ev.Node = firstString(msg.Data, "node_id", "node")
		ev.Message = firstString(msg.Data, "exception_message", "error")
	default:
		return nil, false
	}
	ev.RawType = msg.Type
	ev.PromptID = promptID
	return &ev, true
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(m, k); s != "" {
			return s
		}
	}
	return ""
}

func numberField(m map[string]any, key string) *float64 {
	f, ok := m[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
