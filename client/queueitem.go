package client

// PromptResponse is the reply to POST /prompt.
type PromptResponse struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
}

// QueueInfo is the reply to GET /queue. Items are the server's raw queue tuples.
type QueueInfo struct {
	Running []any `json:"queue_running"`
	Pending []any `json:"queue_pending"`
}

// PromptOptions carries the optional identifiers sent with a prompt.
type PromptOptions struct {
	ClientID string
	PromptID string
}
