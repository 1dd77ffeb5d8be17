package graphapi

// Prompt is the body submitted to POST /prompt.
type Prompt struct {
	Graph    Graph  `json:"prompt"`
	ClientID string `json:"client_id"`
	PromptID string `json:"prompt_id,omitempty"`
}
