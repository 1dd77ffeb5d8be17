package client

import (
	"context"
	"net/url"

	"github.com/richinsley/comfyagent/graphapi"
)

/*
@routes.get("/system_stats")
@routes.get("/object_info")
@routes.get("/history/{prompt_id}")
@routes.get("/queue")
@routes.get("/view")

@routes.post("/prompt")
@routes.post("/upload/image")
@routes.post("/upload/mask")
*/

// Queue returns the running and pending queue.
func (c *ComfyClient) Queue(ctx context.Context) (*QueueInfo, error) {
	q := &QueueInfo{}
	if err := c.getInto(ctx, "/queue", ListingRetry, q); err != nil {
		return nil, err
	}
	return q, nil
}

// ObjectInfo returns the node class definitions keyed by class name.
func (c *ComfyClient) ObjectInfo(ctx context.Context) (graphapi.NodeObjects, error) {
	info := make(graphapi.NodeObjects)
	if err := c.getInto(ctx, "/object_info", ListingRetry, &info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *ComfyClient) SystemStats(ctx context.Context) (*SystemStats, error) {
	stats := &SystemStats{}
	if err := c.getInto(ctx, "/system_stats", ListingRetry, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// History returns the raw history document for a prompt.
func (c *ComfyClient) History(ctx context.Context, promptID string) (any, error) {
	return c.GetJSON(ctx, "/history/"+url.PathEscape(promptID), HistoryRetry)
}

// QueuePrompt submits a graph for execution.
func (c *ComfyClient) QueuePrompt(ctx context.Context, g graphapi.Graph, opts PromptOptions) (*PromptResponse, error) {
	body := graphapi.Prompt{Graph: g, ClientID: opts.ClientID, PromptID: opts.PromptID}
	resp := &PromptResponse{}
	if err := c.PostJSON(ctx, "/prompt", body, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ViewFile downloads the bytes of an output file.
func (c *ComfyClient) ViewFile(ctx context.Context, ref OutputFileRef) ([]byte, error) {
	params := url.Values{}
	params.Set("filename", ref.Filename)
	if ref.Subfolder != "" {
		params.Set("subfolder", ref.Subfolder)
	}
	if ref.Type != "" {
		params.Set("type", ref.Type)
	}
	return c.get(ctx, "/view?"+params.Encode(), ViewRetry)
}
