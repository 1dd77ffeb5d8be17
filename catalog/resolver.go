// Package catalog discovers workflows published by a ComfyUI server: the
// template catalog and saved userdata workflows. Server builds differ in which
// listing endpoints they expose and in how they shape the payloads, so every
// lookup probes a fixed list of endpoints and merges what it finds.
package catalog

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/richinsley/comfyagent/client"
	"github.com/richinsley/comfyagent/comfyerr"
)

var (
	TemplateEndpoints = []string{
		"/workflow_templates",
		"/api/workflow_templates",
		"/templates/index.json",
	}

	UserdataListEndpoints = []string{
		"/userdata?dir=workflows&recurse=true",
		"/userdata?dir=workflows",
		"/v2/userdata?path=workflows",
		"/v2/userdata",
		"/api/userdata?dir=workflows&recurse=true",
		"/api/userdata?dir=workflows",
		"/api/v2/userdata?path=workflows",
		"/api/v2/userdata",
	}

	userdataFileEndpoints = []string{"/userdata/", "/api/userdata/"}
)

// fetchConcurrency bounds the listing requests in flight at once.
const fetchConcurrency = 4

// JSONGetter is the slice of the HTTP client the resolver needs.
type JSONGetter interface {
	GetJSON(ctx context.Context, path string, policy client.RetryPolicy) (any, error)
}

type Resolver struct {
	getter JSONGetter
	logger *slog.Logger
}

type Option func(*Resolver)

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

func NewResolver(getter JSONGetter, opts ...Option) *Resolver {
	r := &Resolver{getter: getter, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attempt records one failed listing request.
type Attempt struct {
	Endpoint string `json:"endpoint"`
	Message  string `json:"message"`
	Status   int    `json:"status,omitempty"`
}

func (a Attempt) detail() map[string]any {
	d := map[string]any{"endpoint": a.Endpoint, "message": a.Message}
	if a.Status != 0 {
		d["status"] = a.Status
	}
	return d
}

func attemptDetails(attempts []Attempt) []map[string]any {
	out := make([]map[string]any, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.detail())
	}
	return out
}

type fetchResult struct {
	endpoint string
	payload  any
	err      error
}

// fetchAll requests every endpoint concurrently and returns the results in
// endpoint order, so merging stays deterministic.
func (r *Resolver) fetchAll(ctx context.Context, endpoints []string) []fetchResult {
	results := make([]fetchResult, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, endpoint := range endpoints {
		i, endpoint := i, endpoint
		g.Go(func() error {
			payload, err := r.getter.GetJSON(gctx, endpoint, client.ListingRetry)
			results[i] = fetchResult{endpoint: endpoint, payload: payload, err: err}
			if err != nil {
				r.logger.Debug("listing request failed", "endpoint", endpoint, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() // errors are kept per result
	return results
}

func failedAttempt(res fetchResult) Attempt {
	a := Attempt{Endpoint: res.endpoint, Message: res.err.Error()}
	if ce, ok := comfyerr.As(res.err); ok {
		a.Message = ce.Message
		a.Status = client.StatusOf(res.err)
	}
	return a
}
