package catalog

import (
	"context"
	"sync"

	"github.com/richinsley/comfyagent/client"
	"github.com/richinsley/comfyagent/comfyerr"
)

// fakeGetter serves canned payloads by path and answers 404 for the rest.
type fakeGetter struct {
	mu       sync.Mutex
	payloads map[string]any
	failures map[string]int
	calls    []string
}

func newFakeGetter(payloads map[string]any) *fakeGetter {
	return &fakeGetter{payloads: payloads, failures: map[string]int{}}
}

func (f *fakeGetter) GetJSON(ctx context.Context, path string, policy client.RetryPolicy) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	if status, ok := f.failures[path]; ok {
		return nil, comfyerr.Newf(comfyerr.APIError, "GET %s failed with status %d", path, status).
			WithDetails(map[string]any{"status": status})
	}
	if payload, ok := f.payloads[path]; ok {
		return payload, nil
	}
	return nil, comfyerr.Newf(comfyerr.APIError, "GET %s failed with status 404", path).
		WithDetails(map[string]any{"status": 404})
}

func (f *fakeGetter) called(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == path {
			return true
		}
	}
	return false
}

func (f *fakeGetter) callsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func sampleWorkflow() map[string]any {
	return map[string]any{
		"1": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "cat"},
		},
	}
}
