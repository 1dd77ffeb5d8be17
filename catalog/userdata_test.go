package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/comfyagent/comfyerr"
)

func TestNormalizeUserdataFilePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://example.test/api/userdata/workflows%2Fcat.json?token=abc", "workflows/cat.json", true},
		{"/v2/userdata/workflows/dog.json", "workflows/dog.json", true},
		{"./workflows/Bird.JSON", "workflows/Bird.JSON", true},
		{"  /userdata/a.json  ", "a.json", true},
		{"/userdata/workflows/cat.png", "", false},
		{"", "", false},
		{"/", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeUserdataFilePath(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeUserdataDirPath(t *testing.T) {
	got, ok := NormalizeUserdataDirPath("/api/userdata/workflows/")
	require.True(t, ok)
	assert.Equal(t, "workflows", got)

	_, ok = NormalizeUserdataDirPath("/userdata/")
	assert.False(t, ok)
}

func TestCollectUserdataJSONPaths(t *testing.T) {
	payload := map[string]any{
		"items": []any{
			map[string]any{"path": "workflows/a.json"},
			map[string]any{"subfolder": "workflows", "filename": "b.json"},
			map[string]any{"directory": "/userdata/workflows", "file": "c.json"},
			map[string]any{"path": "images/not-target.png"},
		},
		"nested": map[string]any{
			"workflows/key-derived.json": map[string]any{"value": 1.0},
		},
	}
	got := CollectUserdataJSONPaths(payload)
	assert.Subset(t, got, []string{"workflows/a.json", "workflows/b.json", "workflows/c.json", "workflows/key-derived.json"})
	assert.NotContains(t, got, "images/not-target.png")
	assert.IsIncreasing(t, got)
}

func TestCollectUserdataJSONPathsDepthLimit(t *testing.T) {
	var payload any = "deep.json"
	for i := 0; i < 12; i++ {
		payload = []any{payload}
	}
	assert.Empty(t, CollectUserdataJSONPaths(payload))

	payload = "shallow.json"
	for i := 0; i < 8; i++ {
		payload = []any{payload}
	}
	assert.Equal(t, []string{"shallow.json"}, CollectUserdataJSONPaths(payload))
}

func TestWorkflowsDirContext(t *testing.T) {
	assert.True(t, EndpointUsesWorkflowsDir("/userdata?dir=workflows&recurse=true"))
	assert.True(t, EndpointUsesWorkflowsDir("/v2/userdata?path=workflows"))
	assert.False(t, EndpointUsesWorkflowsDir("/v2/userdata"))

	assert.Equal(t, "workflows/a.json", ApplyWorkflowsDirContext("a.json", "/userdata?dir=workflows"))
	assert.Equal(t, "workflows/a.json", ApplyWorkflowsDirContext("/workflows/a.json", "/userdata?dir=workflows"))
	assert.Equal(t, "a.json", ApplyWorkflowsDirContext("a.json", "/v2/userdata"))
}

func TestUserdataWorkflowName(t *testing.T) {
	assert.Equal(t, "portrait", UserdataWorkflowName("workflows/sub/portrait.json"))
	assert.Equal(t, "portrait", UserdataWorkflowName(`workflows\portrait.JSON`))
}

func TestScoreUserdataFile(t *testing.T) {
	assert.Greater(t, ScoreUserdataFile("workflows/a.json"), ScoreUserdataFile("a.json"))
	assert.Greater(t, ScoreUserdataFile("x/workflows/a.json"), ScoreUserdataFile("x/y/a.json"))
	assert.Equal(t, 50+100+16, ScoreUserdataFile("workflows/a.json"))
}

func TestExtractUserdataWorkflows(t *testing.T) {
	payload := []any{"a.json", "workflows/a.json", "workflows/.hidden.json", "workflows/b.json"}
	got := ExtractUserdataWorkflows(payload)
	assert.Equal(t, []RemoteUserdataWorkflow{
		{Name: "a", File: "workflows/a.json"},
		{Name: "b", File: "workflows/b.json"},
	}, got)
}

func TestFetchUserdataWorkflows(t *testing.T) {
	getter := newFakeGetter(map[string]any{
		"/userdata?dir=workflows&recurse=true": []any{"portrait.json", "sub/landscape.json"},
		"/v2/userdata": []any{
			map[string]any{"path": "portrait.json", "type": "file"},
			map[string]any{"path": "other/thing.json", "type": "file"},
		},
	})
	r := NewResolver(getter)

	listing, err := r.FetchUserdataWorkflows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/userdata?dir=workflows&recurse=true, /v2/userdata", listing.Endpoint)
	assert.Equal(t, []RemoteUserdataWorkflow{
		{Name: "landscape", File: "workflows/sub/landscape.json"},
		{Name: "portrait", File: "workflows/portrait.json"},
		{Name: "thing", File: "other/thing.json"},
	}, listing.Workflows)
}

func TestFetchUserdataWorkflowsAllFail(t *testing.T) {
	r := NewResolver(newFakeGetter(nil))
	_, err := r.FetchUserdataWorkflows(context.Background())
	assert.True(t, comfyerr.HasCode(err, comfyerr.RemoteUserdataFetchFailed))
	ce, _ := comfyerr.As(err)
	assert.Len(t, ce.Details["attempts"], len(UserdataListEndpoints))
}

func TestExtractUserdataCandidates(t *testing.T) {
	payload := map[string]any{
		"items": []any{
			map[string]any{"path": "workflows/sample_text_to_image_copy.json"},
			map[string]any{"path": "workflows/other.json"},
			map[string]any{"path": "images/not-json.png"},
		},
	}
	got := ExtractUserdataCandidates(payload, "sample_text_to_image", map[string]any{"name": "sample_text_to_image"})
	assert.Equal(t, []string{"workflows/sample_text_to_image_copy.json"}, got)
}

func TestExtractUserdataCandidatesRanking(t *testing.T) {
	payload := []any{
		"archive/portrait_old.json",
		"portrait.json",
		"workflows/portrait.json",
		"workflows/Portrait Studio.json",
	}
	got := ExtractUserdataCandidates(payload, "portrait", map[string]any{"title": "Portrait Studio"})
	assert.Equal(t, []string{
		"workflows/Portrait Studio.json",
		"portrait.json",
		"workflows/portrait.json",
		"archive/portrait_old.json",
	}, got)
}
