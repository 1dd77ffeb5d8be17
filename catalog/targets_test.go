package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/preset"
)

func samplerWorkflow() map[string]any {
	return map[string]any{
		"3": map[string]any{
			"class_type": "KSampler",
			"inputs": map[string]any{
				"seed":  5.0,
				"steps": 20.0,
				"model": []any{"4", 0.0},
			},
		},
		"6": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "a cat"},
		},
	}
}

func TestLoadUserdataTarget(t *testing.T) {
	getter := newFakeGetter(map[string]any{
		"/userdata?dir=workflows":             []any{"portrait.json"},
		"/userdata/workflows%2Fportrait.json": samplerWorkflow(),
	})
	r := NewResolver(getter)

	target, err := r.LoadUserdataTarget(context.Background(), "portrait")
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, SourceRemote, target.Source)
	assert.Equal(t, RemoteWorkflowPlaceholder, target.Preset.Workflow)
	assert.Equal(t, preset.Version, target.Preset.Version)
	assert.Contains(t, target.Preset.Parameters, "seed")
	assert.Contains(t, target.Preset.Parameters, "prompt")
	assert.Equal(t, preset.Target{NodeID: "3", Input: "steps"}, target.Preset.Parameters["steps"].Target)

	missing, err := r.LoadUserdataTarget(context.Background(), "landscape")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLoadCatalogTargetDeclaredParameters(t *testing.T) {
	getter := newFakeGetter(map[string]any{
		"/workflow_templates": []any{
			map[string]any{
				"name":     "txt2img",
				"workflow": samplerWorkflow(),
				"parameters": map[string]any{
					"prompt":  map[string]any{"type": "string", "required": true, "target": map[string]any{"node_id": 6.0, "input": "text"}},
					"bad":     map[string]any{"type": "vector", "target": map[string]any{"node_id": "6", "input": "text"}},
					"partial": map[string]any{"type": "int", "target": map[string]any{"node_id": "3"}},
				},
				"uploads": map[string]any{
					"image":  map[string]any{"kind": "image", "cli_flag": "--image", "target": map[string]any{"node_id": "10", "input": "image"}},
					"noflag": map[string]any{"kind": "mask", "target": map[string]any{"node_id": "11", "input": "mask"}},
				},
			},
		},
	})
	r := NewResolver(getter)

	target, err := r.LoadCatalogTarget(context.Background(), "txt2img")
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, SourceRemoteCatalog, target.Source)
	assert.Equal(t, map[string]preset.ParameterDef{
		"prompt": {Type: preset.ParamString, Required: true, Target: preset.Target{NodeID: "6", Input: "text"}},
	}, target.Preset.Parameters)
	assert.Equal(t, map[string]preset.UploadDef{
		"image": {Kind: preset.UploadImage, CLIFlag: "--image", Target: preset.Target{NodeID: "10", Input: "image"}},
	}, target.Preset.Uploads)
}

func TestLoadCatalogTargetInfersParameters(t *testing.T) {
	getter := newFakeGetter(map[string]any{
		"/workflow_templates":     []any{"txt2img"},
		"/templates/txt2img.json": samplerWorkflow(),
	})
	r := NewResolver(getter)

	target, err := r.LoadCatalogTarget(context.Background(), "txt2img")
	require.NoError(t, err)
	assert.Contains(t, target.Preset.Parameters, "3_seed")
	assert.Nil(t, target.Preset.Uploads)
}

func TestLoadRemoteTargetPrefersUserdata(t *testing.T) {
	getter := newFakeGetter(map[string]any{
		"/userdata?dir=workflows":            []any{"txt2img.json"},
		"/userdata/workflows%2Ftxt2img.json": samplerWorkflow(),
		"/workflow_templates":                []any{"txt2img"},
	})
	r := NewResolver(getter)

	target, err := r.LoadRemoteTarget(context.Background(), "txt2img")
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, target.Source)
}

func TestLoadRemoteTargetFallsBackToCatalog(t *testing.T) {
	getter := newFakeGetter(map[string]any{
		"/workflow_templates": []any{map[string]any{"name": "txt2img", "prompt": samplerWorkflow()}},
	})
	r := NewResolver(getter)

	target, err := r.LoadRemoteTarget(context.Background(), "txt2img")
	require.NoError(t, err)
	assert.Equal(t, SourceRemoteCatalog, target.Source)
}

func TestLoadRemoteTargetSurfacesUserdataError(t *testing.T) {
	getter := newFakeGetter(map[string]any{
		"/workflow_templates": []any{"other"},
	})
	r := NewResolver(getter)

	target, err := r.LoadRemoteTarget(context.Background(), "txt2img")
	assert.Nil(t, target)
	assert.True(t, comfyerr.HasCode(err, comfyerr.RemoteUserdataFetchFailed))
}

func TestLoadRemoteTargetCatalogErrorWins(t *testing.T) {
	r := NewResolver(newFakeGetter(nil))
	_, err := r.LoadRemoteTarget(context.Background(), "txt2img")
	assert.True(t, comfyerr.HasCode(err, comfyerr.RemoteTemplateFetchFailed))
}
