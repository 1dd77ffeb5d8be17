package preset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/internal/xjson"
)

const sdxlPreset = `
version: 1
name: sdxl
workflow: sdxl.json
parameters:
  prompt:
    type: string
    target: { node_id: 6, input: text }
    required: true
  steps:
    type: int
    target: { node_id: "3", input: steps }
    default: 20
  cfg:
    type: float
    target: { node_id: 3, input: cfg }
    default: 7.5
uploads:
  init:
    kind: image
    cli_flag: --init-image
    target: { node_id: 10, input: image }
`

func TestParsePreset(t *testing.T) {
	p, err := Parse([]byte(sdxlPreset))
	require.NoError(t, err)

	assert.Equal(t, "sdxl", p.Name)
	assert.Equal(t, "sdxl.json", p.Workflow)
	assert.Equal(t, []string{"cfg", "prompt", "steps"}, p.ParameterNames())
	assert.Equal(t, NodeID("6"), p.Parameters["prompt"].Target.NodeID)
	assert.Equal(t, NodeID("3"), p.Parameters["steps"].Target.NodeID)
	assert.True(t, p.Parameters["prompt"].Required)
	assert.Equal(t, 20, p.Parameters["steps"].Default)
	assert.Equal(t, 7.5, p.Parameters["cfg"].Default)
	assert.Equal(t, UploadImage, p.Uploads["init"].Kind)
	assert.Equal(t, "10.image", p.Uploads["init"].Target.String())
}

func TestParsePresetInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "version: [1"},
		{"wrong version", "version: 2\nname: a\nworkflow: a.json\n"},
		{"missing workflow", "version: 1\nname: a\n"},
		{"bad param type", "version: 1\nname: a\nworkflow: a.json\nparameters:\n  x:\n    type: number\n    target: {node_id: 1, input: x}\n"},
		{"bad upload kind", "version: 1\nname: a\nworkflow: a.json\nuploads:\n  x:\n    kind: video\n    cli_flag: --x\n    target: {node_id: 1, input: x}\n"},
		{"list node id", "version: 1\nname: a\nworkflow: a.json\nparameters:\n  x:\n    type: int\n    target: {node_id: [1], input: x}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, comfyerr.InvalidPreset, comfyerr.CodeOf(err))
		})
	}
}

func TestNodeIDFromJSON(t *testing.T) {
	var target Target
	require.NoError(t, xjson.Unmarshal([]byte(`{"node_id": 12, "input": "seed"}`), &target))
	assert.Equal(t, NodeID("12"), target.NodeID)

	require.NoError(t, xjson.Unmarshal([]byte(`{"node_id": "KSampler", "input": "seed"}`), &target))
	assert.Equal(t, NodeID("KSampler"), target.NodeID)

	assert.Error(t, xjson.Unmarshal([]byte(`{"node_id": true, "input": "seed"}`), &target))
}

func TestWorkdirPresetPath(t *testing.T) {
	cwd := t.TempDir()
	wd, err := NewWorkdir(ScopeLocal, cwd)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, ".comfy-agent"), wd.Root)

	err = wd.Ensure()
	assert.True(t, comfyerr.HasCode(err, comfyerr.WorkdirNotFound))

	presets := wd.Subdir(SubdirPresets)
	require.NoError(t, os.MkdirAll(presets, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(presets, "a.yml"), []byte(sdxlPreset), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(presets, "b.yaml"), []byte(sdxlPreset), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(presets, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, wd.Ensure())

	path, err := wd.PresetPath("a")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(presets, "a.yml"), path)

	_, err = wd.PresetPath("missing")
	assert.True(t, comfyerr.HasCode(err, comfyerr.PresetNotFound))

	files, err := wd.PresetFiles(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yml", "b.yaml"}, files)

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd.Subdir(SubdirWorkflows), "sdxl.json"), wd.WorkflowPath(p))
}

func TestLoadFileAddsFileDetail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 3\n"), 0o644))

	_, err := LoadFile(path)
	ce, ok := comfyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, path, ce.Details["file"])
	assert.NotEmpty(t, ce.Details["issues"])
}

func TestMarshalReloads(t *testing.T) {
	p, err := Parse([]byte(sdxlPreset))
	require.NoError(t, err)

	data, err := Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version: 1\n")

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, p, again)
}
