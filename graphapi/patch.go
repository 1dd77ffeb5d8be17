package graphapi

import (
	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/preset"
)

// ApplyParameters returns a patched copy of g with each supplied parameter
// value written to its declared target. Parameters absent from values are
// left untouched; g itself is never modified.
func ApplyParameters(g Graph, p *preset.Preset, values map[string]any) (Graph, error) {
	patched := g.Clone()
	for _, name := range p.ParameterNames() {
		v, ok := values[name]
		if !ok {
			continue
		}
		if err := setInput(patched, p.Parameters[name].Target, v); err != nil {
			return nil, err
		}
	}
	return patched, nil
}

// ApplyUploads writes staged server-side file paths to their upload targets.
func ApplyUploads(g Graph, p *preset.Preset, values map[string]string) (Graph, error) {
	patched := g.Clone()
	for _, name := range p.UploadNames() {
		v, ok := values[name]
		if !ok {
			continue
		}
		if err := setInput(patched, p.Uploads[name].Target, v); err != nil {
			return nil, err
		}
	}
	return patched, nil
}

func setInput(g Graph, target preset.Target, value any) error {
	id := string(target.NodeID)
	node, ok := g[id]
	if !ok || node == nil {
		return comfyerr.Newf(comfyerr.NodeNotFound, "node %s not found in workflow", id).
			WithDetails(map[string]any{"node_id": id})
	}
	if node.Inputs == nil {
		return comfyerr.Newf(comfyerr.InputsNotFound, "node %s has no inputs", id).
			WithDetails(map[string]any{"node_id": id})
	}
	node.Inputs[target.Input] = value
	return nil
}
