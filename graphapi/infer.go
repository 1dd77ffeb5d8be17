package graphapi

import (
	"sort"

	"github.com/richinsley/comfyagent/preset"
)

var aliasInputs = []string{"steps", "seed", "cfg", "width", "height", "denoise"}

// InferParameters exposes every literal input of g as an optional parameter
// named <nodeID>_<input>, defaulting to its current value.
//
// Friendly aliases are added on top: the first and second string "text"
// inputs become prompt and negative, and each of steps, seed, cfg, width,
// height and denoise is aliased when exactly one input has that name.
func InferParameters(g Graph) map[string]preset.ParameterDef {
	params, order := literalParameters(g, nil)

	var texts []preset.ParameterDef
	for _, name := range order {
		def := params[name]
		if def.Type == preset.ParamString && def.Target.Input == "text" {
			texts = append(texts, def)
		}
	}
	if _, taken := params["prompt"]; !taken && len(texts) > 0 {
		params["prompt"] = texts[0]
	}
	if _, taken := params["negative"]; !taken && len(texts) > 1 {
		params["negative"] = texts[1]
	}

	for _, alias := range aliasInputs {
		if _, taken := params[alias]; taken {
			continue
		}
		var candidates []preset.ParameterDef
		for _, name := range order {
			if def := params[name]; def.Target.Input == alias {
				candidates = append(candidates, def)
			}
		}
		if len(candidates) == 1 {
			params[alias] = candidates[0]
		}
	}
	return params
}

// literalParameters collects one optional parameter per literal input, in
// node id then input name order. Types come from objects when it knows the
// input, else from the current value.
func literalParameters(g Graph, objects NodeObjects) (map[string]preset.ParameterDef, []string) {
	params := make(map[string]preset.ParameterDef)
	var order []string

	for _, id := range g.NodeIDs() {
		node := g[id]
		if node == nil || node.Inputs == nil {
			continue
		}
		inputs := make([]string, 0, len(node.Inputs))
		for name := range node.Inputs {
			inputs = append(inputs, name)
		}
		sort.Strings(inputs)

		for _, input := range inputs {
			v := node.Inputs[input]
			if !IsLiteral(v) {
				continue
			}
			name := id + "_" + input
			if _, exists := params[name]; exists {
				continue
			}
			typ, ok := objects.ParamType(node.ClassType, input)
			if !ok {
				typ = preset.ParamType(DetectParamType(v))
			}
			params[name] = preset.ParameterDef{
				Type:    typ,
				Target:  preset.Target{NodeID: preset.NodeID(id), Input: input},
				Default: deepCopyValue(v),
			}
			order = append(order, name)
		}
	}
	return params, order
}

// BuildPreset drafts a preset for a graph stored as workflowFile, exposing
// every literal input as <nodeID>_<input>. objects may be nil.
func BuildPreset(name, workflowFile string, g Graph, objects NodeObjects) *preset.Preset {
	params, _ := literalParameters(g, objects)
	p := &preset.Preset{
		Version:  preset.Version,
		Name:     name,
		Workflow: workflowFile,
	}
	if len(params) > 0 {
		p.Parameters = params
	}
	return p
}
