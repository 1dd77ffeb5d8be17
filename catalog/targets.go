package catalog

import (
	"context"
	"sort"

	"github.com/richinsley/comfyagent/graphapi"
	"github.com/richinsley/comfyagent/preset"
)

type Source string

const (
	SourceLocal         Source = "local"
	SourceRemote        Source = "remote"
	SourceRemoteCatalog Source = "remote-catalog"
)

// RemoteTarget is a runnable preset synthesized from a remote workflow.
type RemoteTarget struct {
	Source Source
	Preset *preset.Preset
	Graph  graphapi.Graph
}

// LoadUserdataTarget builds a target from a saved userdata workflow called
// name. A nil target with a nil error means no such workflow is listed.
func (r *Resolver) LoadUserdataTarget(ctx context.Context, name string) (*RemoteTarget, error) {
	listing, err := r.FetchUserdataWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	match, ok := listing.Find(name)
	if !ok {
		return nil, nil
	}
	g, err := r.ResolveWorkflow(ctx, name, map[string]any{"name": name, "workflow_path": match.File}, ResolveOptions{PreferUserdata: true})
	if err != nil {
		return nil, err
	}
	return &RemoteTarget{
		Source: SourceRemote,
		Graph:  g,
		Preset: &preset.Preset{
			Version:    preset.Version,
			Name:       name,
			Workflow:   RemoteWorkflowPlaceholder,
			Parameters: graphapi.InferParameters(g),
		},
	}, nil
}

// LoadCatalogTarget builds a target from the template catalog entry called
// name. Parameters and uploads declared by the catalog are used when valid,
// otherwise parameters are inferred from the graph.
func (r *Resolver) LoadCatalogTarget(ctx context.Context, name string) (*RemoteTarget, error) {
	t, _, err := r.FindTemplate(ctx, name)
	if err != nil || t == nil {
		return nil, err
	}
	g, err := r.ResolveWorkflow(ctx, name, t.Raw, ResolveOptions{})
	if err != nil {
		return nil, err
	}

	raw := asObject(t.Raw)
	params := RemoteParameters(raw["parameters"])
	if len(params) == 0 {
		params = graphapi.InferParameters(g)
	}
	p := &preset.Preset{
		Version:  preset.Version,
		Name:     name,
		Workflow: RemoteWorkflowPlaceholder,
	}
	if len(params) > 0 {
		p.Parameters = params
	}
	if uploads := RemoteUploads(raw["uploads"]); len(uploads) > 0 {
		p.Uploads = uploads
	}
	return &RemoteTarget{Source: SourceRemoteCatalog, Preset: p, Graph: g}, nil
}

// LoadRemoteTarget tries userdata first, then the catalog. A userdata error
// is returned only when the catalog has no match either.
func (r *Resolver) LoadRemoteTarget(ctx context.Context, name string) (*RemoteTarget, error) {
	target, userdataErr := r.LoadUserdataTarget(ctx, name)
	if userdataErr == nil && target != nil {
		return target, nil
	}
	if userdataErr != nil {
		r.logger.Debug("userdata lookup failed, trying catalog", "preset", name, "error", userdataErr)
	}

	target, err := r.LoadCatalogTarget(ctx, name)
	if err != nil {
		return nil, err
	}
	if target != nil {
		return target, nil
	}
	return nil, userdataErr
}

func remoteTarget(v any) (preset.Target, bool) {
	obj := asObject(v)
	if obj == nil {
		return preset.Target{}, false
	}
	input := nonEmptyString(obj["input"])
	id, ok := preset.NodeIDFrom(obj["node_id"])
	if input == "" || !ok {
		return preset.Target{}, false
	}
	return preset.Target{NodeID: id, Input: input}, true
}

// RemoteParameters reads the parameter declarations of a catalog entry.
// Entries without a known type or a complete target are dropped.
func RemoteParameters(v any) map[string]preset.ParameterDef {
	obj := asObject(v)
	params := make(map[string]preset.ParameterDef)
	for _, name := range sortedObjectKeys(obj) {
		def := asObject(obj[name])
		if def == nil {
			continue
		}
		typ := preset.ParamType(nonEmptyString(def["type"]))
		target, ok := remoteTarget(def["target"])
		if !typ.Valid() || !ok {
			continue
		}
		required, _ := def["required"].(bool)
		params[name] = preset.ParameterDef{
			Type:     typ,
			Target:   target,
			Required: required,
			Default:  def["default"],
		}
	}
	return params
}

// RemoteUploads reads the upload declarations of a catalog entry. Entries
// without a valid kind, a flag or a complete target are dropped.
func RemoteUploads(v any) map[string]preset.UploadDef {
	obj := asObject(v)
	uploads := make(map[string]preset.UploadDef)
	for _, name := range sortedObjectKeys(obj) {
		def := asObject(obj[name])
		if def == nil {
			continue
		}
		kind := preset.UploadKind(nonEmptyString(def["kind"]))
		flag := nonEmptyString(def["cli_flag"])
		target, ok := remoteTarget(def["target"])
		if !kind.Valid() || flag == "" || !ok {
			continue
		}
		uploads[name] = preset.UploadDef{Kind: kind, CLIFlag: flag, Target: target}
	}
	return uploads
}

func sortedObjectKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
