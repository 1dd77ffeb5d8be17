package runner

import (
	"context"

	"github.com/richinsley/comfyagent/catalog"
	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/preset"
)

type ShownParameter struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Required bool           `json:"required"`
	Default  any            `json:"default,omitempty"`
	Target   *preset.Target `json:"target,omitempty"`
}

type ShownUpload struct {
	Name    string         `json:"name"`
	Kind    string         `json:"kind"`
	CLIFlag string         `json:"cli_flag"`
	Target  *preset.Target `json:"target,omitempty"`
}

// ShownPreset describes a preset. Paths are nil for remote presets.
type ShownPreset struct {
	Name           string           `json:"name"`
	Version        int              `json:"version"`
	PresetPath     *string          `json:"preset_path"`
	WorkflowFile   string           `json:"workflow_file"`
	WorkflowPath   *string          `json:"workflow_path"`
	RemoteEndpoint string           `json:"remote_endpoint,omitempty"`
	Parameters     []ShownParameter `json:"parameters"`
	Uploads        []ShownUpload    `json:"uploads"`
	Raw            any              `json:"raw,omitempty"`
}

type ShowReport struct {
	OK     bool           `json:"ok"`
	Scope  preset.Scope   `json:"scope"`
	Source catalog.Source `json:"source"`
	Preset ShownPreset    `json:"preset"`
	// Warnings carries the remote lookup failure when a local preset was shown.
	Warnings []string `json:"warnings,omitempty"`
}

// Show describes the preset called name from the workdir or the template
// catalog.
func (r *Runner) Show(ctx context.Context, name string, requested InspectSource) (*ShowReport, error) {
	if requested == "" {
		requested = InspectSourceAuto
	}
	localPath, err := r.workdir.PresetPath(name)
	if err != nil {
		if !comfyerr.HasCode(err, comfyerr.PresetNotFound) {
			return nil, err
		}
		localPath = ""
	}

	var warnings []string
	tmpl, listing, remoteErr := r.catalog.FindTemplate(ctx, name)
	if remoteErr != nil {
		if requested == InspectSourceRemote {
			return nil, remoteErr
		}
		warnings = append(warnings, remoteErr.Error())
	}

	src, err := SelectInspectSource(requested, localPath != "", tmpl != nil)
	if err != nil {
		return nil, err
	}
	report := &ShowReport{OK: true, Scope: r.workdir.Scope, Source: src}
	if src == catalog.SourceRemote {
		report.Preset = showRemote(tmpl, listing.Endpoint)
		return report, nil
	}

	p, err := preset.LoadFile(localPath)
	if err != nil {
		return nil, err
	}
	workflowPath := r.workdir.WorkflowPath(p)
	shown := ShownPreset{
		Name:         p.Name,
		Version:      p.Version,
		PresetPath:   &localPath,
		WorkflowFile: p.Workflow,
		WorkflowPath: &workflowPath,
		Parameters:   []ShownParameter{},
		Uploads:      []ShownUpload{},
	}
	for _, name := range p.ParameterNames() {
		def := p.Parameters[name]
		shown.Parameters = append(shown.Parameters, ShownParameter{
			Name:     name,
			Type:     string(def.Type),
			Required: def.Required,
			Default:  def.Default,
			Target:   &def.Target,
		})
	}
	for _, name := range p.UploadNames() {
		def := p.Uploads[name]
		shown.Uploads = append(shown.Uploads, ShownUpload{
			Name:    name,
			Kind:    string(def.Kind),
			CLIFlag: def.CLIFlag,
			Target:  &def.Target,
		})
	}
	report.Preset = shown
	report.Warnings = warnings
	return report, nil
}

// lenientTarget reads a catalog target as declared, complete or not.
func lenientTarget(v any) *preset.Target {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	t := &preset.Target{}
	t.NodeID, _ = preset.NodeIDFrom(obj["node_id"])
	t.Input, _ = obj["input"].(string)
	return t
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

// showRemote describes a catalog template. Unlike running it, showing keeps
// every declared parameter and upload and fills in missing fields.
func showRemote(t *catalog.RemoteTemplate, endpoint string) ShownPreset {
	raw, _ := t.Raw.(map[string]any)
	shown := ShownPreset{
		Name:           t.Name,
		Version:        preset.Version,
		WorkflowFile:   stringOr(raw["workflow"], catalog.RemoteWorkflowPlaceholder),
		RemoteEndpoint: endpoint,
		Parameters:     []ShownParameter{},
		Uploads:        []ShownUpload{},
		Raw:            t.Raw,
	}

	params, _ := raw["parameters"].(map[string]any)
	for _, name := range sortedNames(params) {
		def, _ := params[name].(map[string]any)
		required, _ := def["required"].(bool)
		shown.Parameters = append(shown.Parameters, ShownParameter{
			Name:     name,
			Type:     stringOr(def["type"], string(preset.ParamJSON)),
			Required: required,
			Default:  def["default"],
			Target:   lenientTarget(def["target"]),
		})
	}

	uploads, _ := raw["uploads"].(map[string]any)
	for _, name := range sortedNames(uploads) {
		def, _ := uploads[name].(map[string]any)
		shown.Uploads = append(shown.Uploads, ShownUpload{
			Name:    name,
			Kind:    stringOr(def["kind"], string(preset.UploadImage)),
			CLIFlag: stringOr(def["cli_flag"], "--input"),
			Target:  lenientTarget(def["target"]),
		})
	}
	return shown
}
