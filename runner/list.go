package runner

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/richinsley/comfyagent/catalog"
	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/preset"
)

type ListedParameter struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

type ListedPreset struct {
	Name       string            `json:"name"`
	Workflow   string            `json:"workflow,omitempty"`
	File       string            `json:"file,omitempty"`
	Source     catalog.Source    `json:"source"`
	Parameters []ListedParameter `json:"parameters"`
}

type ListReport struct {
	OK       bool           `json:"ok"`
	Scope    preset.Scope   `json:"scope"`
	Source   ListSource     `json:"source"`
	Presets  []ListedPreset `json:"presets"`
	Warnings []string       `json:"warnings"`
}

var sourceOrder = map[catalog.Source]int{
	catalog.SourceLocal:         0,
	catalog.SourceRemote:        1,
	catalog.SourceRemoteCatalog: 2,
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// List collects the presets visible from source. Remote failures are fatal
// only when that remote source was asked for explicitly; otherwise they
// become warnings. Any unreadable local preset fails the listing with
// INVALID_PRESET.
func (r *Runner) List(ctx context.Context, source ListSource) (*ListReport, error) {
	if source == "" {
		source = ListSourceAll
	}
	report := &ListReport{
		OK:       true,
		Scope:    r.workdir.Scope,
		Source:   source,
		Presets:  []ListedPreset{},
		Warnings: []string{},
	}

	if source == ListSourceLocal || source == ListSourceAll {
		if err := r.listLocal(report, source != ListSourceLocal); err != nil {
			return nil, err
		}
	}

	if source == ListSourceRemoteCatalog {
		listing, err := r.catalog.FetchTemplates(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range listing.Names() {
			report.Presets = append(report.Presets, ListedPreset{
				Name:       name,
				Source:     catalog.SourceRemoteCatalog,
				Parameters: []ListedParameter{},
			})
		}
	}

	if source == ListSourceRemote || source == ListSourceAll {
		listing, err := r.catalog.FetchUserdataWorkflows(ctx)
		switch {
		case err != nil && source == ListSourceRemote:
			return nil, err
		case err != nil:
			r.logger.Warn("remote userdata listing failed", "error", err)
			report.Warnings = append(report.Warnings, "failed to list remote workflows: "+err.Error())
		default:
			for _, w := range listing.Workflows {
				report.Presets = append(report.Presets, ListedPreset{
					Name:       w.Name,
					File:       w.File,
					Source:     catalog.SourceRemote,
					Parameters: []ListedParameter{},
				})
			}
		}
	}

	sort.SliceStable(report.Presets, func(i, j int) bool {
		a, b := report.Presets[i], report.Presets[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return sourceOrder[a.Source] < sourceOrder[b.Source]
	})
	return report, nil
}

func (r *Runner) listLocal(report *ListReport, allowMissing bool) error {
	files, err := r.workdir.PresetFiles(allowMissing)
	if err != nil {
		return err
	}
	dir := r.workdir.Subdir(preset.SubdirPresets)

	var failures []map[string]any
	for _, file := range files {
		p, err := preset.LoadFile(filepath.Join(dir, file))
		if err != nil {
			failure := map[string]any{"file": file, "message": err.Error()}
			if ce, ok := comfyerr.As(err); ok {
				failure["message"] = ce.Message
				failure["details"] = ce.Details
			}
			failures = append(failures, failure)
			continue
		}
		listed := ListedPreset{
			Name:       p.Name,
			Workflow:   p.Workflow,
			File:       file,
			Source:     catalog.SourceLocal,
			Parameters: []ListedParameter{},
		}
		for _, name := range p.ParameterNames() {
			def := p.Parameters[name]
			listed.Parameters = append(listed.Parameters, ListedParameter{
				Name:     name,
				Type:     string(def.Type),
				Required: def.Required,
				Default:  def.Default,
			})
		}
		report.Presets = append(report.Presets, listed)
	}

	if len(failures) > 0 {
		return comfyerr.New(comfyerr.InvalidPreset, "some presets could not be read").
			WithDetails(map[string]any{
				"errors": failures,
				"scope":  report.Scope,
				"source": report.Source,
			})
	}
	return nil
}
