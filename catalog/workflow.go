package catalog

import (
	"context"
	"net/url"
	"strings"

	"github.com/richinsley/comfyagent/client"
	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/graphapi"
)

// RemoteWorkflowPlaceholder stands in for the workflow file name of presets
// that were built from a remote source.
const RemoteWorkflowPlaceholder = "(remote)"

var (
	templatePathKeys = []string{"workflow_path", "workflowPath", "path", "file", "filename", "url", "template_url"}
	userdataPathKeys = []string{"workflow_path", "workflowPath", "path", "file", "filename"}
)

type ResolveOptions struct {
	// PreferUserdata tries userdata locations before template locations.
	PreferUserdata bool
}

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func normalizeCandidate(v any) graphapi.Graph {
	if v == nil {
		return nil
	}
	g, err := graphapi.Normalize(v)
	if err != nil {
		return nil
	}
	return g
}

// ResolveWorkflow produces the canonical graph of a remote template. The
// template itself, then its workflow and prompt fields, are tried first. After
// that candidate locations on the server are fetched one at a time until one
// returns a graph.
func (r *Resolver) ResolveWorkflow(ctx context.Context, name string, rawTemplate any, opts ResolveOptions) (graphapi.Graph, error) {
	if g := normalizeCandidate(rawTemplate); g != nil {
		return g, nil
	}
	raw := asObject(rawTemplate)
	if raw == nil {
		raw = map[string]any{}
	}
	if g := normalizeCandidate(raw["workflow"]); g != nil {
		return g, nil
	}
	if g := normalizeCandidate(raw["prompt"]); g != nil {
		return g, nil
	}

	userdataPaths := r.userdataWorkflowPaths(ctx, name, raw)
	templatePaths := templateWorkflowPaths(name, raw)
	groups := [][]string{templatePaths, userdataPaths}
	if opts.PreferUserdata {
		groups = [][]string{userdataPaths, templatePaths}
	}

	var tried []string
	for _, group := range groups {
		for _, p := range group {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tried = append(tried, p)
			payload, err := r.getter.GetJSON(ctx, p, client.ListingRetry)
			if err != nil {
				continue
			}
			if g := normalizeCandidate(payload); g != nil {
				r.logger.Debug("resolved remote workflow", "template", name, "path", p)
				return g, nil
			}
		}
	}

	return nil, comfyerr.Newf(comfyerr.RemoteWorkflowNotFound, "could not locate a workflow for remote template %q", name).
		WithDetails(map[string]any{"template": name, "tried_paths": tried})
}

type orderedSet struct {
	items []string
	seen  map[string]bool
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(v string) {
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}

func normalizeTemplatePath(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false
		}
		p := u.EscapedPath()
		if u.RawQuery != "" {
			p += "?" + u.RawQuery
		}
		return p, true
	}
	if strings.HasPrefix(raw, "/") {
		return raw, true
	}
	return "/" + raw, true
}

// templateWorkflowPaths lists the template-area locations for a template's workflow.
func templateWorkflowPaths(name string, raw map[string]any) []string {
	candidates := newOrderedSet()
	for _, key := range templatePathKeys {
		if p, ok := normalizeTemplatePath(nonEmptyString(raw[key])); ok {
			candidates.add(p)
		}
	}

	module := nonEmptyString(raw["module_name"])
	if module == "" {
		module = nonEmptyString(raw["moduleName"])
	}
	if module != "" {
		candidates.add("/templates/" + module + "/" + name + ".json")
		candidates.add("/api/workflow_templates/" + module + "/" + name + ".json")
	}
	candidates.add("/templates/" + name + ".json")
	candidates.add("/api/workflow_templates/" + name + ".json")

	out := newOrderedSet()
	for _, p := range candidates.items {
		out.add(p)
		if !strings.HasSuffix(p, ".json") {
			out.add(p + ".json")
		}
	}
	return out.items
}

// userdataWorkflowPaths lists the userdata-area locations for a template's
// workflow. Listing failures only shrink the candidate list.
func (r *Resolver) userdataWorkflowPaths(ctx context.Context, name string, raw map[string]any) []string {
	files := newOrderedSet()
	for _, key := range userdataPathKeys {
		if p, ok := NormalizeUserdataFilePath(nonEmptyString(raw[key])); ok {
			files.add(p)
		}
	}
	for _, n := range templateNames(name, raw) {
		files.add(n + ".json")
		files.add("workflows/" + n + ".json")
	}
	for _, res := range r.fetchAll(ctx, UserdataListEndpoints) {
		if res.err != nil {
			continue
		}
		for _, candidate := range ExtractUserdataCandidates(res.payload, name, raw) {
			files.add(ApplyWorkflowsDirContext(candidate, res.endpoint))
		}
	}

	paths := newOrderedSet()
	for _, file := range files.items {
		encoded := encodeURIComponent(file)
		doubleEncoded := encodeURIComponent(encoded)
		segments := strings.Split(file, "/")
		for i, s := range segments {
			segments[i] = encodeURIComponent(s)
		}
		perSegment := strings.Join(segments, "/")
		for _, endpoint := range userdataFileEndpoints {
			paths.add(endpoint + encoded)
			paths.add(endpoint + doubleEncoded)
			paths.add(endpoint + perSegment)
		}
	}
	return paths.items
}

var componentUnescapes = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeURIComponent escapes everything except A-Z a-z 0-9 and -_.!~*'()
// so paths match what browser-based clients send.
func encodeURIComponent(s string) string {
	return componentUnescapes.Replace(url.QueryEscape(s))
}
