package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/richinsley/comfyagent/comfyerr"
)

// RemoteTemplate is one entry of the server's template catalog. Raw keeps the
// catalog item as served, with category fields merged in for grouped catalogs.
type RemoteTemplate struct {
	Name string `json:"name"`
	Raw  any    `json:"raw"`
}

// TemplateListing is the merged result of the template endpoints that answered.
type TemplateListing struct {
	Templates []RemoteTemplate
	Endpoint  string
	Endpoints []string
}

// Find returns the template called name.
func (l *TemplateListing) Find(name string) (RemoteTemplate, bool) {
	for _, t := range l.Templates {
		if t.Name == name {
			return t, true
		}
	}
	return RemoteTemplate{}, false
}

// Names lists the template names in catalog order.
func (l *TemplateListing) Names() []string {
	names := make([]string, 0, len(l.Templates))
	for _, t := range l.Templates {
		names = append(names, t.Name)
	}
	return names
}

var reservedTemplateKeys = map[string]bool{
	"templates":  true,
	"items":      true,
	"workflows":  true,
	"data":       true,
	"categories": true,
}

type templateSet struct {
	order  []string
	byName map[string]RemoteTemplate
}

func newTemplateSet() *templateSet {
	return &templateSet{byName: make(map[string]RemoteTemplate)}
}

func (s *templateSet) has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// add keeps the first template seen for a name.
func (s *templateSet) add(t RemoteTemplate, ok bool) {
	if !ok || s.has(t.Name) {
		return
	}
	s.byName[t.Name] = t
	s.order = append(s.order, t.Name)
}

func (s *templateSet) sorted() []RemoteTemplate {
	out := make([]RemoteTemplate, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func nonEmptyString(v any) string {
	s, _ := v.(string)
	return s
}

func pickTemplateName(obj map[string]any) string {
	for _, key := range []string{"name", "template_name", "id"} {
		if s := nonEmptyString(obj[key]); s != "" {
			return s
		}
	}
	return ""
}

func toTemplate(v any) (RemoteTemplate, bool) {
	if s := nonEmptyString(v); s != "" {
		return RemoteTemplate{Name: s, Raw: map[string]any{"name": s}}, true
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return RemoteTemplate{}, false
	}
	name := pickTemplateName(obj)
	if name == "" {
		return RemoteTemplate{}, false
	}
	return RemoteTemplate{Name: name, Raw: obj}, true
}

func categoryFields(category map[string]any) map[string]any {
	label := nonEmptyString(category["title"])
	if label == "" {
		label = nonEmptyString(category["moduleName"])
	}
	fields := map[string]any{}
	if label != "" {
		fields["category"] = label
	}
	if typ := nonEmptyString(category["type"]); typ != "" {
		fields["category_type"] = typ
	}
	return fields
}

func toCategoryTemplate(category map[string]any, v any) (RemoteTemplate, bool) {
	var raw map[string]any
	var name string
	if s := nonEmptyString(v); s != "" {
		name = s
		raw = map[string]any{"name": s}
	} else {
		item, ok := v.(map[string]any)
		if !ok {
			return RemoteTemplate{}, false
		}
		if name = pickTemplateName(item); name == "" {
			return RemoteTemplate{}, false
		}
		raw = make(map[string]any, len(item)+2)
		for k, val := range item {
			raw[k] = val
		}
	}
	for k, val := range categoryFields(category) {
		raw[k] = val
	}
	return RemoteTemplate{Name: name, Raw: raw}, true
}

func (s *templateSet) addArray(v any) {
	items, ok := v.([]any)
	if !ok {
		return
	}
	for _, item := range items {
		s.add(toTemplate(item))
	}
}

func (s *templateSet) addCategories(v any) {
	items, ok := v.([]any)
	if !ok {
		return
	}
	for _, item := range items {
		category, ok := item.(map[string]any)
		if !ok {
			continue
		}
		nested, ok := category["templates"].([]any)
		if !ok {
			continue
		}
		for _, t := range nested {
			s.add(toCategoryTemplate(category, t))
		}
	}
}

// ExtractTemplates reads a catalog payload in any of the shapes servers
// publish: a flat array, an array of categories, an object with template
// arrays, or an object keyed by template name. Names are unique, first
// occurrence wins, and the result is sorted by name.
func ExtractTemplates(payload any) []RemoteTemplate {
	set := newTemplateSet()

	switch p := payload.(type) {
	case []any:
		set.addArray(p)
		set.addCategories(p)
	case map[string]any:
		for _, key := range []string{"templates", "items", "workflows", "data", "categories"} {
			set.addArray(p[key])
		}
		set.addCategories(p["categories"])

		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if reservedTemplateKeys[key] || set.has(key) {
				continue
			}
			switch p[key].(type) {
			case map[string]any, []any:
				set.add(RemoteTemplate{Name: key, Raw: p[key]}, true)
			}
		}

		set.add(toTemplate(p))
	}
	return set.sorted()
}

// FetchTemplates queries every template endpoint and merges the answers in
// endpoint order. It fails only when no endpoint answered.
func (r *Resolver) FetchTemplates(ctx context.Context) (*TemplateListing, error) {
	set := newTemplateSet()
	var attempts []Attempt
	var ok []string

	for _, res := range r.fetchAll(ctx, TemplateEndpoints) {
		if res.err != nil {
			attempts = append(attempts, failedAttempt(res))
			continue
		}
		ok = append(ok, res.endpoint)
		for _, t := range ExtractTemplates(res.payload) {
			set.add(t, true)
		}
	}

	if len(ok) == 0 {
		return nil, comfyerr.New(comfyerr.RemoteTemplateFetchFailed, "failed to fetch remote templates from every endpoint").
			WithDetails(map[string]any{"attempts": attemptDetails(attempts)})
	}
	r.logger.Debug("fetched remote templates", "endpoints", ok, "count", len(set.order))
	return &TemplateListing{
		Templates: set.sorted(),
		Endpoint:  strings.Join(ok, ", "),
		Endpoints: ok,
	}, nil
}

// FindTemplate fetches the catalog and looks up name. A nil template with a
// nil error means the catalog answered but does not list the name.
func (r *Resolver) FindTemplate(ctx context.Context, name string) (*RemoteTemplate, *TemplateListing, error) {
	listing, err := r.FetchTemplates(ctx)
	if err != nil {
		return nil, nil, err
	}
	t, found := listing.Find(name)
	if !found {
		return nil, listing, nil
	}
	return &t, listing, nil
}
