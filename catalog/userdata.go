package catalog

import (
	"context"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/richinsley/comfyagent/comfyerr"
)

// RemoteUserdataWorkflow is a workflow file saved in the server's userdata area.
type RemoteUserdataWorkflow struct {
	Name string `json:"name"`
	File string `json:"file"`
}

// UserdataListing is the merged result of the userdata endpoints that answered.
type UserdataListing struct {
	Workflows []RemoteUserdataWorkflow
	Endpoint  string
	Endpoints []string
}

// Find returns the workflow called name.
func (l *UserdataListing) Find(name string) (RemoteUserdataWorkflow, bool) {
	for _, w := range l.Workflows {
		if w.Name == name {
			return w, true
		}
	}
	return RemoteUserdataWorkflow{}, false
}

func (l *UserdataListing) Names() []string {
	names := make([]string, 0, len(l.Workflows))
	for _, w := range l.Workflows {
		names = append(names, w.Name)
	}
	return names
}

var userdataPrefixes = []string{
	"/userdata/",
	"/api/userdata/",
	"/v2/userdata/",
	"/api/v2/userdata/",
}

var (
	userdataDirKeys  = []string{"subfolder", "folder", "dir", "directory", "parent"}
	userdataFileKeys = []string{"filename", "file", "name", "path", "filepath"}
)

const maxUserdataDepth = 8

func stripUserdataPrefix(v string) string {
	for _, prefix := range userdataPrefixes {
		if i := strings.Index(v, prefix); i >= 0 {
			return v[i+len(prefix):]
		}
	}
	return v
}

func normalizePathBase(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if decoded, err := url.PathUnescape(v); err == nil {
		v = decoded
	}
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		u, err := url.Parse(v)
		if err != nil {
			return ""
		}
		v = u.Path
	}
	v = stripUserdataPrefix(v)
	if i := strings.IndexByte(v, '?'); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimPrefix(v, "./")
	return strings.TrimLeft(v, "/")
}

// NormalizeUserdataFilePath reduces a listing entry, URL or API path to a
// path relative to the userdata root. Only .json files are accepted.
func NormalizeUserdataFilePath(raw string) (string, bool) {
	v := normalizePathBase(raw)
	if v == "" || !strings.HasSuffix(strings.ToLower(v), ".json") {
		return "", false
	}
	return v, true
}

// NormalizeUserdataDirPath is NormalizeUserdataFilePath for directories.
func NormalizeUserdataDirPath(raw string) (string, bool) {
	v := strings.TrimRight(normalizePathBase(raw), "/")
	return v, v != ""
}

// CollectUserdataJSONPaths walks a listing payload and returns every .json
// path it can find: plain strings, directory and file field pairs, and object
// keys that look like paths.
func CollectUserdataJSONPaths(payload any) []string {
	found := make(map[string]bool)
	collectUserdataJSONPaths(payload, found, 0)
	out := make([]string, 0, len(found))
	for p := range found {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func collectUserdataJSONPaths(v any, out map[string]bool, depth int) {
	if depth > maxUserdataDepth {
		return
	}
	switch val := v.(type) {
	case string:
		if p, ok := NormalizeUserdataFilePath(val); ok {
			out[p] = true
		}
	case []any:
		for _, item := range val {
			collectUserdataJSONPaths(item, out, depth+1)
		}
	case map[string]any:
		var dirs, files []string
		for _, key := range userdataDirKeys {
			if d, ok := NormalizeUserdataDirPath(nonEmptyString(val[key])); ok {
				dirs = append(dirs, d)
			}
		}
		for _, key := range userdataFileKeys {
			if f := nonEmptyString(val[key]); f != "" {
				files = append(files, f)
			}
		}
		for _, d := range dirs {
			for _, f := range files {
				if p, ok := NormalizeUserdataFilePath(d + "/" + f); ok {
					out[p] = true
				}
			}
		}
		for key, entry := range val {
			if p, ok := NormalizeUserdataFilePath(key); ok {
				out[p] = true
			}
			collectUserdataJSONPaths(entry, out, depth+1)
		}
	}
}

// EndpointUsesWorkflowsDir reports whether a listing endpoint returns paths
// relative to the workflows directory.
func EndpointUsesWorkflowsDir(endpoint string) bool {
	return strings.Contains(endpoint, "dir=workflows") || strings.Contains(endpoint, "path=workflows")
}

// ApplyWorkflowsDirContext makes a path from a workflows-scoped listing
// relative to the userdata root.
func ApplyWorkflowsDirContext(file, endpoint string) string {
	if !EndpointUsesWorkflowsDir(endpoint) {
		return file
	}
	file = strings.TrimLeft(file, "/")
	if strings.HasPrefix(file, "workflows/") {
		return file
	}
	return "workflows/" + file
}

// UserdataWorkflowName is the file's base name without the .json extension.
func UserdataWorkflowName(file string) string {
	leaf := path.Base(strings.ReplaceAll(file, "\\", "/"))
	if strings.HasSuffix(strings.ToLower(leaf), ".json") {
		leaf = leaf[:len(leaf)-len(".json")]
	}
	return leaf
}

// ScoreUserdataFile ranks competing files for the same workflow name;
// paths inside a workflows directory win.
func ScoreUserdataFile(file string) int {
	v := strings.ToLower(strings.ReplaceAll(file, "\\", "/"))
	score := 0
	if strings.Contains(v, "/") {
		score += 50
	}
	if strings.HasPrefix(v, "workflows/") {
		score += 100
	}
	if strings.Contains(v, "/workflows/") {
		score += 80
	}
	return score + min(len(v), 60)
}

type workflowSet map[string]RemoteUserdataWorkflow

func (s workflowSet) add(w RemoteUserdataWorkflow) {
	existing, ok := s[w.Name]
	if !ok || ScoreUserdataFile(w.File) > ScoreUserdataFile(existing.File) {
		s[w.Name] = w
	}
}

func (s workflowSet) sorted() []RemoteUserdataWorkflow {
	out := make([]RemoteUserdataWorkflow, 0, len(s))
	for _, w := range s {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ExtractUserdataWorkflows lists the workflows of one listing payload, one
// entry per name. Hidden files are skipped.
func ExtractUserdataWorkflows(payload any) []RemoteUserdataWorkflow {
	set := workflowSet{}
	for _, file := range CollectUserdataJSONPaths(payload) {
		name := UserdataWorkflowName(file)
		if name == "" || strings.HasPrefix(name, ".") {
			continue
		}
		set.add(RemoteUserdataWorkflow{Name: name, File: file})
	}
	return set.sorted()
}

// FetchUserdataWorkflows queries every userdata listing endpoint and merges
// the answers. It fails only when no endpoint answered.
func (r *Resolver) FetchUserdataWorkflows(ctx context.Context) (*UserdataListing, error) {
	set := workflowSet{}
	var attempts []Attempt
	var ok []string

	for _, res := range r.fetchAll(ctx, UserdataListEndpoints) {
		if res.err != nil {
			attempts = append(attempts, failedAttempt(res))
			continue
		}
		ok = append(ok, res.endpoint)
		for _, w := range ExtractUserdataWorkflows(res.payload) {
			w.File = ApplyWorkflowsDirContext(w.File, res.endpoint)
			set.add(w)
		}
	}

	if len(ok) == 0 {
		return nil, comfyerr.New(comfyerr.RemoteUserdataFetchFailed, "failed to fetch remote userdata workflows from every endpoint").
			WithDetails(map[string]any{"attempts": attemptDetails(attempts)})
	}
	r.logger.Debug("fetched remote userdata workflows", "endpoints", ok, "count", len(set))
	return &UserdataListing{
		Workflows: set.sorted(),
		Endpoint:  strings.Join(ok, ", "),
		Endpoints: ok,
	}, nil
}

// templateNames are the names a template may be saved under.
func templateNames(name string, raw map[string]any) []string {
	var names []string
	seen := map[string]bool{}
	for _, n := range []string{name, nonEmptyString(raw["name"]), nonEmptyString(raw["title"])} {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names
}

func templateKeywords(name string, raw map[string]any) []string {
	var keywords []string
	seen := map[string]bool{}
	for _, n := range templateNames(name, raw) {
		k := strings.ToLower(n)
		if !seen[k] {
			seen[k] = true
			keywords = append(keywords, k)
		}
	}
	return keywords
}

func scoreUserdataCandidate(candidate string, keywords []string) int {
	v := strings.ToLower(candidate)
	score := 0
	if strings.HasPrefix(v, "workflows/") {
		score += 20
	}
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if v == k+".json" {
			score += 80
		}
		if strings.HasSuffix(v, "/"+k+".json") {
			score += 60
		}
		if strings.Contains(v, k) {
			score += 20
		}
	}
	return score
}

// ExtractUserdataCandidates returns the .json paths of a listing payload that
// mention the template, best match first.
func ExtractUserdataCandidates(payload any, name string, raw map[string]any) []string {
	keywords := templateKeywords(name, raw)
	var matched []string
	for _, p := range CollectUserdataJSONPaths(payload) {
		lower := strings.ToLower(p)
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				matched = append(matched, p)
				break
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		si, sj := scoreUserdataCandidate(matched[i], keywords), scoreUserdataCandidate(matched[j], keywords)
		if si != sj {
			return si > sj
		}
		return matched[i] < matched[j]
	})
	return matched
}
