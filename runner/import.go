package runner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/graphapi"
	"github.com/richinsley/comfyagent/internal/xjson"
	"github.com/richinsley/comfyagent/preset"
)

// ObjectInfoCacheFile holds /object_info snapshots keyed by base URL, under
// the workdir cache directory.
const ObjectInfoCacheFile = "object_info.json"

// Where Import got its node class catalog from.
const (
	ObjectInfoFromCache       = "cache"
	ObjectInfoFromServer      = "server"
	ObjectInfoFromUnavailable = "unavailable"
)

var presetNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type ImportOptions struct {
	Name string
	// Force overwrites an existing workflow or preset file.
	Force bool
}

type ImportReport struct {
	OK           bool         `json:"ok"`
	Name         string       `json:"name"`
	Scope        preset.Scope `json:"scope"`
	WorkflowPath string       `json:"workflow_path"`
	PresetPath   string       `json:"preset_path"`
	Parameters   int          `json:"parameters"`
	ObjectInfo   string       `json:"object_info"`
}

// Import normalizes the workflow at path, stores it in the workdir and
// drafts a preset exposing every literal input. Parameter types come from
// the server's node catalog when it can be fetched, else from the values.
func (r *Runner) Import(ctx context.Context, path string, opts ImportOptions) (*ImportReport, error) {
	if opts.Name == "" {
		return nil, comfyerr.New(comfyerr.InvalidName, "preset name is required")
	}
	if !presetNamePattern.MatchString(opts.Name) {
		return nil, comfyerr.New(comfyerr.InvalidName, "preset name may only contain letters, digits, _ and -").
			WithDetails(map[string]any{"name": opts.Name})
	}
	if err := r.workdir.Ensure(); err != nil {
		return nil, err
	}

	g, err := graphapi.NormalizeFile(path)
	if err != nil {
		return nil, err
	}

	workflowFile := opts.Name + ".json"
	workflowPath := filepath.Join(r.workdir.Subdir(preset.SubdirWorkflows), workflowFile)
	presetPath := filepath.Join(r.workdir.Subdir(preset.SubdirPresets), opts.Name+".yaml")
	if !opts.Force {
		for _, p := range []string{workflowPath, presetPath} {
			if err := refuseExisting(p); err != nil {
				return nil, err
			}
		}
	}

	objects, origin := r.nodeObjects(ctx)
	draft := graphapi.BuildPreset(opts.Name, workflowFile, g, objects)

	workflowData, err := xjson.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, err
	}
	presetData, err := preset.Marshal(draft)
	if err != nil {
		return nil, err
	}
	if err := writeWorkdirFile(workflowPath, append(workflowData, '\n')); err != nil {
		return nil, err
	}
	if err := writeWorkdirFile(presetPath, presetData); err != nil {
		return nil, err
	}
	r.logger.Info("imported workflow", "preset", opts.Name, "parameters", len(draft.Parameters), "object_info", origin)

	return &ImportReport{
		OK:           true,
		Name:         opts.Name,
		Scope:        r.workdir.Scope,
		WorkflowPath: workflowPath,
		PresetPath:   presetPath,
		Parameters:   len(draft.Parameters),
		ObjectInfo:   origin,
	}, nil
}

func refuseExisting(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return comfyerr.Newf(comfyerr.FileExists, "%s already exists, use --force to overwrite", path).
			WithDetails(map[string]any{"path": path})
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func writeWorkdirFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// nodeObjects returns the node catalog for the current server, from the
// workdir cache when present. A server that cannot be reached yields nil.
func (r *Runner) nodeObjects(ctx context.Context) (graphapi.NodeObjects, string) {
	cachePath := filepath.Join(r.workdir.Subdir(preset.SubdirCache), ObjectInfoCacheFile)
	baseURL := r.client.BaseURL()

	cache := map[string]graphapi.NodeObjects{}
	if data, err := os.ReadFile(cachePath); err == nil {
		if err := xjson.Unmarshal(data, &cache); err != nil {
			r.logger.Warn("ignoring unreadable object_info cache", "path", cachePath, "error", err)
			cache = map[string]graphapi.NodeObjects{}
		}
	}
	if objects, ok := cache[baseURL]; ok && len(objects) > 0 {
		return objects, ObjectInfoFromCache
	}

	objects, err := r.client.ObjectInfo(ctx)
	if err != nil {
		r.logger.Warn("object_info unavailable, inferring parameter types from values", "error", err)
		return nil, ObjectInfoFromUnavailable
	}
	cache[baseURL] = objects
	data, err := xjson.MarshalIndent(cache, "", "  ")
	if err == nil {
		err = writeWorkdirFile(cachePath, append(data, '\n'))
	}
	if err != nil {
		r.logger.Warn("failed to write object_info cache", "path", cachePath, "error", err)
	}
	return objects, ObjectInfoFromServer
}
