package preset

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/richinsley/comfyagent/comfyerr"
)

const (
	WorkDirName = ".comfy-agent"

	SubdirWorkflows = "workflows"
	SubdirPresets   = "presets"
	SubdirOutputs   = "outputs"
	SubdirCache     = "cache"
)

var Subdirs = []string{SubdirWorkflows, SubdirPresets, SubdirOutputs, SubdirCache}

type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeGlobal Scope = "global"
)

func ScopeFor(global bool) Scope {
	if global {
		return ScopeGlobal
	}
	return ScopeLocal
}

// Workdir locates the working directory tree for a scope.
type Workdir struct {
	Scope Scope
	Root  string
}

// NewWorkdir resolves the workdir root: cwd/.comfy-agent for local scope,
// ~/.config/.comfy-agent for global scope.
func NewWorkdir(scope Scope, cwd string) (*Workdir, error) {
	if scope == ScopeGlobal {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		return &Workdir{Scope: scope, Root: filepath.Join(home, ".config", WorkDirName)}, nil
	}
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cwd = wd
	}
	return &Workdir{Scope: ScopeLocal, Root: filepath.Join(cwd, WorkDirName)}, nil
}

func (w *Workdir) Subdir(name string) string {
	return filepath.Join(w.Root, name)
}

// Ensure fails with WORKDIR_NOT_FOUND when the root is missing or not a directory.
func (w *Workdir) Ensure() error {
	st, err := os.Stat(w.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return comfyerr.New(comfyerr.WorkdirNotFound, "working directory not found, run init first").
				WithDetails(map[string]any{"path": w.Root})
		}
		return err
	}
	if !st.IsDir() {
		return comfyerr.New(comfyerr.WorkdirNotFound, "working directory is not a directory").
			WithDetails(map[string]any{"path": w.Root})
	}
	return nil
}

// PresetPath finds <presets>/<name>.yaml, then .yml.
func (w *Workdir) PresetPath(name string) (string, error) {
	base := filepath.Join(w.Subdir(SubdirPresets), name)
	for _, candidate := range []string{base + ".yaml", base + ".yml"} {
		st, err := os.Stat(candidate)
		if err == nil && st.Mode().IsRegular() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", comfyerr.Newf(comfyerr.PresetNotFound, "preset %q not found", name).
		WithDetails(map[string]any{"preset": name})
}

// WorkflowPath resolves a preset's workflow file relative to the workflows dir.
func (w *Workdir) WorkflowPath(p *Preset) string {
	if filepath.IsAbs(p.Workflow) {
		return p.Workflow
	}
	return filepath.Join(w.Subdir(SubdirWorkflows), p.Workflow)
}

// PresetFiles lists the YAML file names in the presets dir. A missing dir is
// WORKDIR_NOT_FOUND unless allowMissing is set.
func (w *Workdir) PresetFiles(allowMissing bool) ([]string, error) {
	dir := w.Subdir(SubdirPresets)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if allowMissing {
				return nil, nil
			}
			return nil, comfyerr.New(comfyerr.WorkdirNotFound, "presets directory not found").
				WithDetails(map[string]any{"path": dir})
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

type PathState struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	IsDir    bool   `json:"is_dir"`
	Writable bool   `json:"writable"`
}

// Inspect reports the state of the root and each subdir.
func (w *Workdir) Inspect() (PathState, map[string]PathState) {
	subdirs := make(map[string]PathState, len(Subdirs))
	for _, name := range Subdirs {
		subdirs[name] = inspectPath(w.Subdir(name))
	}
	return inspectPath(w.Root), subdirs
}

func inspectPath(path string) PathState {
	st := PathState{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		return st
	}
	st.Exists = true
	st.IsDir = info.IsDir()
	if st.IsDir {
		f, err := os.CreateTemp(path, ".probe-*")
		if err == nil {
			st.Writable = true
			name := f.Name()
			f.Close()
			os.Remove(name)
		}
	}
	return st
}
