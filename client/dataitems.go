package client

import (
	"sort"
	"strconv"
)

// OutputFileRef identifies a file produced by a job, as listed in history outputs.
type OutputFileRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Key is the identity used for de-duplication.
func (r OutputFileRef) Key() string {
	return r.Type + "|" + r.Subfolder + "|" + r.Filename
}

// media keys are read first so their files keep their leading position
var outputProviderKeys = []string{"images", "videos", "gifs", "audios", "audio"}

// ExtractOutputFiles lists the output files of a history entry, de-duplicated
// by (type, subfolder, filename) keeping the first occurrence.
func ExtractOutputFiles(entry any) []OutputFileRef {
	e, ok := entry.(map[string]any)
	if !ok {
		return nil
	}
	outputs, ok := e["outputs"].(map[string]any)
	if !ok {
		return nil
	}

	var files []OutputFileRef
	for _, id := range sortedNodeKeys(outputs) {
		nodeOutput, ok := outputs[id].(map[string]any)
		if !ok {
			continue
		}
		files = append(files, nodeOutputFiles(nodeOutput)...)
	}
	return dedupeOutputs(files)
}

func nodeOutputFiles(nodeOutput map[string]any) []OutputFileRef {
	var files []OutputFileRef
	for _, key := range outputProviderKeys {
		files = append(files, fileRefs(nodeOutput[key])...)
	}
	keys := make([]string, 0, len(nodeOutput))
	for k := range nodeOutput {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		files = append(files, fileRefs(nodeOutput[k])...)
	}
	return dedupeOutputs(files)
}

func fileRefs(v any) []OutputFileRef {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var refs []OutputFileRef
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["filename"].(string)
		if name == "" {
			continue
		}
		ref := OutputFileRef{Filename: name}
		ref.Subfolder, _ = m["subfolder"].(string)
		ref.Type, _ = m["type"].(string)
		refs = append(refs, ref)
	}
	return refs
}

func dedupeOutputs(files []OutputFileRef) []OutputFileRef {
	seen := make(map[string]bool, len(files))
	var unique []OutputFileRef
	for _, f := range files {
		if seen[f.Key()] {
			continue
		}
		seen[f.Key()] = true
		unique = append(unique, f)
	}
	return unique
}

// HistoryEntry selects the entry for promptID from a history response. Servers
// that return the bare entry are handled by returning the whole document.
func HistoryEntry(history any, promptID string) any {
	m, ok := history.(map[string]any)
	if !ok {
		return nil
	}
	if entry, ok := m[promptID]; ok {
		return entry
	}
	return history
}

// sortedNodeKeys orders numeric keys ascending ahead of other keys.
func sortedNodeKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(keys[i])
		b, berr := strconv.Atoi(keys[j])
		if aerr == nil && berr == nil {
			return a < b
		}
		if (aerr == nil) != (berr == nil) {
			return aerr == nil
		}
		return keys[i] < keys[j]
	})
	return keys
}

type SystemStats struct {
	System  System `json:"system"`
	Devices []GPU  `json:"devices"`
}

type System struct {
	OS             string `json:"os"`
	PythonVersion  string `json:"python_version"`
	EmbeddedPython bool   `json:"embedded_python"`
	ComfyUIVersion string `json:"comfyui_version,omitempty"`
}

type GPU struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Index          int    `json:"index"`
	VRAMTotal      int64  `json:"vram_total"`
	VRAMFree       int64  `json:"vram_free"`
	TorchVRAMTotal int64  `json:"torch_vram_total"`
	TorchVRAMFree  int64  `json:"torch_vram_free"`
}
