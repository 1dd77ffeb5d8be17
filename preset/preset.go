package preset

import (
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/richinsley/comfyagent/internal/xjson"
)

const Version = 1

type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
	ParamJSON   ParamType = "json"
)

func (t ParamType) Valid() bool {
	switch t {
	case ParamString, ParamInt, ParamFloat, ParamBool, ParamJSON:
		return true
	}
	return false
}

type UploadKind string

const (
	UploadImage UploadKind = "image"
	UploadMask  UploadKind = "mask"
)

func (k UploadKind) Valid() bool {
	return k == UploadImage || k == UploadMask
}

// NodeID is a graph node key. Preset files may spell it as a string or a number.
type NodeID string

func (id *NodeID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("node_id must be a string or number")
	}
	switch value.Tag {
	case "!!str", "!!int", "!!float":
		*id = NodeID(value.Value)
		return nil
	}
	return fmt.Errorf("node_id must be a string or number, got %s", value.Tag)
}

func (id *NodeID) UnmarshalJSON(b []byte) error {
	var v any
	if err := xjson.Unmarshal(b, &v); err != nil {
		return err
	}
	s, ok := NodeIDFrom(v)
	if !ok {
		return fmt.Errorf("node_id must be a string or number")
	}
	*id = s
	return nil
}

// NodeIDFrom converts a decoded string or number into a NodeID.
func NodeIDFrom(v any) (NodeID, bool) {
	switch n := v.(type) {
	case string:
		return NodeID(n), true
	case float64:
		return NodeID(strconv.FormatFloat(n, 'f', -1, 64)), true
	case int:
		return NodeID(strconv.Itoa(n)), true
	case int64:
		return NodeID(strconv.FormatInt(n, 10)), true
	}
	return "", false
}

// Target addresses one input of one graph node.
type Target struct {
	NodeID NodeID `yaml:"node_id" json:"node_id"`
	Input  string `yaml:"input" json:"input"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s.%s", t.NodeID, t.Input)
}

type ParameterDef struct {
	Type     ParamType `yaml:"type" json:"type"`
	Target   Target    `yaml:"target" json:"target"`
	Required bool      `yaml:"required,omitempty" json:"required"`
	Default  any       `yaml:"default,omitempty" json:"default,omitempty"`
}

type UploadDef struct {
	Kind    UploadKind `yaml:"kind" json:"kind"`
	CLIFlag string     `yaml:"cli_flag" json:"cli_flag"`
	Target  Target     `yaml:"target" json:"target"`
}

// Preset binds a named workflow to the parameters and uploads exposed on the command line.
type Preset struct {
	Version    int                     `yaml:"version" json:"version"`
	Name       string                  `yaml:"name" json:"name"`
	Workflow   string                  `yaml:"workflow" json:"workflow"`
	Parameters map[string]ParameterDef `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Uploads    map[string]UploadDef    `yaml:"uploads,omitempty" json:"uploads,omitempty"`
}

// ParameterNames returns the declared parameter names in sorted order.
func (p *Preset) ParameterNames() []string {
	return sortedKeys(p.Parameters)
}

// UploadNames returns the declared upload names in sorted order.
func (p *Preset) UploadNames() []string {
	return sortedKeys(p.Uploads)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate returns the list of schema problems, empty when the preset is well formed.
func (p *Preset) Validate() []string {
	var issues []string
	if p.Version != Version {
		issues = append(issues, fmt.Sprintf("version: expected %d, got %d", Version, p.Version))
	}
	if p.Name == "" {
		issues = append(issues, "name: required")
	}
	if p.Workflow == "" {
		issues = append(issues, "workflow: required")
	}
	for _, name := range p.ParameterNames() {
		def := p.Parameters[name]
		if !def.Type.Valid() {
			issues = append(issues, fmt.Sprintf("parameters.%s.type: invalid value %q", name, def.Type))
		}
		issues = append(issues, validateTarget("parameters."+name, def.Target)...)
	}
	for _, name := range p.UploadNames() {
		def := p.Uploads[name]
		if !def.Kind.Valid() {
			issues = append(issues, fmt.Sprintf("uploads.%s.kind: invalid value %q", name, def.Kind))
		}
		if def.CLIFlag == "" {
			issues = append(issues, fmt.Sprintf("uploads.%s.cli_flag: required", name))
		}
		issues = append(issues, validateTarget("uploads."+name, def.Target)...)
	}
	return issues
}

func validateTarget(prefix string, t Target) []string {
	var issues []string
	if t.NodeID == "" {
		issues = append(issues, prefix+".target.node_id: required")
	}
	if t.Input == "" {
		issues = append(issues, prefix+".target.input: required")
	}
	return issues
}
