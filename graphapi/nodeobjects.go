package graphapi

import (
	"sort"
	"strings"

	"github.com/richinsley/comfyagent/preset"
)

// NodeObjects is the server's node class catalog as returned by GET
// /object_info, keyed by class type.
type NodeObjects map[string]*NodeObject

// NodeObject describes one node class.
type NodeObject struct {
	Input       *NodeObjectInput `json:"input,omitempty"`
	Output      []any            `json:"output,omitempty"`
	OutputName  []string         `json:"output_name,omitempty"`
	Name        string           `json:"name"`
	DisplayName string           `json:"display_name,omitempty"`
	Category    string           `json:"category,omitempty"`
	OutputNode  bool             `json:"output_node"`
}

// NodeObjectInput holds the input specs of a class. A spec is usually
// [type, options]; combo inputs spell the type as the list of choices, or
// as "COMBO" in newer servers.
type NodeObjectInput struct {
	Required map[string]any `json:"required,omitempty"`
	Optional map[string]any `json:"optional,omitempty"`
}

// InputType returns the declared socket type of input, with combo lists
// reported as "COMBO".
func (n *NodeObject) InputType(input string) (string, bool) {
	if n == nil || n.Input == nil {
		return "", false
	}
	spec, ok := n.Input.Required[input]
	if !ok {
		spec, ok = n.Input.Optional[input]
	}
	if !ok || spec == nil {
		return "", false
	}
	if list, isList := spec.([]any); isList {
		if len(list) == 0 {
			return "", false
		}
		spec = list[0]
	}
	switch t := spec.(type) {
	case string:
		return t, true
	case []any:
		return "COMBO", true
	}
	return "", false
}

// ParamType maps the declared type of classType.input to a preset
// parameter type. ok is false when the catalog does not know the input.
func (n NodeObjects) ParamType(classType, input string) (preset.ParamType, bool) {
	obj, found := n[classType]
	if !found {
		return "", false
	}
	t, ok := obj.InputType(input)
	if !ok {
		return "", false
	}
	return ParamTypeForSocket(t), true
}

// ParamTypeForSocket maps a socket type name to a parameter type by
// substring: INT, FLOAT or NUMBER, BOOL, then STRING, TEXT or COMBO.
// Anything else is json.
func ParamTypeForSocket(socket string) preset.ParamType {
	upper := strings.ToUpper(socket)
	switch {
	case strings.Contains(upper, "INT"):
		return preset.ParamInt
	case strings.Contains(upper, "FLOAT"), strings.Contains(upper, "NUMBER"):
		return preset.ParamFloat
	case strings.Contains(upper, "BOOL"):
		return preset.ParamBool
	case strings.Contains(upper, "STRING"), strings.Contains(upper, "TEXT"), strings.Contains(upper, "COMBO"):
		return preset.ParamString
	}
	return preset.ParamJSON
}

// OutputNodes returns the class types flagged as output nodes, sorted.
func (n NodeObjects) OutputNodes() []string {
	var out []string
	for name, obj := range n {
		if obj != nil && obj.OutputNode {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
