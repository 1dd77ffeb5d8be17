package graphapi

import (
	"sort"
	"strconv"

	"github.com/richinsley/comfyagent/internal/xjson"
)

// Graph is the canonical execution form: node id -> node.
type Graph map[string]*Node

// Node is one executable node of a canonical graph.
//
// Inputs values are either literals or link references of the form
// [sourceNodeID string, outputSlot int].
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      map[string]any `json:"_meta,omitempty"`
	// Extra holds node keys the runner does not interpret. They are
	// written back unchanged.
	Extra map[string]any `json:"-"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(n.Extra)+3)
	for k, v := range n.Extra {
		m[k] = v
	}
	m["class_type"] = n.ClassType
	if _, raw := n.Extra["inputs"]; !raw || n.Inputs != nil {
		m["inputs"] = n.Inputs
	}
	if n.Meta != nil {
		m["_meta"] = n.Meta
	}
	return xjson.Marshal(m)
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := xjson.Unmarshal(data, &m); err != nil {
		return err
	}
	*n = *nodeFromTree(m)
	return nil
}

// Title returns the annotation title, if any.
func (n *Node) Title() string {
	if n.Meta == nil {
		return ""
	}
	s, _ := n.Meta["title"].(string)
	return s
}

func (n *Node) clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{ClassType: n.ClassType}
	if n.Inputs != nil {
		out.Inputs = deepCopyValue(n.Inputs).(map[string]any)
	}
	if n.Meta != nil {
		out.Meta = deepCopyValue(n.Meta).(map[string]any)
	}
	if n.Extra != nil {
		out.Extra = deepCopyValue(n.Extra).(map[string]any)
	}
	return out
}

// Clone returns a deep copy of the graph. Patching always works on a clone.
func (g Graph) Clone() Graph {
	if g == nil {
		return nil
	}
	out := make(Graph, len(g))
	for id, n := range g {
		out[id] = n.clone()
	}
	return out
}

// NodeIDs returns node ids in ascending numeric order; non-numeric ids sort
// lexically after numeric ones.
func (g Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aerr := strconv.ParseInt(ids[i], 10, 64)
		b, berr := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		}
		return ids[i] < ids[j]
	})
	return ids
}

// LinkRef builds the reference to an output slot of another node.
func LinkRef(nodeID string, slot int) []any {
	return []any{nodeID, slot}
}

// ParseLinkRef decodes an input value that references another node's output.
func ParseLinkRef(v any) (string, int, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return "", 0, false
	}
	id, ok := arr[0].(string)
	if !ok {
		return "", 0, false
	}
	slot, ok := AsInteger(arr[1])
	if !ok {
		return "", 0, false
	}
	return id, int(slot), true
}

// IsCanonical reports whether doc has the canonical shape: a non-empty map
// whose every value carries a string class_type and inputs.
func IsCanonical(doc any) bool {
	switch g := doc.(type) {
	case Graph:
		return canonicalGraph(g)
	case map[string]*Node:
		return canonicalGraph(Graph(g))
	case map[string]any:
		if len(g) == 0 {
			return false
		}
		for _, v := range g {
			if !isCanonicalNode(v) {
				return false
			}
		}
		return true
	}
	return false
}

func canonicalGraph(g Graph) bool {
	if len(g) == 0 {
		return false
	}
	for _, n := range g {
		if n == nil {
			return false
		}
	}
	return true
}

func isCanonicalNode(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, hasClass := m["class_type"].(string)
	_, hasInputs := m["inputs"]
	return hasClass && hasInputs
}

// graphFromTree converts a canonical decoded tree into a Graph without
// altering node content.
func graphFromTree(tree map[string]any) Graph {
	g := make(Graph, len(tree))
	for id, v := range tree {
		g[id] = nodeFromTree(v.(map[string]any))
	}
	return g
}

// nodeFromTree keeps every key it cannot type in Extra, so a node
// round-trips without loss.
func nodeFromTree(m map[string]any) *Node {
	n := &Node{}
	for k, v := range m {
		var ok bool
		switch k {
		case "class_type":
			n.ClassType, ok = v.(string)
		case "inputs":
			n.Inputs, ok = v.(map[string]any)
		case "_meta":
			n.Meta, ok = v.(map[string]any)
		}
		if ok {
			continue
		}
		if n.Extra == nil {
			n.Extra = make(map[string]any)
		}
		n.Extra[k] = v
	}
	return n
}
