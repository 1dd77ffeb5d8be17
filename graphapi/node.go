package graphapi

// EditorNode is a node of the editor (UI) serialization.
type EditorNode struct {
	ID           int64
	Type         string
	Title        string
	Inputs       []EditorSlot
	WidgetValues []any
}

// IsAnnotation reports whether the node is a canvas note that never executes.
func (n *EditorNode) IsAnnotation() bool {
	switch n.Type {
	case "MarkdownNote", "Note":
		return true
	}
	return false
}

// parseEditorNode accepts nodes with an integer id and a non-empty type.
func parseEditorNode(v any) (*EditorNode, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	id, ok := AsInteger(m["id"])
	if !ok {
		return nil, false
	}
	typ, _ := m["type"].(string)
	if typ == "" {
		return nil, false
	}
	n := &EditorNode{ID: id, Type: typ}
	n.Title, _ = m["title"].(string)
	if inputs, ok := m["inputs"].([]any); ok {
		for _, raw := range inputs {
			if s, ok := parseEditorSlot(raw); ok {
				n.Inputs = append(n.Inputs, s)
			}
		}
	}
	n.WidgetValues, _ = m["widgets_values"].([]any)
	return n, true
}

// canonicalize converts the node using the document's link table.
func (n *EditorNode) canonicalize(links map[int64]EditorLink) *Node {
	out := &Node{ClassType: n.Type, Inputs: make(map[string]any)}
	cursor := &widgetCursor{values: n.WidgetValues}
	for _, slot := range n.Inputs {
		if slot.HasLink {
			if l, ok := links[slot.Link]; ok {
				out.Inputs[slot.Name] = LinkRef(NodeKey(l.OriginID), l.OriginSlot)
				continue
			}
		}
		if slot.Widget != nil {
			if v, ok := cursor.next(slot); ok {
				out.Inputs[slot.Name] = v
			}
		}
	}
	if n.Title != "" {
		out.Meta = map[string]any{"title": n.Title}
	}
	return out
}
