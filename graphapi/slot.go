package graphapi

// EditorSlot is an input descriptor of an editor-form node.
type EditorSlot struct {
	Name string
	// Type is the declared socket type (INT, FLOAT, STRING, ...). Empty when
	// the document does not declare one.
	Type    string
	HasType bool
	// Link is the incoming link id; valid only when HasLink is set.
	Link    int64
	HasLink bool
	// Widget is set when the input is backed by an on-node widget.
	Widget *Widget
}

func parseEditorSlot(v any) (EditorSlot, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return EditorSlot{}, false
	}
	name, _ := m["name"].(string)
	if name == "" {
		return EditorSlot{}, false
	}
	s := EditorSlot{Name: name}
	if t, ok := m["type"].(string); ok {
		s.Type = t
		s.HasType = true
	}
	if link, ok := AsInteger(m["link"]); ok {
		s.Link = link
		s.HasLink = true
	}
	if w, ok := m["widget"].(map[string]any); ok {
		s.Widget = &Widget{}
		s.Widget.Name, _ = w["name"].(string)
	}
	return s, true
}
