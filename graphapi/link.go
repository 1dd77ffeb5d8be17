package graphapi

// EditorLink is one entry of an editor-form link table.
//
// Top-level links are tuples [id, originID, originSlot, targetID, targetSlot, type];
// subgraph links use the object form {id, origin_id, origin_slot, ...}.
type EditorLink struct {
	ID         int64
	OriginID   int64
	OriginSlot int
	TargetID   int64
	TargetSlot int
	Type       string
}

// parseEditorLink decodes either link form. Entries without integer id,
// origin and origin slot are rejected.
func parseEditorLink(v any) (EditorLink, bool) {
	switch t := v.(type) {
	case []any:
		if len(t) < 4 {
			return EditorLink{}, false
		}
		id, ok1 := AsInteger(t[0])
		origin, ok2 := AsInteger(t[1])
		slot, ok3 := AsInteger(t[2])
		if !ok1 || !ok2 || !ok3 {
			return EditorLink{}, false
		}
		l := EditorLink{ID: id, OriginID: origin, OriginSlot: int(slot)}
		if target, ok := AsInteger(t[3]); ok {
			l.TargetID = target
		}
		if len(t) > 4 {
			if ts, ok := AsInteger(t[4]); ok {
				l.TargetSlot = int(ts)
			}
		}
		if len(t) > 5 {
			l.Type, _ = t[5].(string)
		}
		return l, true
	case map[string]any:
		id, ok1 := AsInteger(t["id"])
		origin, ok2 := AsInteger(t["origin_id"])
		slot, ok3 := AsInteger(t["origin_slot"])
		if !ok1 || !ok2 || !ok3 {
			return EditorLink{}, false
		}
		l := EditorLink{ID: id, OriginID: origin, OriginSlot: int(slot)}
		if target, ok := AsInteger(t["target_id"]); ok {
			l.TargetID = target
		}
		if ts, ok := AsInteger(t["target_slot"]); ok {
			l.TargetSlot = int(ts)
		}
		l.Type, _ = t["type"].(string)
		return l, true
	}
	return EditorLink{}, false
}

// linkTable indexes the valid links of an editor document by id.
func linkTable(links []any) map[int64]EditorLink {
	table := make(map[int64]EditorLink, len(links))
	for _, raw := range links {
		if l, ok := parseEditorLink(raw); ok {
			table[l.ID] = l
		}
	}
	return table
}
