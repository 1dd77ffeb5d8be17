package graphapi

// Widget marks an input slot that takes its value from the node's widget values.
type Widget struct {
	Name string
}

// widgetValueMatches reports whether a widget value can satisfy an input of
// the declared socket type. Undeclared and custom types accept anything.
func widgetValueMatches(slot EditorSlot, value any) bool {
	if !slot.HasType {
		return true
	}
	switch slot.Type {
	case "INT":
		_, ok := AsInteger(value)
		return ok
	case "FLOAT":
		return isNumber(value)
	case "BOOLEAN":
		_, ok := value.(bool)
		return ok
	case "STRING", "COMBO":
		_, ok := value.(string)
		return ok
	}
	return true
}

// widgetCursor walks a node's widget values in order.
type widgetCursor struct {
	values []any
	pos    int
}

// next consumes values until one matches slot. Mismatched values are skipped
// and stay consumed.
func (c *widgetCursor) next(slot EditorSlot) (any, bool) {
	for c.pos < len(c.values) {
		v := c.values[c.pos]
		c.pos++
		if widgetValueMatches(slot, v) {
			return v, true
		}
	}
	return nil, false
}
