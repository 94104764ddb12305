package zerkalo

// The plain value domain: null, booleans, numbers, strings, sequences
// of plain values and string-keyed mappings of plain values. Anything
// else can't be replayed from a log, so it is rejected at the boundary.

// Assignable reports whether v may be stored inside a document.
func Assignable(v any) bool {
	switch t := v.(type) {
	case nil, bool, string:
		return true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	case []any:
		for _, e := range t {
			if !Assignable(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range t {
			if !Assignable(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Manageable reports whether v may be a document root. Sequences are
// rejected so the root always has a named slot for the versioning
// block.
func Manageable(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return false
	}
	return Assignable(v)
}

// DeepCopy clones an assignable value. Every value crossing the
// library boundary crosses a deep-copy; external aliases never reach
// the working tree or the log.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = DeepCopy(e)
		}
		return cp
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, e := range t {
			cp[k] = DeepCopy(e)
		}
		return cp
	default:
		return v
	}
}

// Equal compares two plain values structurally. Numbers compare by
// value regardless of the Go type they arrived in, so a document
// survives a JSON round-trip.
func Equal(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	switch t := a.(type) {
	case nil:
		return b == nil
	case bool:
		tb, ok := b.(bool)
		return ok && t == tb
	case string:
		tb, ok := b.(string)
		return ok && t == tb
	case []any:
		tb, ok := b.([]any)
		if !ok || len(t) != len(tb) {
			return false
		}
		for i := range t {
			if !Equal(t[i], tb[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(t) != len(tb) {
			return false
		}
		for k, e := range t {
			be, ok := tb[k]
			if !ok || !Equal(e, be) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
