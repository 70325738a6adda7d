package condition

import (
	"strconv"
	"strings"
)

// ResolvePath walks a dot-separated path into an arbitrarily nested
// map[string]any / []any structure (the shape produced by
// encoding/json.Unmarshal into `any`). Each segment is either a map key or,
// when the current value is a slice, a numeric index. Any missing or
// type-mismatched segment yields Undef; resolution never panics.
func ResolvePath(data any, path string) any {
	if path == "" {
		return data
	}
	cur := data
	for _, seg := range strings.Split(path, ".") {
		if isUndefined(cur) {
			return Undef
		}
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return Undef
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return Undef
			}
			cur = v[idx]
		default:
			return Undef
		}
	}
	if cur == nil {
		return nil
	}
	return cur
}
