package condition

// Undefined is the sentinel returned when a dotted attribute path cannot
// be resolved. It is distinct from JSON null so that $exists:false,
// $type:"undefined", and $ne behave correctly against missing data.
type Undefined struct{}

// Undef is the single shared Undefined value.
var Undef = Undefined{}

func isUndefined(v any) bool {
	_, ok := v.(Undefined)
	return ok
}
