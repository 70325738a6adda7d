// Package condition implements the MongoDB-style operator tree evaluator
// used to match a feature rule or experiment's condition/filter against an
// arbitrary set of JSON attributes.
package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Expr is a decoded JSON condition node: typically a map[string]any, but
// may recursively contain any JSON-decoded value.
type Expr = any

// Evaluate tests condition against attrs (typically a map[string]any of
// user attributes, but any JSON-decoded value for recursive sub-condition
// use). It never panics: malformed conditions and missing paths simply
// fail to match.
func Evaluate(attrs any, cond Expr) bool {
	obj, ok := cond.(map[string]any)
	if !ok {
		// A bare non-object condition at the top level has no defined
		// meaning; treat as vacuously true, mirroring empty-object AND.
		return true
	}

	if v, has := obj["$or"]; has {
		return evalOr(attrs, v)
	}
	if v, has := obj["$nor"]; has {
		return evalNor(attrs, v)
	}
	if v, has := obj["$and"]; has {
		return evalAnd(attrs, v)
	}
	if v, has := obj["$not"]; has {
		return !Evaluate(attrs, v)
	}

	for path, matcher := range obj {
		value := ResolvePath(attrs, path)
		if !evalMatcher(value, matcher) {
			return false
		}
	}
	return true
}

func evalOr(attrs any, raw any) bool {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return true
	}
	for _, c := range list {
		if Evaluate(attrs, c) {
			return true
		}
	}
	return false
}

// evalNor is not "!evalOr": evalOr's empty-list case is vacuously true
// (no condition to satisfy), but $nor's empty-list case is also true (no
// condition is satisfied, trivially), not the negation of evalOr's result.
func evalNor(attrs any, raw any) bool {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return true
	}
	for _, c := range list {
		if Evaluate(attrs, c) {
			return false
		}
	}
	return true
}

func evalAnd(attrs any, raw any) bool {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return true
	}
	for _, c := range list {
		if !Evaluate(attrs, c) {
			return false
		}
	}
	return true
}

// evalMatcher applies a single matcher (as found on the right-hand side of
// a path entry, or passed recursively from $elemMatch/$all) against value.
func evalMatcher(value any, matcher any) bool {
	obj, ok := matcher.(map[string]any)
	if !ok {
		// Bare scalar/array matcher: plain equality.
		return jsonEqual(value, matcher)
	}
	if !isOperatorObject(obj) {
		// Non-operator object: recurse as a nested condition applied to
		// the value at this path.
		return Evaluate(value, matcher)
	}

	for op, arg := range obj {
		if !evalOperator(op, value, arg) {
			return false
		}
	}
	return true
}

func isOperatorObject(obj map[string]any) bool {
	for k := range obj {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func evalOperator(op string, value any, arg any) bool {
	switch op {
	case "$eq":
		return jsonEqual(value, arg)
	case "$ne":
		return !jsonEqual(value, arg)
	case "$lt":
		return naturalCompare(value, arg) < 0
	case "$lte":
		return naturalCompare(value, arg) <= 0
	case "$gt":
		return naturalCompare(value, arg) > 0
	case "$gte":
		return naturalCompare(value, arg) >= 0
	case "$regex":
		return evalRegex(value, arg)
	case "$in":
		return evalIn(value, arg, false)
	case "$nin":
		return evalIn(value, arg, true)
	case "$all":
		return evalAll(value, arg)
	case "$elemMatch":
		return evalElemMatch(value, arg)
	case "$size":
		return evalSize(value, arg)
	case "$exists":
		want, _ := arg.(bool)
		return !isUndefined(value) == want
	case "$type":
		tag, _ := arg.(string)
		return typeTag(value) == tag
	case "$not":
		return !evalMatcher(value, arg)
	case "$vgt":
		return versionCompareOp(value, arg) > 0
	case "$vgte":
		return versionCompareOp(value, arg) >= 0
	case "$vlt":
		return versionCompareOp(value, arg) < 0
	case "$vlte":
		return versionCompareOp(value, arg) <= 0
	case "$veq":
		return versionCompareOp(value, arg) == 0
	case "$vne":
		return versionCompareOp(value, arg) != 0
	default:
		return false
	}
}

func jsonEqual(a, b any) bool {
	if isUndefined(a) || isUndefined(b) {
		return isUndefined(a) && isUndefined(b)
	}
	return reflect.DeepEqual(a, b)
}

// naturalCompare compares a and b numerically if both are numbers, else
// falls back to lexicographic string comparison of their canonical
// string forms.
func naturalCompare(a, b any) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := asString(a), asString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asString(v any) string {
	if isUndefined(v) {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func evalRegex(value any, arg any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	pattern, ok := arg.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func evalIn(value any, arg any, negate bool) bool {
	list, ok := arg.([]any)
	if !ok {
		return negate
	}
	var match bool
	if arr, ok := value.([]any); ok {
		for _, el := range arr {
			if containsJSON(list, el) {
				match = true
				break
			}
		}
	} else {
		match = containsJSON(list, value)
	}
	if negate {
		return !match
	}
	return match
}

func containsJSON(list []any, v any) bool {
	for _, el := range list {
		if jsonEqual(el, v) {
			return true
		}
	}
	return false
}

func evalAll(value any, arg any) bool {
	criteria, ok := arg.([]any)
	if !ok {
		return false
	}
	arr, ok := value.([]any)
	if !ok {
		return false
	}
	for _, crit := range criteria {
		found := false
		for _, el := range arr {
			if evalMatcher(el, crit) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func evalElemMatch(value any, sub any) bool {
	arr, ok := value.([]any)
	if !ok {
		return false
	}
	for _, el := range arr {
		if evalMatcher(el, sub) {
			return true
		}
	}
	return false
}

func evalSize(value any, sub any) bool {
	arr, ok := value.([]any)
	if !ok {
		return false
	}
	n := float64(len(arr))
	if f, ok := sub.(float64); ok {
		return n == f
	}
	return evalMatcher(n, sub)
}

func versionCompareOp(value any, arg any) int {
	return compareVersions(asString(value), asString(arg))
}

// typeTag returns the $type tag for value: one of string, number,
// boolean, array, object, null, undefined.
func typeTag(value any) string {
	if isUndefined(value) {
		return "undefined"
	}
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "undefined"
	}
}
