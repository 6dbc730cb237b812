// Package ruleeval implements the small predicate algebra shared by the
// Scoring Engine and Intent Detector (spec.md §9): event-match (type +
// metadata predicate), field-match (path + operator), and the metadata
// comparator grammar (lt, lte, gt, gte, in, contains, pattern) reused by
// both, as one small package instead of being duplicated per engine.
package ruleeval

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// MatchEventMetadata reports whether an event's metadata satisfies a rule's
// metadata predicate. Every key in predicate must be present in metadata
// and satisfy its comparator; a bare scalar predicate value means deep
// equality, a map with one of lt/lte/gt/gte/in/contains/pattern means that
// comparator.
func MatchEventMetadata(predicate map[string]interface{}, metadata map[string]interface{}) bool {
	for key, want := range predicate {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if !matchValue(want, got) {
			return false
		}
	}
	return true
}

func matchValue(want interface{}, got interface{}) bool {
	if comparator, ok := want.(map[string]interface{}); ok {
		return evalComparator(comparator, got)
	}
	return deepEqualScalar(want, got)
}

func deepEqualScalar(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

// evalComparator evaluates one of the shared comparator operators against
// a scalar value. Unknown keys in the map are ignored; all present keys
// must be satisfied (conjunctive).
func evalComparator(comparator map[string]interface{}, got interface{}) bool {
	for op, operand := range comparator {
		switch op {
		case "lt":
			if !numericCompare(got, operand, func(a, b float64) bool { return a < b }) {
				return false
			}
		case "lte":
			if !numericCompare(got, operand, func(a, b float64) bool { return a <= b }) {
				return false
			}
		case "gt":
			if !numericCompare(got, operand, func(a, b float64) bool { return a > b }) {
				return false
			}
		case "gte":
			if !numericCompare(got, operand, func(a, b float64) bool { return a >= b }) {
				return false
			}
		case "in":
			if !inList(got, operand) {
				return false
			}
		case "contains":
			if !containsSubstring(got, operand) {
				return false
			}
		case "pattern":
			if !matchPattern(got, operand) {
				return false
			}
		default:
			// unknown operator key: ignore rather than fail the whole
			// rule on an unrecognized extension key.
		}
	}
	return true
}

func numericCompare(got, operand interface{}, cmp func(a, b float64) bool) bool {
	gf, gok := toFloat(got)
	of, ook := toFloat(operand)
	if !gok || !ook {
		return false
	}
	return cmp(gf, of)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func inList(got interface{}, operand interface{}) bool {
	list, ok := operand.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if deepEqualScalar(item, got) {
			return true
		}
	}
	return false
}

func containsSubstring(got interface{}, operand interface{}) bool {
	haystack := strings.ToLower(fmt.Sprintf("%v", got))
	switch v := operand.(type) {
	case []interface{}:
		for _, item := range v {
			if strings.Contains(haystack, strings.ToLower(fmt.Sprintf("%v", item))) {
				return true
			}
		}
		return false
	default:
		return strings.Contains(haystack, strings.ToLower(fmt.Sprintf("%v", operand)))
	}
}

func matchPattern(got interface{}, operand interface{}) bool {
	pattern, ok := operand.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false
	}
	return re.MatchString(fmt.Sprintf("%v", got))
}

// FieldOperator evaluates the field-match operators (equals, in, contains,
// pattern, gte, lte) from spec.md §4.4, against a single resolved field
// value and a rule-configured operand.
func FieldOperator(operator string, fieldValue interface{}, operand interface{}) bool {
	switch operator {
	case "equals":
		return deepEqualScalar(operand, fieldValue)
	case "in":
		return inList(fieldValue, operand)
	case "contains":
		return containsSubstring(fieldValue, operand)
	case "pattern":
		return matchPattern(fieldValue, operand)
	case "gte":
		return numericCompare(fieldValue, operand, func(a, b float64) bool { return a >= b })
	case "lte":
		return numericCompare(fieldValue, operand, func(a, b float64) bool { return a <= b })
	default:
		return false
	}
}
