package ruleeval

import (
	"reflect"
	"strings"
)

// ResolveFieldPath looks up a dot-separated field path (e.g. "email",
// "job_title", "organization.industry") against a lead struct and its
// optional organization struct, matching on the struct's `json` tag. Used
// by field-typed scoring/intent rules (spec.md §4.4).
//
// lead and org are passed as interface{} so this package has no import
// dependency on internal/models, kept leaf-level with no upward imports.
func ResolveFieldPath(lead interface{}, org interface{}, path string) (interface{}, bool) {
	parts := strings.SplitN(path, ".", 2)
	if len(parts) == 2 && parts[0] == "organization" {
		if org == nil {
			return nil, false
		}
		v := reflect.ValueOf(org)
		if v.Kind() == reflect.Ptr && v.IsNil() {
			return nil, false
		}
		return resolveJSONField(org, parts[1])
	}
	return resolveJSONField(lead, path)
}

func resolveJSONField(obj interface{}, field string) (interface{}, bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name := strings.Split(tag, ",")[0]
		if name == field {
			fv := v.Field(i)
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					return nil, false
				}
				return fv.Elem().Interface(), true
			}
			return fv.Interface(), true
		}
	}
	return nil, false
}
