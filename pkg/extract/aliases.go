package extract

import (
	"reflect"
	"strings"
)

// fieldAliases maps key spellings models commonly emit onto the canonical
// JSON field name. A rename only happens when the target type declares the
// canonical field and the payload does not already carry it.
var fieldAliases = map[string]string{
	"query":           "search_query",
	"searchQuery":     "search_query",
	"search-query":    "search_query",
	"text":            "search_query",
	"search_queries":  "queries",
	"searchQueries":   "queries",
	"title":           "name",
	"section":         "name",
	"research_needed": "research",
	"researchNeeded":  "research",
	"needs_research":  "research",
	"followUpQueries": "follow_up_queries",
	"follow_ups":      "follow_up_queries",
	"followups":       "follow_up_queries",
	"text_content":    "content",
	"body":            "content",
	"result":          "grade",
	"verdict":         "grade",
}

// Canonical returns the canonical field name for key, or key itself.
func Canonical(key string) string {
	if c, ok := fieldAliases[key]; ok {
		return c
	}
	return key
}

// jsonName returns the key encoding/json uses for f, or "" when f is skipped.
func jsonName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

// structFields indexes the exported fields of t by JSON name.
func structFields(t reflect.Type) map[string]reflect.Type {
	fields := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if name := jsonName(f); name != "" {
			fields[name] = f.Type
		}
	}
	return fields
}

// normalize rewrites alias keys in v so that it decodes into t.
func normalize(v any, t reflect.Type) any {
	if t == nil {
		return v
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		fields := structFields(t)
		out := make(map[string]any, len(m))
		for k, val := range m {
			if _, known := fields[k]; known {
				out[k] = normalize(val, fields[k])
			}
		}
		for k, val := range m {
			if _, known := fields[k]; known {
				continue
			}
			canon := Canonical(k)
			ft, declared := fields[canon]
			if _, taken := out[canon]; declared && !taken {
				out[canon] = normalize(val, ft)
				continue
			}
			if _, taken := out[k]; !taken {
				out[k] = val
			}
		}
		return out
	case reflect.Slice, reflect.Array:
		items, ok := v.([]any)
		if !ok {
			return v
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = normalize(item, t.Elem())
		}
		return out
	case reflect.Map:
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = normalize(val, t.Elem())
		}
		return out
	}
	return v
}
