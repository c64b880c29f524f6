// Package extract recovers typed values from language model output that does
// not always honour the requested JSON shape.
//
// Each recovery strategy is a pure function in this package; Extract and
// ExtractTextField compose them in priority order and never panic.
package extract

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/mikeboe/research-helper/pkg/metrics"
)

// DefaultTextField is the field ExtractTextField reads when none is given.
const DefaultTextField = "content"

func record(strategy string) {
	metrics.ExtractorStrategy.WithLabelValues(strategy).Inc()
}

// Extract returns the best-effort value of type T encoded in raw. When no
// strategy recovers a value, fallback is returned unchanged.
func Extract[T any](raw string, fallback T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			record("panic")
			out = fallback
		}
	}()

	if Rejected(raw) {
		record("rejected")
		return fallback
	}
	t := reflect.TypeFor[T]()

	if v, ok := ParseStrict(raw); ok && shapeMatches(v, t) && sharesField(v, t) {
		var decoded T
		if decodeInto(normalize(v, t), &decoded) == nil {
			record("strict")
			return decoded
		}
	}

	if IsProse(raw) {
		if res, ok := spliceText(fallback, raw); ok {
			record("prose")
			return res
		}
		record("fallback")
		return fallback
	}

	if res, ok := spliceContent(fallback, raw); ok {
		record("string_field")
		return res
	}

	if res, ok := spliceObjectArray(fallback, raw); ok {
		record("object_array")
		return res
	}

	if s, ok := Sanitize(raw); ok {
		if res, ok := spliceFirstField(fallback, s); ok {
			record("sanitize")
			return res
		}
	}

	record("fallback")
	return fallback
}

// ExtractTextField returns the text stored under field in raw. Plain prose is
// returned as is, including prose with embedded structure; other rejected
// input yields "".
func ExtractTextField(raw, field string) string {
	if field == "" {
		field = DefaultTextField
	}
	if Rejected(raw) {
		if embeddedInProse(raw) {
			return raw
		}
		return ""
	}
	if v, ok := ParseStrict(raw); ok {
		if m, ok := v.(map[string]any); ok {
			if s, ok := textValue(m, field); ok {
				return s
			}
		}
	}
	if IsProse(raw) {
		return raw
	}
	if s, ok := MatchStringField(raw, field); ok {
		return s
	}
	for alias, canon := range fieldAliases {
		if canon != field {
			continue
		}
		if s, ok := MatchStringField(raw, alias); ok {
			return s
		}
	}
	if s, ok := Sanitize(raw); ok {
		return s
	}
	return raw
}

// embeddedInProse reports whether raw is text that merely contains
// structure, as opposed to a payload.
func embeddedInProse(raw string) bool {
	if strings.ContainsRune(raw, 0) {
		return false
	}
	trimmed := strings.TrimSpace(raw)
	if !containsStructure(trimmed) {
		return false
	}
	_, standalone := standalonePayload(trimmed)
	return !standalone
}

func textValue(m map[string]any, field string) (string, bool) {
	if s, ok := m[field].(string); ok {
		return s, true
	}
	for k, v := range m {
		if Canonical(k) != field {
			continue
		}
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

// shapeMatches reports whether a parsed value can populate t.
func shapeMatches(v any, t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map:
		_, ok := v.(map[string]any)
		return ok
	case reflect.Slice, reflect.Array:
		_, ok := v.([]any)
		return ok
	case reflect.Interface:
		return true
	}
	return false
}

// sharesField reports whether an object decoded for struct t carries at least
// one of its fields, directly or through an alias. Objects that share nothing
// with t are text that happens to contain braces.
func sharesField(v any, t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return true
	}
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	fields := structFields(t)
	for k := range m {
		if _, ok := fields[k]; ok {
			return true
		}
		if _, ok := fields[Canonical(k)]; ok {
			return true
		}
	}
	return false
}

func decodeInto(v any, dst any) error {
	data, err := marshalNormalized(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// splice copies fallback and lets set modify the copy. The original is
// returned when set reports failure.
func splice[T any](fallback T, set func(v reflect.Value) bool) (T, bool) {
	out := fallback
	rv := reflect.ValueOf(&out).Elem()
	if !set(rv) {
		return fallback, false
	}
	return out, true
}

// fieldByJSON returns the struct field of rv whose JSON key is name.
func fieldByJSON(rv reflect.Value, name string) (reflect.Value, bool) {
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		if jsonName(t.Field(i)) == name {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// exportedFields lists the settable fields of a struct value in order.
func exportedFields(rv reflect.Value) []reflect.Value {
	var out []reflect.Value
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		if jsonName(t.Field(i)) != "" {
			out = append(out, rv.Field(i))
		}
	}
	return out
}

func spliceText[T any](fallback T, raw string) (T, bool) {
	return splice(fallback, func(rv reflect.Value) bool {
		switch rv.Kind() {
		case reflect.String:
			rv.SetString(raw)
			return true
		case reflect.Struct:
			var text []reflect.Value
			for _, f := range exportedFields(rv) {
				if f.Kind() == reflect.String {
					text = append(text, f)
				}
			}
			if len(text) != 1 {
				return false
			}
			text[0].SetString(raw)
			return true
		}
		return false
	})
}

func spliceContent[T any](fallback T, raw string) (T, bool) {
	return splice(fallback, func(rv reflect.Value) bool {
		f, ok := fieldByJSON(rv, DefaultTextField)
		if !ok || f.Kind() != reflect.String {
			return false
		}
		s, ok := MatchStringField(raw, DefaultTextField)
		if !ok {
			return false
		}
		f.SetString(s)
		return true
	})
}

func spliceObjectArray[T any](fallback T, raw string) (T, bool) {
	return splice(fallback, func(rv reflect.Value) bool {
		target := rv
		if rv.Kind() == reflect.Struct {
			found := false
			for _, f := range exportedFields(rv) {
				if f.Kind() == reflect.Slice {
					target, found = f, true
					break
				}
			}
			if !found {
				return false
			}
		}
		if target.Kind() != reflect.Slice {
			return false
		}
		items, ok := MatchObjectArray(raw)
		if !ok {
			return false
		}
		ptr := reflect.New(target.Type())
		if decodeInto(normalize(items, target.Type()), ptr.Interface()) != nil {
			return false
		}
		target.Set(ptr.Elem())
		return true
	})
}

func spliceFirstField[T any](fallback T, s string) (T, bool) {
	return splice(fallback, func(rv reflect.Value) bool {
		switch rv.Kind() {
		case reflect.String:
			rv.SetString(s)
			return true
		case reflect.Struct:
			fields := exportedFields(rv)
			if len(fields) == 0 || fields[0].Kind() != reflect.String {
				return false
			}
			fields[0].SetString(s)
			return true
		}
		return false
	})
}
