package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

// Rejected reports whether raw must resolve to the fallback without any
// recovery attempt: literal NUL bytes, or non-finite numeric literals either
// bare or as a quoted string. Only the payload is scanned, so prose or code
// samples around it cannot reject a usable answer.
func Rejected(raw string) bool {
	if strings.ContainsRune(raw, 0) {
		return true
	}
	trimmed := strings.TrimSpace(raw)
	if nonFiniteTokens[trimmed] {
		return true
	}
	if len(trimmed) >= 2 {
		if q := trimmed[0]; (q == '"' || q == '\'') && trimmed[len(trimmed)-1] == q {
			if nonFiniteTokens[strings.TrimSpace(trimmed[1:len(trimmed)-1])] {
				return true
			}
		}
	}
	if payload, ok := standalonePayload(trimmed); ok {
		return scanNonFinite(payload)
	}
	for _, c := range candidates(trimmed) {
		if _, ok := decodeStructured(c); ok {
			return looksLikeJSON(c) && scanNonFinite(c)
		}
	}
	return false
}

// standalonePayload returns the structured value raw consists of: raw itself
// when it opens with a bracket, or the body of a fence wrapping all of raw.
// Text after the first balanced value is not part of the payload.
func standalonePayload(raw string) (string, bool) {
	if m := fencedBlockRe.FindStringSubmatchIndex(raw); m != nil && m[0] == 0 && m[1] == len(raw) {
		raw = strings.TrimSpace(raw[m[2]:m[3]])
	}
	if !looksLikeJSON(raw) {
		return "", false
	}
	if sub, ok := balancedSlice(raw, 0); ok {
		return sub, true
	}
	return raw, true
}

// candidates lists the substrings of raw worth a strict parse, most specific
// interpretation last.
func candidates(raw string) []string {
	out := []string{raw}
	if body, ok := fencedBlock(raw); ok && body != raw {
		out = append(out, body)
	}
	for _, c := range append([]string(nil), out...) {
		if sub, ok := outerSlice(c); ok && sub != c {
			out = append(out, sub)
		}
	}
	return out
}

// decodeJSON decodes exactly one JSON value from s.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after value")
	}
	return v, nil
}

// decodeStructured decodes s as an object or array, trying the raw text,
// then a control-character repair, then single-quote normalisation.
func decodeStructured(s string) (any, bool) {
	variants := []string{s, repair(s), repair(normalizeQuotes(s))}
	for i, variant := range variants {
		if i > 0 && variant == variants[i-1] {
			continue
		}
		v, err := decodeJSON(variant)
		if err != nil {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			return v, true
		}
	}
	return nil, false
}

// ParseStrict attempts a structured parse of raw, tolerating code fences and
// prose around the payload. Only objects and arrays count as success.
func ParseStrict(raw string) (any, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !containsStructure(trimmed) {
		return nil, false
	}
	for _, c := range candidates(trimmed) {
		if v, ok := decodeStructured(c); ok {
			return v, true
		}
	}
	return nil, false
}

// IsProse reports whether raw carries no object or array delimiters at all.
func IsProse(raw string) bool {
	return !containsStructure(raw)
}

// MatchStringField pulls the value of a single "name": "..." pair out of raw
// with a regular expression, honouring escaped quotes. Single-quoted pairs
// are accepted as well.
func MatchStringField(raw, name string) (string, bool) {
	key := regexp.QuoteMeta(name)
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`(?s)"` + key + `"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		regexp.MustCompile(`(?s)'` + key + `'\s*:\s*'((?:[^'\\]|\\.)*)'`),
	}
	for i, re := range patterns {
		m := re.FindStringSubmatch(raw)
		if len(m) != 2 {
			continue
		}
		body := m[1]
		if i == 1 {
			body = strings.ReplaceAll(body, `\'`, `'`)
			body = strings.ReplaceAll(body, `"`, `\"`)
		}
		var s string
		if err := json.Unmarshal([]byte(repair(`"`+body+`"`)), &s); err == nil {
			return s, true
		}
		return unescapeLoose(body), true
	}
	return "", false
}

// unescapeLoose undoes the common escape sequences when the literal is not
// valid JSON.
func unescapeLoose(s string) string {
	r := strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t", `\r`, "\r", `\\`, `\`)
	return r.Replace(s)
}

var objectArrayStartRe = regexp.MustCompile(`\[\s*\{`)

// MatchObjectArray finds the first bracketed array of objects in raw and
// parses just that substring.
func MatchObjectArray(raw string) ([]any, bool) {
	loc := objectArrayStartRe.FindStringIndex(raw)
	if loc == nil {
		return nil, false
	}
	sub, ok := balancedSlice(raw, loc[0])
	if !ok {
		return nil, false
	}
	v, ok := decodeStructured(sub)
	if !ok {
		return nil, false
	}
	items, ok := v.([]any)
	return items, ok && len(items) > 0
}

// Sanitize strips control characters and quoting characters from a broken
// payload so the remainder can be kept as plain text. It only applies to
// input that opens like a structured payload.
func Sanitize(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return "", false
	}
	cleaned := stripControl(trimmed)
	cleaned = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r == '`' {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimSpace(strings.Trim(cleaned, "{}[] \n\t"))
	return cleaned, cleaned != ""
}

// marshalNormalized re-encodes a generic value for decoding into a concrete
// type without HTML escaping.
func marshalNormalized(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
