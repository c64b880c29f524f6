package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// nonFiniteTokens are numeric literals that JSON cannot represent.
var nonFiniteTokens = map[string]bool{
	"Infinity":  true,
	"-Infinity": true,
	"+Infinity": true,
	"NaN":       true,
}

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\n?(.*?)\n?```")
	bareNonFiniteRe = regexp.MustCompile(`^[-+]?(Infinity|NaN)\s*(,|$)`)
)

// containsStructure reports whether s has any object or array delimiters.
func containsStructure(s string) bool {
	return strings.ContainsAny(s, "{}[]")
}

// opensSingleQuoted reports whether a single quote following prev starts a
// string literal rather than an apostrophe inside prose.
func opensSingleQuoted(prev rune) bool {
	switch prev {
	case '{', '[', ',', ':':
		return true
	}
	return false
}

// lastSignificant returns the last non-space rune written to b, or 0.
func lastSignificant(b []rune) rune {
	for i := len(b) - 1; i >= 0; i-- {
		if !unicode.IsSpace(b[i]) {
			return b[i]
		}
	}
	return 0
}

// repair escapes raw control characters that appear inside string literals
// and drops trailing commas before a closing bracket.
func repair(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString := false
	escaped := false
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteRune(r)
			case r == '\\':
				escaped = true
				b.WriteRune(r)
			case r == '"':
				inString = false
				b.WriteRune(r)
			case r == '\n':
				b.WriteString(`\n`)
			case r == '\r':
				b.WriteString(`\r`)
			case r == '\t':
				b.WriteString(`\t`)
			case r < 0x20:
				b.WriteString(`\u00`)
				b.WriteByte("0123456789abcdef"[r>>4])
				b.WriteByte("0123456789abcdef"[r&0xf])
			default:
				b.WriteRune(r)
			}
			continue
		}
		switch r {
		case '"':
			inString = true
			b.WriteRune(r)
		case ',':
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			if j < len(runes) && (runes[j] == '}' || runes[j] == ']') {
				continue
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeQuotes rewrites single-quoted string literals as double-quoted
// ones. Double-quoted literals pass through untouched, so apostrophes inside
// them survive.
func normalizeQuotes(s string) string {
	out := make([]rune, 0, len(s)+8)
	var quote rune
	escaped := false
	for _, r := range s {
		switch {
		case quote == '"':
			out = append(out, r)
			if escaped {
				escaped = false
			} else if r == '\\' {
				escaped = true
			} else if r == '"' {
				quote = 0
			}
		case quote == '\'':
			if escaped {
				escaped = false
				if r == '\'' {
					out[len(out)-1] = '\''
					continue
				}
				out = append(out, r)
				continue
			}
			switch r {
			case '\\':
				escaped = true
				out = append(out, r)
			case '\'':
				quote = 0
				out = append(out, '"')
			case '"':
				out = append(out, '\\', '"')
			default:
				out = append(out, r)
			}
		case r == '"':
			quote = '"'
			out = append(out, r)
		case r == '\'' && opensSingleQuoted(lastSignificant(out)):
			quote = '\''
			out = append(out, '"')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// balancedSlice returns the substring of s starting at the opener at index
// start and ending at its matching closer. String literals are skipped.
func balancedSlice(s string, start int) (string, bool) {
	if start < 0 || start >= len(s) {
		return "", false
	}
	var stack []byte
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"':
			quote = c
		case '\'':
			if i > start && opensSingleQuoted(lastSignificant([]rune(s[start:i]))) {
				quote = c
			}
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// fencedBlock returns the body of the first markdown code fence.
func fencedBlock(s string) (string, bool) {
	m := fencedBlockRe.FindStringSubmatch(s)
	if len(m) != 2 {
		return "", false
	}
	body := strings.TrimSpace(m[1])
	return body, body != ""
}

// outerSlice returns the first balanced object or array in s. When the
// brackets never balance it falls back to the span between the first opener
// and the last matching closer.
func outerSlice(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	if sub, ok := balancedSlice(s, start); ok {
		return sub, true
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// looksLikeJSON reports whether a bracketed candidate reads as a JSON payload
// rather than a markdown link or citation.
func looksLikeJSON(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	if candidate[0] == '{' {
		return true
	}
	if candidate[0] != '[' {
		return false
	}
	inner := strings.TrimSpace(strings.TrimSuffix(candidate[1:], "]"))
	if inner == "" {
		return true
	}
	if strings.ContainsRune(`{["'-+0123456789`, rune(inner[0])) {
		return true
	}
	return bareNonFiniteRe.MatchString(inner)
}

// scanNonFinite walks a structured candidate and reports whether it contains
// a bare non-finite literal outside strings, or a string literal whose whole
// content is a non-finite token.
func scanNonFinite(s string) bool {
	runes := []rune(s)
	var quote rune
	escaped := false
	var lit strings.Builder
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			if escaped {
				escaped = false
				lit.WriteRune(r)
				continue
			}
			switch r {
			case '\\':
				escaped = true
			case quote:
				quote = 0
				if nonFiniteTokens[strings.TrimSpace(lit.String())] {
					return true
				}
				lit.Reset()
			default:
				lit.WriteRune(r)
			}
			continue
		}
		switch {
		case r == '"':
			quote = r
		case r == '\'' && opensSingleQuoted(lastSignificant(runes[:i])):
			quote = r
		case unicode.IsLetter(r):
			j := i
			for j < len(runes) && unicode.IsLetter(runes[j]) {
				j++
			}
			if word := string(runes[i:j]); word == "Infinity" || word == "NaN" {
				return true
			}
			i = j - 1
		}
	}
	return false
}

// stripControl removes control characters other than newline and tab.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
