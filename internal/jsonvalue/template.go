package jsonvalue

import (
	"encoding/json"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// RenderTemplate parses tmpl as JSON and substitutes {{path}} placeholders in
// every string it contains with values looked up in data.
func RenderTemplate(tmpl json.RawMessage, data Value) (Value, error) {
	parsed, err := Parse(tmpl)
	if err != nil {
		return nil, err
	}
	return Render(parsed, data), nil
}

// Render substitutes placeholders throughout v. A string made of exactly one
// placeholder takes the looked-up value with its JSON type intact; any other
// string gets each resolved placeholder spliced in as text. Placeholders
// that do not resolve are left as written.
func Render(v Value, data Value) Value {
	switch t := v.(type) {
	case String:
		return renderString(string(t), data)
	case Array:
		out := make(Array, len(t))
		for i, item := range t {
			out[i] = Render(item, data)
		}
		return out
	case Object:
		out := make(Object, len(t))
		for k, item := range t {
			out[k] = Render(item, data)
		}
		return out
	default:
		return v
	}
}

func renderString(s string, data Value) Value {
	trimmed := strings.TrimSpace(s)
	if loc := placeholder.FindStringSubmatchIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
		if found, ok := Lookup(data, trimmed[loc[2]:loc[3]]); ok {
			return found
		}
		return String(s)
	}
	return String(Interpolate(s, data))
}

// Interpolate replaces resolvable placeholders in s with their text form.
func Interpolate(s string, data Value) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		sub := placeholder.FindStringSubmatch(match)
		found, ok := Lookup(data, sub[1])
		if !ok {
			return match
		}
		return Stringify(found)
	})
}
