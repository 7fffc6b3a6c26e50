package jsonvalue

import (
	"strconv"
	"strings"
)

// Lookup walks a dotted path such as "contact.emails[1]" or "items.0.name".
// Array elements are addressed either with key[index] inside a segment or
// with a bare numeric segment.
func Lookup(v Value, path string) (Value, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		name, indexes, ok := splitIndexes(strings.TrimSpace(seg))
		if !ok {
			return nil, false
		}
		if name != "" {
			switch t := cur.(type) {
			case Object:
				next, found := t[name]
				if !found {
					return nil, false
				}
				cur = next
			case Array:
				i, err := strconv.Atoi(name)
				if err != nil || i < 0 || i >= len(t) {
					return nil, false
				}
				cur = t[i]
			default:
				return nil, false
			}
		}
		for _, i := range indexes {
			arr, isArr := cur.(Array)
			if !isArr || i < 0 || i >= len(arr) {
				return nil, false
			}
			cur = arr[i]
		}
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// splitIndexes parses "name[0][3]" into ("name", [0 3]).
func splitIndexes(seg string) (string, []int, bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, nil, seg != ""
	}
	name := seg[:open]
	rest := seg[open:]
	var indexes []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, false
		}
		i, err := strconv.Atoi(strings.TrimSpace(rest[1:end]))
		if err != nil {
			return "", nil, false
		}
		indexes = append(indexes, i)
		rest = rest[end+1:]
	}
	return name, indexes, true
}
