package jsonvalue

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// maxSparseIndex bounds how far an explicit a[N] key can grow an array.
// Larger indexes are kept as object keys instead.
const maxSparseIndex = 1000

type segmentKind int

const (
	segKey segmentKind = iota
	segIndex
	segAppend
)

type segment struct {
	kind  segmentKind
	key   string
	index int
}

// Unflatten turns form field names into a nested object.
//
//	name=Ada               -> {"name": "Ada"}
//	contact.email=a@b.c    -> {"contact": {"email": "a@b.c"}}
//	tags[]=x&tags[]=y      -> {"tags": ["x", "y"]}
//	items[1][sku]=A1       -> {"items": [null, {"sku": "A1"}]}
//	color=red&color=blue   -> {"color": ["red", "blue"]}
//
// Keys are applied in sorted order. When two keys disagree about the shape
// of a path, the key applied later replaces the earlier container.
func Unflatten(values url.Values) Object {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var root Value = Object{}
	for _, key := range keys {
		vals := values[key]
		if len(vals) == 0 {
			continue
		}
		segs := parseKey(key)
		if segs[len(segs)-1].kind == segAppend {
			for _, v := range vals {
				root = assign(root, segs, String(v))
			}
			continue
		}
		if len(vals) == 1 {
			root = assign(root, segs, String(vals[0]))
			continue
		}
		arr := make(Array, len(vals))
		for i, v := range vals {
			arr[i] = String(v)
		}
		root = assign(root, segs, arr)
	}
	return root.(Object)
}

// parseKey splits a field name into path segments. Anything that does not
// parse cleanly as bracket or dot notation is a single literal key.
func parseKey(key string) []segment {
	if open := strings.IndexByte(key, '['); open > 0 && strings.HasSuffix(key, "]") {
		if segs, ok := parseBrackets(key[:open], key[open:]); ok {
			return segs
		}
	}
	if strings.Contains(key, ".") {
		parts := strings.Split(key, ".")
		segs := make([]segment, 0, len(parts))
		for _, p := range parts {
			if p == "" {
				return []segment{{kind: segKey, key: key}}
			}
			segs = append(segs, segment{kind: segKey, key: p})
		}
		return segs
	}
	return []segment{{kind: segKey, key: key}}
}

func parseBrackets(base, rest string) ([]segment, bool) {
	segs := []segment{{kind: segKey, key: base}}
	for rest != "" {
		if rest[0] != '[' {
			return nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, false
		}
		inner := rest[1:end]
		rest = rest[end+1:]

		switch {
		case inner == "":
			segs = append(segs, segment{kind: segAppend})
		case isIndex(inner):
			i, _ := strconv.Atoi(inner)
			if i > maxSparseIndex {
				segs = append(segs, segment{kind: segKey, key: inner})
			} else {
				segs = append(segs, segment{kind: segIndex, index: i})
			}
		default:
			segs = append(segs, segment{kind: segKey, key: inner})
		}
	}
	return segs, true
}

func isIndex(s string) bool {
	if s == "" || len(s) > 9 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// assign writes val at segs below cur and returns the (possibly new)
// container. Containers of the wrong shape are replaced.
func assign(cur Value, segs []segment, val Value) Value {
	if len(segs) == 0 {
		return val
	}
	seg := segs[0]
	switch seg.kind {
	case segIndex:
		arr, _ := cur.(Array)
		for len(arr) <= seg.index {
			arr = append(arr, nil)
		}
		arr[seg.index] = assign(arr[seg.index], segs[1:], val)
		return arr
	case segAppend:
		arr, _ := cur.(Array)
		return append(arr, assign(nil, segs[1:], val))
	default:
		obj, ok := cur.(Object)
		if !ok {
			obj = Object{}
		}
		obj[seg.key] = assign(obj[seg.key], segs[1:], val)
		return obj
	}
}
