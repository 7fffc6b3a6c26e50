package jsonvalue

import "strconv"

// Joiner builds the flattened key for child under prefix. prefix is empty
// for top-level keys.
type Joiner func(prefix, child string) string

// UnderscoreJoin produces keys like contact_email and items_0_sku.
func UnderscoreJoin(prefix, child string) string {
	if prefix == "" {
		return child
	}
	return prefix + "_" + child
}

// BracketJoin produces keys like contact[email] and items[0][sku], the
// inverse of Unflatten's bracket notation.
func BracketJoin(prefix, child string) string {
	if prefix == "" {
		return child
	}
	return prefix + "[" + child + "]"
}

// DotJoin produces keys like contact.email and items.0.sku.
func DotJoin(prefix, child string) string {
	if prefix == "" {
		return child
	}
	return prefix + "." + child
}

// Flatten collapses nested objects and arrays into a single level of scalar
// leaves. Empty containers and array holes produce no keys.
func Flatten(v Value, join Joiner) map[string]Value {
	out := make(map[string]Value)
	flattenInto(out, "", v, join)
	return out
}

func flattenInto(out map[string]Value, prefix string, v Value, join Joiner) {
	switch t := v.(type) {
	case nil:
	case Object:
		for k, child := range t {
			flattenInto(out, join(prefix, k), child, join)
		}
	case Array:
		for i, child := range t {
			flattenInto(out, join(prefix, strconv.Itoa(i)), child, join)
		}
	default:
		if prefix != "" {
			out[prefix] = t
		}
	}
}
