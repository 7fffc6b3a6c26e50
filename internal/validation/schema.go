package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/znz-systems/formdrop/internal/apierr"
	"github.com/znz-systems/formdrop/internal/jsonvalue"
)

const schemaResource = "endpoint-schema.json"

// ValidateSchema validates data against a draft-07 schema with format
// assertions on. A schema that does not compile is a server-side
// configuration error; a payload that does not conform is a client error
// listing every failing field.
func ValidateSchema(schema json.RawMessage, data jsonvalue.Value) error {
	sch, err := compileSchema(schema)
	if err != nil {
		return apierr.Internal("Invalid JSON schema configuration", err)
	}

	err = sch.Validate(jsonvalue.ToAny(data))
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return apierr.Internal("Schema validation failed", err)
	}
	return apierr.BadRequest("Validation failed: " + strings.Join(describe(verr), ", "))
}

func compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(schema))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	// Dropping $schema keeps the compiler from resolving the meta-schema URL.
	if obj, ok := doc.(map[string]any); ok {
		delete(obj, "$schema")
	}
	cleaned, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	c.AssertFormat = true
	if err := c.AddResource(schemaResource, bytes.NewReader(cleaned)); err != nil {
		return nil, err
	}
	return c.Compile(schemaResource)
}

// describe flattens the error tree into "field: message" pairs, one per leaf.
func describe(verr *jsonschema.ValidationError) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			msg := fieldName(e.InstanceLocation) + ": " + e.Message
			if !seen[msg] {
				seen[msg] = true
				out = append(out, msg)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return out
}

func fieldName(pointer string) string {
	field := strings.ReplaceAll(strings.TrimPrefix(pointer, "/"), "/", ".")
	if field == "" {
		return "root"
	}
	return field
}
