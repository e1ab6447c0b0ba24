// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

//go:generate go run ../../cmd/extkit schema --out ../../schemas/plugin.schema.json

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the generated manifest schema.
const SchemaID = "https://extkit.holomush.dev/schemas/plugin.schema.json"

var (
	schemaMu    sync.Mutex
	schemaCache *jschema.Schema
)

// GenerateSchema generates a JSON Schema from the Manifest struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
		FieldNameTag:   "yaml",
	}
	schema := r.Reflect(&Manifest{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "extkit Plugin Manifest"
	schema.Description = "Schema for plugin.yaml manifest files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errs().Wrapf(err, "failed to marshal schema")
	}
	return data, nil
}

// ValidateSchema validates YAML data against the plugin manifest JSON Schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return manifestError("", "manifest data is empty")
	}

	var yamlData any
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return errs().Code(CodeInvalidManifest).Wrapf(err, "invalid YAML")
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	if err := sch.Validate(toJSONTypes(yamlData)); err != nil {
		return errs().Code(CodeInvalidManifest).Wrapf(err, "schema validation failed")
	}
	return nil
}

func compiledSchema() (*jschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if schemaCache != nil {
		return schemaCache, nil
	}

	schemaBytes, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	schemaData, err := jschema.UnmarshalJSON(strings.NewReader(string(schemaBytes)))
	if err != nil {
		return nil, errs().Wrapf(err, "failed to parse schema JSON")
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("plugin.schema.json", schemaData); err != nil {
		return nil, errs().Wrapf(err, "failed to add schema resource")
	}
	sch, err := c.Compile("plugin.schema.json")
	if err != nil {
		return nil, errs().Wrapf(err, "failed to compile schema")
	}

	schemaCache = sch
	return sch, nil
}

// toJSONTypes converts YAML-decoded values into JSON-compatible types.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = toJSONTypes(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = toJSONTypes(v)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string, float64, bool, nil:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return val
		}
		return out
	}
}

// FormatSchemaError strips the wrapper prefix from a schema validation error.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimPrefix(err.Error(), "schema validation failed: ")
}
