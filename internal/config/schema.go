package config

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

// SchemaID is the $id of the generated config schema.
const SchemaID = "https://github.com/haasonsaas/chatlink/schemas/config.json"

// durationPattern matches the strings time.ParseDuration accepts.
const durationPattern = `^-?([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns the JSON Schema for chatlink config files. Durations
// are described as Go duration strings ("1s", "1m30s"), the form the YAML
// and JSON5 loaders decode.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag:   "yaml",
			ExpandedStruct: true,
			DoNotReference: true,
			Mapper:         mapDuration,
		}
		schema := r.Reflect(&Config{})
		schema.ID = SchemaID
		schema.Title = "chatlink configuration"
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}

func mapDuration(t reflect.Type) *jsonschema.Schema {
	if t != reflect.TypeOf(time.Duration(0)) {
		return nil
	}
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     durationPattern,
		Description: "Go duration such as 500ms, 10s or 1m30s",
	}
}
