package config

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/haasonsaas/ragbench/pkg/models"
)

// durationPattern accepts what time.ParseDuration does, e.g. 30s or 1m30s.
const durationPattern = `^(0|([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+)$`

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns the JSON Schema of a ragbench config file. Every key is
// optional because Load decodes onto Default().
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag:               "yaml",
			ExpandedStruct:             true,
			RequiredFromJSONSchemaTags: true,
			Mapper:                     mapType,
		}
		schema := r.Reflect(&Config{})
		schema.Title = "ragbench configuration"
		schema.Description = "Benchmark run, routing, agent and schedule settings."
		if version, ok := schema.Properties.Get("version"); ok {
			version.Enum = []any{CurrentVersion}
		}
		schema.Properties.Set(includeKey, &jsonschema.Schema{
			Description: "Config files merged underneath this one, relative to it.",
			OneOf: []*jsonschema.Schema{
				{Type: "string"},
				{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			},
		})
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}

// mapType describes types whose YAML form differs from their Go kind.
func mapType(t reflect.Type) *jsonschema.Schema {
	switch t {
	case reflect.TypeOf(time.Duration(0)):
		return &jsonschema.Schema{
			Type:        "string",
			Pattern:     durationPattern,
			Description: "Go duration, e.g. 30s",
		}
	case reflect.TypeOf(models.QueryType("")):
		enum := make([]any, 0, len(models.QueryTypes))
		for _, qt := range models.QueryTypes {
			enum = append(enum, string(qt))
		}
		return &jsonschema.Schema{Type: "string", Enum: enum}
	}
	return nil
}
