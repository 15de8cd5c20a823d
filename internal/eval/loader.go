package eval

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/ragbench/pkg/models"
)

//go:embed dataset.schema.json
var datasetSchemaJSON string

var (
	datasetSchemaOnce sync.Once
	datasetSchema     *jsonschema.Schema
	datasetSchemaErr  error
)

// Dataset is a loaded golden query set.
type Dataset struct {
	Version int                  `json:"version" yaml:"version"`
	Name    string               `json:"name" yaml:"name"`
	Queries []models.GoldenQuery `json:"queries" yaml:"queries"`
}

// LoadDataset reads a golden dataset from YAML (.yaml, .yml), JSON (.json)
// or JSON Lines (.jsonl). YAML and JSON files hold either a list of queries
// or a document with a "queries" list. Records are validated against the
// dataset schema before decoding.
func LoadDataset(path string) (*Dataset, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return ParseDataset(data, filepath.Ext(path))
}

// ParseDataset decodes dataset bytes in the format implied by ext.
func ParseDataset(data []byte, ext string) (*Dataset, error) {
	raw, err := parseDatasetDocument(data, strings.ToLower(ext))
	if err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	ds := &Dataset{}
	var records any
	switch typed := raw.(type) {
	case []any:
		records = typed
	case map[string]any:
		if v, ok := typed["version"].(float64); ok {
			ds.Version = int(v)
		}
		if name, ok := typed["name"].(string); ok {
			ds.Name = name
		}
		queries, ok := typed["queries"]
		if !ok {
			return nil, fmt.Errorf("dataset has no queries")
		}
		records = queries
	default:
		return nil, fmt.Errorf("dataset must be a list of queries or a document with queries")
	}
	return finishDataset(ds, records)
}

func finishDataset(ds *Dataset, records any) (*Dataset, error) {
	schema, err := compiledDatasetSchema()
	if err != nil {
		return nil, fmt.Errorf("compile dataset schema: %w", err)
	}
	if err := schema.Validate(records); err != nil {
		return nil, fmt.Errorf("dataset invalid: %w", err)
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	if err := json.Unmarshal(payload, &ds.Queries); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	seen := make(map[string]struct{}, len(ds.Queries))
	for i, q := range ds.Queries {
		if strings.TrimSpace(q.ID) == "" {
			return nil, fmt.Errorf("query %d missing id", i)
		}
		if strings.TrimSpace(q.Query) == "" {
			return nil, fmt.Errorf("query %q missing text", q.ID)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("duplicate query id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return ds, nil
}

// parseDatasetDocument returns a JSON-shaped value (maps, slices, float64,
// strings) so the schema validator sees the same types for every format.
func parseDatasetDocument(data []byte, ext string) (any, error) {
	switch ext {
	case ".json":
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return doc, nil
	case ".jsonl", ".ndjson":
		var records []any
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			var rec any
			if err := json.Unmarshal([]byte(text), &rec); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			records = append(records, rec)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return records, nil
	default:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		// Round-trip through JSON to normalize YAML scalars.
		payload, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		var normalized any
		if err := json.Unmarshal(payload, &normalized); err != nil {
			return nil, err
		}
		return normalized, nil
	}
}

func compiledDatasetSchema() (*jsonschema.Schema, error) {
	datasetSchemaOnce.Do(func() {
		datasetSchema, datasetSchemaErr = jsonschema.CompileString("dataset.schema.json", datasetSchemaJSON)
	})
	return datasetSchema, datasetSchemaErr
}
