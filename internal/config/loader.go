package config

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKey lists files merged underneath the file that names them. Later
// includes override earlier ones; the including file overrides all of them.
const includeKey = "$include"

// envPattern matches ${NAME} and ${NAME:-fallback}. Bare $NAME is left alone
// so that $include and literal dollars survive expansion.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// sections maps each top-level key of Config to whether it holds a mapping.
var sections = configSections()

func configSections() map[string]bool {
	out := map[string]bool{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}
		out[name] = t.Field(i).Type.Kind() == reflect.Struct
	}
	return out
}

// Document is a configuration after $include merging, before decoding.
type Document struct {
	Values map[string]any
	// Sources lists the files read, includes before the files naming them.
	Sources []string
}

// LoadRaw reads path and its includes into a merged Document. Every file,
// include fragments too, may only use known top-level sections, and only
// the top-level file may set version.
func LoadRaw(path string) (*Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	l := &rawLoader{seen: map[string]bool{}}
	values, err := l.load(path, true)
	if err != nil {
		return nil, err
	}
	return &Document{Values: values, Sources: l.sources}, nil
}

type rawLoader struct {
	seen    map[string]bool
	sources []string
}

func (l *rawLoader) load(path string, root bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if l.seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	l.seen[absPath] = true
	defer delete(l.seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	raw, err := parseDocument([]byte(expandEnv(string(data))), absPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	if err := checkSections(raw, root); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	merged := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(absPath), inc)
		}
		fragment, err := l.load(inc, false)
		if err != nil {
			return nil, err
		}
		merged = mergeSections(merged, fragment)
	}
	l.sources = append(l.sources, absPath)
	return mergeSections(merged, raw), nil
}

// expandEnv substitutes ${NAME} with the environment value. ${NAME:-x}
// falls back to x when NAME is unset or empty.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := envPattern.FindStringSubmatch(m)
		if v := os.Getenv(sub[1]); v != "" {
			return v
		}
		return sub[2]
	})
}

func parseDocument(data []byte, pathHint string) (map[string]any, error) {
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(pathHint)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(&raw); err != nil && err != io.EOF {
			return nil, err
		}
		if err := decoder.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("expected a single YAML document")
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// extractIncludes removes $include from raw and returns its paths.
func extractIncludes(raw map[string]any) ([]string, error) {
	value, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	var paths []string
	switch typed := value.(type) {
	case nil:
	case string:
		paths = []string{typed}
	case []any:
		for _, entry := range typed {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings", includeKey)
			}
			paths = append(paths, s)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or a list of strings", includeKey)
	}
	return slices.DeleteFunc(paths, func(p string) bool { return strings.TrimSpace(p) == "" }), nil
}

// checkSections rejects unknown top-level keys and sections of the wrong
// shape before they are merged, so errors name the file that caused them.
func checkSections(raw map[string]any, root bool) error {
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		mapping, known := sections[key]
		if !known {
			return fmt.Errorf("unknown section %q", key)
		}
		if key == "version" && !root {
			return fmt.Errorf("version may only be set in the top-level config")
		}
		value := raw[key]
		if value == nil {
			continue
		}
		_, isMap := value.(map[string]any)
		_, isList := value.([]any)
		switch {
		case mapping && !isMap:
			return fmt.Errorf("section %q must be a mapping, got %v", key, value)
		case !mapping && (isMap || isList):
			return fmt.Errorf("%q must be a single value", key)
		}
	}
	return nil
}

// mergeSections merges src into dst recursively. A null in src leaves the
// value from dst in place, so an empty section does not erase an include.
func mergeSections(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if value == nil {
			if _, ok := dst[key]; !ok {
				dst[key] = nil
			}
			continue
		}
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeSections(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// decodeDocument decodes values onto Default(), rejecting unknown keys
// inside sections.
func decodeDocument(values map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("serialize config: %w", err)
	}
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
