package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads event settings from a file, choosing the format by extension:
// .yaml, .yml or .json. Discarded values are reported as warnings; only an
// unreadable or malformed file is an error.
func Load(path string) (EventSettings, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EventSettings{}, nil, fmt.Errorf("read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return Parse(data)
	case ".json":
		return ParseJSON(data)
	default:
		return EventSettings{}, nil, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// Parse decodes event settings from a YAML mapping. An empty document
// yields the defaults.
func Parse(data []byte) (EventSettings, []string, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return EventSettings{}, nil, fmt.Errorf("parse yaml: %w", err)
	}
	settings, warnings := decodeSettings(doc)
	return settings, warnings, nil
}

// ParseJSON decodes event settings from a JSON object.
func ParseJSON(data []byte) (EventSettings, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return EventSettings{}, nil, fmt.Errorf("parse json: %w", err)
	}
	return FromMap(m)
}

// FromMap decodes event settings from an already decoded document, such as
// one section of a larger application config.
func FromMap(m map[string]any) (EventSettings, []string, error) {
	if len(m) == 0 {
		return DefaultEventSettings(), nil, nil
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return EventSettings{}, nil, fmt.Errorf("encode settings: %w", err)
	}
	return Parse(data)
}
