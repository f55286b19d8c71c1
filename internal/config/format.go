package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// configJSON returns the raw file content as JSON. Files with a YAML
// extension are converted first, so a single strict decoder (json with
// DisallowUnknownFields) serves both formats.
func configJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("render yaml as json: %w", err)
	}
	return out, nil
}

// stringKeys rewrites any-keyed maps with string keys. The yaml decoder
// produces them for documents with non-scalar keys, and encoding/json
// refuses to marshal map[any]any.
func stringKeys(v any) any {
	switch doc := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(doc))
		for k, item := range doc {
			out[fmt.Sprint(k)] = stringKeys(item)
		}
		return out
	case map[string]any:
		for k, item := range doc {
			doc[k] = stringKeys(item)
		}
		return doc
	case []any:
		for i, item := range doc {
			doc[i] = stringKeys(item)
		}
		return doc
	default:
		return v
	}
}
