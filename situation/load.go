package situation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a situation file. The format follows the extension: .json,
// .yaml or .yml.
func Load(path string) (Situation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Situation{}, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Situation{}, fmt.Errorf("unsupported situation format: %s", ext)
	}
}

// ParseJSON decodes a JSON situation. Unknown fields are ignored.
func ParseJSON(data []byte) (Situation, error) {
	var s Situation
	if err := json.Unmarshal(bytes.TrimSpace(data), &s); err != nil {
		return Situation{}, fmt.Errorf("situation: decode json: %w", err)
	}
	return s, nil
}

// ParseYAML decodes a YAML situation.
func ParseYAML(data []byte) (Situation, error) {
	var s Situation
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Situation{}, fmt.Errorf("situation: decode yaml: %w", err)
	}
	return s, nil
}
