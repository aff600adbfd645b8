package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/stepflow/types"
)

// Format is a template file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// decodeStepConfig decodes the config payload for kind. decode is nil when the
// step carries no config at all.
func decodeStepConfig(kind StepKind, decode func(v any) error) (StepConfig, error) {
	if decode == nil {
		if !kind.Known() {
			return nil, types.Errorf(types.ErrUnknownStepKind, "unknown step kind %q", kind)
		}
		return nil, nil
	}

	var err error
	switch kind {
	case KindProviderCall:
		var c ProviderCallConfig
		err = decode(&c)
		return c, err
	case KindDataTransform:
		var c TransformConfig
		err = decode(&c)
		return c, err
	case KindValidate:
		var c ValidateConfig
		err = decode(&c)
		return c, err
	case KindNotify:
		var c NotifyConfig
		err = decode(&c)
		return c, err
	}
	return nil, types.Errorf(types.ErrUnknownStepKind, "unknown step kind %q", kind)
}

// UnmarshalJSON decodes Config according to Kind.
func (s *StepDescriptor) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name      string          `json:"name"`
		Kind      StepKind        `json:"kind"`
		Config    json.RawMessage `json:"config"`
		DependsOn []string        `json:"depends_on"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal step: %w", err)
	}

	var decode func(v any) error
	if len(raw.Config) > 0 && string(raw.Config) != "null" {
		decode = func(v any) error { return json.Unmarshal(raw.Config, v) }
	}
	cfg, err := decodeStepConfig(raw.Kind, decode)
	if err != nil {
		return fmt.Errorf("step %q: %w", raw.Name, err)
	}

	*s = StepDescriptor{Name: raw.Name, Kind: raw.Kind, Config: cfg, DependsOn: raw.DependsOn}
	return nil
}

// UnmarshalYAML decodes Config according to Kind.
func (s *StepDescriptor) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name      string    `yaml:"name"`
		Kind      StepKind  `yaml:"kind"`
		Config    yaml.Node `yaml:"config"`
		DependsOn []string  `yaml:"depends_on"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("failed to unmarshal step: %w", err)
	}

	var decode func(v any) error
	if raw.Config.Kind != 0 {
		decode = raw.Config.Decode
	}
	cfg, err := decodeStepConfig(raw.Kind, decode)
	if err != nil {
		return fmt.Errorf("step %q: %w", raw.Name, err)
	}

	*s = StepDescriptor{Name: raw.Name, Kind: raw.Kind, Config: cfg, DependsOn: raw.DependsOn}
	return nil
}

// ParseTemplate decodes and validates a template.
func ParseTemplate(data []byte, format Format) (*Template, error) {
	var t Template
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template from JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template from YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &t, nil
}

// LoadTemplateFile loads one template; the format follows the file extension.
func LoadTemplateFile(path string) (*Template, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported template file %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	t, err := ParseTemplate(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadTemplateDir loads every .json/.yaml/.yml file in dir (not recursive),
// in file name order.
func LoadTemplateDir(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := FormatFromPath(e.Name()); ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	out := make([]*Template, 0, len(paths))
	for _, p := range paths {
		t, err := LoadTemplateFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// MarshalTemplate encodes t.
func MarshalTemplate(t *Template, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(t, "", "  ")
	case FormatYAML:
		return yaml.Marshal(t)
	}
	return nil, fmt.Errorf("unsupported template format %q", format)
}

// LoadTemplates registers every template found in dir and returns their ids.
func (e *Engine) LoadTemplates(dir string) ([]string, error) {
	templates, err := LoadTemplateDir(dir)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(templates))
	for _, t := range templates {
		if err := e.RegisterTemplate(t); err != nil {
			return ids, err
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}
