package registry

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Supported registry formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// yamlFile is the YAML/JSON registry schema. Modules is kept as a node so
// both the list form and the ordered "id: url" mapping form can be read.
type yamlFile struct {
	BaseURL     string    `yaml:"base_url"`
	Modules     yaml.Node `yaml:"modules"`
	Implemented []string  `yaml:"implemented"`
}

type tomlFile struct {
	BaseURL     string             `toml:"base_url"`
	Modules     []ModuleDescriptor `toml:"modules"`
	Implemented []string           `toml:"implemented"`
}

// FormatFor picks the registry format from a file extension.
// JSON is read by the YAML decoder.
func FormatFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported registry extension %q (want .yaml, .yml, .json or .toml)", filepath.Ext(path))
	}
}

// Load reads and validates the registry file at path.
func Load(path string) (*Registry, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	reg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes registry data in the given format.
func Parse(data []byte, format string) (*Registry, error) {
	var (
		base        string
		modules     []ModuleDescriptor
		implemented []string
	)

	switch format {
	case FormatYAML:
		var f yamlFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		m, err := decodeModules(&f.Modules)
		if err != nil {
			return nil, err
		}
		base, modules, implemented = f.BaseURL, m, f.Implemented
	case FormatTOML:
		var f tomlFile
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
		base, modules, implemented = f.BaseURL, f.Modules, f.Implemented
	default:
		return nil, fmt.Errorf("unknown registry format %q", format)
	}

	if len(modules) == 0 {
		return nil, fmt.Errorf("no modules defined")
	}

	reg, err := New(modules, implemented)
	if err != nil {
		return nil, err
	}
	reg.baseURL = strings.TrimSpace(base)
	return reg, nil
}

func decodeModules(node *yaml.Node) ([]ModuleDescriptor, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
		var modules []ModuleDescriptor
		if err := node.Decode(&modules); err != nil {
			return nil, fmt.Errorf("decode modules: %w", err)
		}
		return modules, nil
	case yaml.MappingNode:
		modules := make([]ModuleDescriptor, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if val.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("module %q (line %d): url must be a string", key.Value, val.Line)
			}
			modules = append(modules, ModuleDescriptor{ID: key.Value, URL: val.Value})
		}
		return modules, nil
	default:
		return nil, fmt.Errorf("modules (line %d) must be a list or a mapping", node.Line)
	}
}
