package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// registryFile is the on-disk template mapping:
//
//	generators:
//	  screens-carousel: carousel
type registryFile struct {
	Generators map[string]string `json:"generators" yaml:"generators" toml:"generators"`
}

// LoadTemplateMap reads a template→generator mapping from a YAML, TOML or JSON
// file, chosen by extension.
func LoadTemplateMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read generator registry: %w", err)
	}
	return ParseTemplateMap(filepath.Ext(path), data)
}

// ParseTemplateMap decodes a registry document; ext selects the format.
func ParseTemplateMap(ext string, data []byte) (map[string]string, error) {
	var rf registryFile
	var err error
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &rf)
	case "toml":
		err = toml.Unmarshal(data, &rf)
	case "json":
		err = json.Unmarshal(data, &rf)
	default:
		return nil, fmt.Errorf("unsupported generator registry format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse generator registry: %w", err)
	}
	if rf.Generators == nil {
		rf.Generators = map[string]string{}
	}
	return rf.Generators, nil
}
