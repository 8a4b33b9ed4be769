package assets

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed embedded_schemas
var schemaFS embed.FS

// Names of the embedded output schemas.
const (
	SchemaPageManifest   = "page-manifest"
	SchemaChannelCatalog = "channel-catalog"
)

var knownSchemas = map[string]string{
	SchemaPageManifest:   "embedded_schemas/page-manifest.yaml",
	SchemaChannelCatalog: "embedded_schemas/channel-catalog.yaml",
}

var (
	compiledMu sync.Mutex
	compiled   = map[string]*gojsonschema.Schema{}
)

// GetSchema returns the raw embedded schema by name.
func GetSchema(name string) ([]byte, bool) {
	path, ok := knownSchemas[name]
	if !ok {
		return nil, false
	}
	data, err := schemaFS.ReadFile(path)
	return data, err == nil
}

// GetSchemaNames lists the embedded schemas in sorted order.
func GetSchemaNames() []string {
	names := make([]string, 0, len(knownSchemas))
	for name := range knownSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidationError lists every schema violation of one document.
type ValidationError struct {
	Schema   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed:\n%s", e.Schema, strings.Join(e.Problems, "\n"))
}

// Validate checks a JSON document against the named embedded schema.
func Validate(name string, document []byte) error {
	schema, err := load(name)
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &ValidationError{Schema: name, Problems: problems}
}

func load(name string) (*gojsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()
	if s, ok := compiled[name]; ok {
		return s, nil
	}

	raw, ok := GetSchema(name)
	if !ok {
		return nil, fmt.Errorf("unknown schema: %s", name)
	}
	// Schemas are authored in YAML; gojsonschema takes the decoded document.
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", name, err)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	compiled[name] = s
	return s, nil
}
