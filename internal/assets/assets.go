package assets

import (
	"embed"
	"io/fs"
)

//go:embed embedded_templates
var Templates embed.FS

func GetTemplatesFS() fs.FS {
	if sub, err := fs.Sub(Templates, "embedded_templates"); err == nil {
		return sub
	}
	return Templates
}

// GetTemplate reads an embedded template by its path below embedded_templates
// (e.g. "carousel/carousel.hbs").
func GetTemplate(path string) ([]byte, error) {
	return fs.ReadFile(GetTemplatesFS(), path)
}
