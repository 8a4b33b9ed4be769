// Package generator renders the local HTML for a page before its manifest is
// composed. Pages pick a generator through their template name; pages without
// a registered template use the default generator.
package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fulmenhq/offlinegen/internal/manifest"
	"github.com/fulmenhq/offlinegen/pkg/logger"
	"github.com/fulmenhq/offlinegen/pkg/safeio"
)

// Kind tags which case of Generator is in use.
type Kind int

const (
	KindDefault Kind = iota
	KindNamed
)

func (k Kind) String() string {
	if k == KindNamed {
		return "named"
	}
	return "default"
}

// Built-in generator names.
const (
	NameDefault  = "default"
	NameCarousel = "carousel"
)

// TextFetcher reads a document from the origin. *fetch.Cache implements it.
type TextFetcher interface {
	Text(ctx context.Context, host, path string) (string, error)
}

// FileWriter stores a generated file under the output root and returns the
// local path it was written to.
type FileWriter interface {
	WriteFile(name string, data []byte) (string, error)
}

// Output is what a renderer produced for one page. A nil HTML means nothing
// should be written. Extra lists origin paths the page depends on that are
// not in its declared resource lists.
type Output struct {
	HTML  []byte
	Extra []string
}

// Renderer produces the HTML for one page.
type Renderer interface {
	Render(ctx context.Context, host, pagePath string) (*Output, error)
}

// Generator is either the default generator or a named one.
type Generator struct {
	Kind     Kind
	Name     string
	Template string
	renderer Renderer
}

// Result describes a finished generation.
type Result struct {
	Generator string
	// File is the local path of the written HTML, empty when nothing was written.
	File  string
	Extra []string
}

// Registry maps template names to generators.
type Registry struct {
	renderers map[string]Renderer
	templates map[string]string
	writer    FileWriter
}

// NewRegistry creates a registry with the built-in generators. templates maps
// page template names to generator names; a template that is itself a
// generator name needs no mapping.
func NewRegistry(fetcher TextFetcher, writer FileWriter, templates map[string]string) (*Registry, error) {
	r := &Registry{
		renderers: map[string]Renderer{
			NameDefault:  NewHTMLRenderer(fetcher),
			NameCarousel: NewCarouselRenderer(fetcher),
		},
		templates: make(map[string]string, len(templates)),
		writer:    writer,
	}
	for tmpl, name := range templates {
		if err := r.Map(tmpl, name); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a named renderer.
func (r *Registry) Register(name string, renderer Renderer) {
	r.renderers[strings.ToLower(strings.TrimSpace(name))] = renderer
}

// Map binds a page template to a registered generator.
func (r *Registry) Map(template, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := r.renderers[name]; !ok {
		return fmt.Errorf("template %q maps to unknown generator %q (known: %s)", template, name, strings.Join(r.Names(), ", "))
	}
	r.templates[strings.ToLower(strings.TrimSpace(template))] = name
	return nil
}

// Names lists the registered generators.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.renderers))
	for n := range r.renderers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve picks the generator for a page template. No match is not an error;
// it selects the default generator.
func (r *Registry) Resolve(template string) Generator {
	key := strings.ToLower(strings.TrimSpace(template))
	name, ok := r.templates[key]
	if !ok {
		name = key
	}
	if renderer, ok := r.renderers[name]; ok && name != "" && name != NameDefault {
		return Generator{Kind: KindNamed, Name: name, Template: template, renderer: renderer}
	}
	return Generator{Kind: KindDefault, Name: NameDefault, Template: template, renderer: r.renderers[NameDefault]}
}

// Generate renders the page with its generator and writes <path>.html.
func (r *Registry) Generate(ctx context.Context, host string, page *manifest.PageData) (Result, error) {
	gen := r.Resolve(page.Template)
	res := Result{Generator: gen.Name}

	name, err := safeio.PageFile(page.Path, ".html")
	if err != nil {
		return res, fmt.Errorf("page %s: %w", page.Path, err)
	}

	logger.Debug("generating page html",
		logger.String("page", page.Path),
		logger.String("generator", gen.Name))
	out, err := gen.renderer.Render(ctx, host, page.Path)
	if err != nil {
		return res, fmt.Errorf("%s generator for %s: %w", gen.Name, page.Path, err)
	}
	res.Extra = out.Extra
	if out.HTML == nil {
		logger.Info("generator produced no html", logger.String("page", page.Path), logger.String("generator", gen.Name))
		return res, nil
	}

	file, err := r.writer.WriteFile(name, out.HTML)
	if err != nil {
		return res, fmt.Errorf("write %s: %w", name, err)
	}
	res.File = file
	return res, nil
}
