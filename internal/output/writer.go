// Package output writes generated artifacts (page HTML, page manifests and
// the channel catalog) below an output root.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/fulmenhq/offlinegen/internal/assets"
	"github.com/fulmenhq/offlinegen/internal/catalog"
	"github.com/fulmenhq/offlinegen/internal/manifest"
	"github.com/fulmenhq/offlinegen/pkg/logger"
	"github.com/fulmenhq/offlinegen/pkg/safeio"
)

const DefaultCatalogFile = "screens/channels.json"

// Options configures a Writer.
type Options struct {
	// CatalogFile is the catalog location relative to the root.
	CatalogFile string
	// Validate checks manifests and the catalog against the embedded schemas
	// before they are written.
	Validate bool
}

// Writer stores files in a billy filesystem rooted at the output directory.
type Writer struct {
	fs   billy.Filesystem
	opts Options
}

func New(fs billy.Filesystem, opts Options) *Writer {
	if opts.CatalogFile == "" {
		opts.CatalogFile = DefaultCatalogFile
	}
	return &Writer{fs: fs, opts: opts}
}

// NewOS writes below dir on the local disk.
func NewOS(dir string, opts Options) *Writer {
	return New(osfs.New(dir), opts)
}

// Filesystem exposes the underlying filesystem.
func (w *Writer) Filesystem() billy.Filesystem { return w.fs }

// WriteFile writes data at the slash-separated name, creating parent
// directories, and returns the local path of the file.
func (w *Writer) WriteFile(name string, data []byte) (string, error) {
	clean, err := safeio.CleanUserPath(name)
	if err != nil {
		return "", err
	}
	if dir := path.Dir(clean); dir != "." {
		if err := w.fs.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(w.fs, clean, data, 0o644); err != nil {
		return "", err
	}
	logger.Debug("file written", logger.String("file", clean), logger.Int("bytes", len(data)))
	return filepath.Join(w.fs.Root(), filepath.FromSlash(clean)), nil
}

// WriteManifest stores the manifest of pagePath at <path>.manifest.json and
// returns its site path ("/a/b.manifest.json") for the catalog.
func (w *Writer) WriteManifest(pagePath string, m *manifest.PageManifest) (string, error) {
	name, err := safeio.PageFile(pagePath, ".manifest.json")
	if err != nil {
		return "", fmt.Errorf("page %s: %w", pagePath, err)
	}
	if err := w.writeJSON(name, assets.SchemaPageManifest, m); err != nil {
		return "", err
	}
	return "/" + name, nil
}

// WriteCatalog stores the channel catalog.
func (w *Writer) WriteCatalog(c *catalog.Catalog) (string, error) {
	if err := w.writeJSON(w.opts.CatalogFile, assets.SchemaChannelCatalog, c); err != nil {
		return "", err
	}
	return w.opts.CatalogFile, nil
}

func (w *Writer) writeJSON(name, schema string, v interface{}) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if w.opts.Validate {
		if err := assets.Validate(schema, data); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	_, err = w.WriteFile(name, data)
	return err
}

// Marshal encodes v as two-space indented JSON without HTML escaping.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
