package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PageRecord is one row of the page index as published by the origin. The
// resource lists arrive as JSON text inside JSON; they stay raw until Parse.
type PageRecord struct {
	Path         string          `json:"path"`
	Template     string          `json:"template,omitempty"`
	Scripts      json.RawMessage `json:"scripts,omitempty"`
	Styles       json.RawMessage `json:"styles,omitempty"`
	Assets       json.RawMessage `json:"assets,omitempty"`
	InlineImages json.RawMessage `json:"inlineImages,omitempty"`
	Dependencies json.RawMessage `json:"dependencies,omitempty"`
	Fragments    json.RawMessage `json:"fragments,omitempty"`
}

// PageData is a page (or fragment) with its declared resources parsed into
// typed lists.
type PageData struct {
	Path         string
	Template     string
	Scripts      []string
	Styles       []string
	Assets       []string
	InlineImages []string
	Dependencies []string
	Fragments    []string
}

// Parse converts the raw record. Any malformed list is a *ParseError.
func (r PageRecord) Parse() (*PageData, error) {
	path := strings.TrimSpace(r.Path)
	if path == "" {
		return nil, &InvalidManifestData{Reason: "page row without path"}
	}
	p := &PageData{Path: path, Template: strings.TrimSpace(r.Template)}
	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *[]string
	}{
		{"scripts", r.Scripts, &p.Scripts},
		{"styles", r.Styles, &p.Styles},
		{"assets", r.Assets, &p.Assets},
		{"inlineImages", r.InlineImages, &p.InlineImages},
		{"dependencies", r.Dependencies, &p.Dependencies},
		{"fragments", r.Fragments, &p.Fragments},
	}
	for _, f := range fields {
		list, err := parseList(f.raw)
		if err != nil {
			return nil, &ParseError{Path: path, Field: f.name, Err: err}
		}
		*f.dst = list
	}
	return p, nil
}

// parseList accepts a JSON-encoded list in a string ("[\"a\"]"), a plain JSON
// array, or nothing.
func parseList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, nil
		}
		raw = []byte(text)
	}
	if raw[0] != '[' {
		return nil, errors.New("expected a JSON list")
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("expected a list of strings: %w", err)
	}
	return list, nil
}

// PageSource looks up page data by path; fragments are resolved through it.
type PageSource interface {
	Page(path string) (*PageData, bool)
}

// Index is an in-memory PageSource.
type Index map[string]*PageData

// Page implements PageSource
func (i Index) Page(path string) (*PageData, bool) {
	p, ok := i[path]
	return p, ok
}

// BuildIndex parses every record. Pages are returned in record order; rows
// that fail to parse are reported in errs and left out of both results. A
// repeated path keeps its first position and its last row.
func BuildIndex(records []PageRecord) (pages []*PageData, idx Index, errs []error) {
	idx = make(Index, len(records))
	pos := make(map[string]int, len(records))
	for _, r := range records {
		p, err := r.Parse()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if i, dup := pos[p.Path]; dup {
			pages[i] = p
		} else {
			pos[p.Path] = len(pages)
			pages = append(pages, p)
		}
		idx[p.Path] = p
	}
	return pages, idx, errs
}
