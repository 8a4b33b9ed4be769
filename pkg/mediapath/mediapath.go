// Package mediapath classifies and rewrites resource paths declared by content
// pages: media detection, content-hash extraction, rebasing of media under a
// page's directory and breadcrumb hierarchies.
package mediapath

import (
	"strings"
)

const (
	DefaultMediaPrefix        = "media_"
	DefaultImageServicePrefix = "/is/image/"
	DefaultRootMarker         = "/content"
)

// Crumb is one ancestor in a page hierarchy
type Crumb struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

// Classifier holds the configured media-hosting markers.
type Classifier struct {
	MediaPrefix        string
	ImageServicePrefix string
	RootMarker         string
}

// New returns a classifier; empty arguments take the defaults.
func New(mediaPrefix, imageServicePrefix, rootMarker string) *Classifier {
	if mediaPrefix == "" {
		mediaPrefix = DefaultMediaPrefix
	}
	if imageServicePrefix == "" {
		imageServicePrefix = DefaultImageServicePrefix
	}
	if rootMarker == "" {
		rootMarker = DefaultRootMarker
	}
	return &Classifier{
		MediaPrefix:        mediaPrefix,
		ImageServicePrefix: imageServicePrefix,
		RootMarker:         rootMarker,
	}
}

// Default returns a classifier with the stock markers
func Default() *Classifier {
	return New("", "", "")
}

// IsMedia reports whether path references content-hosted or image-service media.
func (c *Classifier) IsMedia(path string) bool {
	p := strings.TrimSpace(path)
	return strings.Contains(p, c.MediaPrefix) || strings.Contains(p, c.ImageServicePrefix)
}

// IsImageService reports whether path is served by the external image service.
func (c *Classifier) IsImageService(path string) bool {
	return strings.Contains(strings.TrimSpace(path), c.ImageServicePrefix)
}

// HashFromMedia extracts the content hash of a media path. Content-hosted media
// carry the hash between the prefix and the first following '.'; image-service
// media are identified by "scene7-" plus their last path segment. Paths that
// are not media yield "".
func (c *Classifier) HashFromMedia(path string) string {
	p := strings.TrimSpace(path)
	if c.IsImageService(p) {
		p = stripQuery(p)
		return "scene7-" + CurrentPathName(strings.TrimSuffix(p, "/"))
	}
	idx := strings.Index(p, c.MediaPrefix)
	if idx < 0 {
		return ""
	}
	rest := p[idx+len(c.MediaPrefix):]
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		rest = rest[:dot]
	}
	return stripQuery(rest)
}

// ExtractMediaFromPath returns the portable media reference starting at the
// content-hosted prefix. Paths without the prefix are returned trimmed.
func (c *Classifier) ExtractMediaFromPath(path string) string {
	p := strings.TrimSpace(path)
	if idx := strings.Index(p, c.MediaPrefix); idx >= 0 {
		return p[idx:]
	}
	return p
}

// Rebase relocates a content-hosted media path under parent (a page's
// directory as returned by ParentFromPath). Image-service and non-media paths
// are returned unchanged.
func (c *Classifier) Rebase(parent, path string) string {
	p := strings.TrimSpace(path)
	if !c.IsMedia(p) || c.IsImageService(p) {
		return p
	}
	return strings.TrimSuffix(parent, "/") + "/" + c.ExtractMediaFromPath(p)
}

// ParentHierarchy walks up from path's parent until the root marker or the
// empty string and returns the ancestors root-first.
func (c *Classifier) ParentHierarchy(path string) []Crumb {
	hierarchy := []Crumb{}
	current := ParentFromPath(path)
	for current != c.RootMarker && current != "" {
		hierarchy = append(hierarchy, Crumb{Title: CurrentPathName(current), Path: current})
		current = ParentFromPath(current)
	}
	for i, j := 0, len(hierarchy)-1; i < j; i, j = i+1, j-1 {
		hierarchy[i], hierarchy[j] = hierarchy[j], hierarchy[i]
	}
	return hierarchy
}

// ParentFromPath drops everything from the last '/'.
func ParentFromPath(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// CurrentPathName returns the last path segment.
func CurrentPathName(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}

// TrimResourcePath removes the relative-path artifact ("./" or a single '.')
// and any query string from an asset reference.
func TrimResourcePath(path string) string {
	p := strings.TrimSpace(path)
	switch {
	case strings.HasPrefix(p, "./"):
		p = p[2:]
	case strings.HasPrefix(p, "."):
		p = p[1:]
	}
	return stripQuery(p)
}

// RenditionPath returns the sibling rendition of an image for the given
// orientation name: <parent>/<name>_renditions/<name>-<orientation>.jpeg
func RenditionPath(path, orientation string) string {
	parent := ParentFromPath(path)
	name := CurrentPathName(path)
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		name = name[:dot]
	}
	return parent + "/" + name + "_renditions/" + name + "-" + orientation + ".jpeg"
}

func stripQuery(p string) string {
	if idx := strings.IndexByte(p, '?'); idx >= 0 {
		return p[:idx]
	}
	return p
}
