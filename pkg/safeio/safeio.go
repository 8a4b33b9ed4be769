package safeio

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrTraversal is returned when a path would escape its root.
var ErrTraversal = errors.New("path traversal detected")

// CleanUserPath cleans a user-provided path and rejects traversal attempts.
// Returns paths with forward slashes for cross-platform consistency.
func CleanUserPath(p string) (string, error) {
	c := filepath.Clean(p)
	for _, seg := range strings.Split(filepath.ToSlash(c), "/") {
		if seg == ".." {
			return "", ErrTraversal
		}
	}
	return filepath.ToSlash(c), nil
}

// PageFile maps a site page path such as "/content/a/b" onto a relative,
// slash-separated output file name ("content/a/b" + suffix). Page paths come
// from remote indexes, so anything that would leave the output root is rejected.
func PageFile(pagePath, suffix string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(pagePath), "/")
	if trimmed == "" {
		return "", errors.New("empty page path")
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == ".." {
			return "", ErrTraversal
		}
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." {
		return "", errors.New("empty page path")
	}
	return cleaned + suffix, nil
}
