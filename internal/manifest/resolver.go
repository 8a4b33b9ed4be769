package manifest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/offlinegen/pkg/fetch"
	"github.com/fulmenhq/offlinegen/pkg/logger"
	"github.com/fulmenhq/offlinegen/pkg/mediapath"
)

// HeadFetcher issues (or replays) HEAD requests. *fetch.Cache implements it.
type HeadFetcher interface {
	Head(ctx context.Context, host, path string) (*fetch.Response, error)
}

// Resolver turns single declared resources into manifest entries.
type Resolver struct {
	fetcher    HeadFetcher
	classifier *mediapath.Classifier
	clock      func() time.Time
}

// NewResolver creates a resolver. A nil classifier uses the defaults and a
// nil clock uses time.Now.
func NewResolver(fetcher HeadFetcher, classifier *mediapath.Classifier, clock func() time.Time) *Resolver {
	if classifier == nil {
		classifier = mediapath.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Resolver{fetcher: fetcher, classifier: classifier, clock: clock}
}

// ResolvePageEntry builds the entry for the page document itself
// (pagePath + ".html"). A page regenerated locally in this run is stamped
// with the synthesis time without asking the origin. Otherwise the origin
// must answer; a missing last-modified header leaves the timestamp unset.
func (r *Resolver) ResolvePageEntry(ctx context.Context, host, pagePath string, freshlyGenerated bool) (Entry, error) {
	entry := Entry{Path: pagePath + ".html"}
	if freshlyGenerated {
		entry.Timestamp = timestampPtr(r.clock().UnixMilli())
		return entry, nil
	}

	resp, err := r.fetcher.Head(ctx, host, entry.Path)
	if err != nil {
		return Entry{}, err
	}
	if !resp.OK() {
		return Entry{}, &fetch.FetchError{URL: resp.URL, Method: http.MethodHead, StatusCode: resp.StatusCode}
	}
	if lm, ok := resp.LastModified(); ok {
		entry.Timestamp = timestampPtr(lm.UnixMilli())
	}
	return entry, nil
}

// ResolveResourceEntry checks one resource. An unreachable resource yields
// (nil, *ResourceUnavailable) and the caller drops it. Media entries carry
// their content hash and never a timestamp.
func (r *Resolver) ResolveResourceEntry(ctx context.Context, host, resourcePath string, adaptiveRenditions bool) (*Entry, error) {
	path := strings.TrimSpace(resourcePath)
	resp, err := r.fetcher.Head(ctx, host, path)
	if err != nil {
		return nil, &ResourceUnavailable{Path: path, Cause: err}
	}
	if !resp.OK() {
		return nil, &ResourceUnavailable{Path: path, Cause: fmt.Errorf("status code %d", resp.StatusCode)}
	}

	entry := &Entry{Path: path}
	if r.classifier.IsMedia(path) {
		entry.Hash = r.classifier.HashFromMedia(path)
	} else if lm, ok := resp.LastModified(); ok {
		entry.Timestamp = timestampPtr(lm.UnixMilli())
	}

	if adaptiveRenditions && strings.HasPrefix(resp.ContentType(), "image/") {
		entry.Renditions = r.probeRenditions(ctx, host, path)
	}
	return entry, nil
}

// probeRenditions keeps each orientation the origin confirms. A failed probe
// only drops that rendition.
func (r *Resolver) probeRenditions(ctx context.Context, host, path string) []Rendition {
	var out []Rendition
	for _, name := range []string{RenditionLandscape, RenditionPortrait} {
		rp := mediapath.RenditionPath(path, name)
		resp, err := r.fetcher.Head(ctx, host, rp)
		if err != nil || !resp.OK() {
			logger.Debug("rendition not available", logger.String("path", rp))
			continue
		}
		size := renditionSize[name]
		out = append(out, Rendition{Name: name, Path: rp, Width: size[0], Height: size[1]})
	}
	return out
}
