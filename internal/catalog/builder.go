// Package catalog builds the channel catalog: one manifest per top-level page,
// joined with the channel metadata published next to the page index.
package catalog

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/fulmenhq/offlinegen/internal/generator"
	"github.com/fulmenhq/offlinegen/internal/manifest"
	"github.com/fulmenhq/offlinegen/pkg/fetch"
	"github.com/fulmenhq/offlinegen/pkg/logger"
	"github.com/fulmenhq/offlinegen/pkg/mediapath"
)

// Composer builds one page manifest. *manifest.Composer implements it.
type Composer interface {
	Compose(ctx context.Context, host string, page *manifest.PageData, freshlyGenerated bool, extraResources []string) (*manifest.PageManifest, error)
}

// Generator renders a page's local HTML. *generator.Registry implements it.
type Generator interface {
	Generate(ctx context.Context, host string, page *manifest.PageData) (generator.Result, error)
}

// ChangeDetector reports whether a generated file differs from the committed
// one. *gitctx.Repo implements it.
type ChangeDetector interface {
	IsPathLocallyModified(path string) (bool, error)
}

// ManifestSink stores a page manifest and returns the catalog path for it.
type ManifestSink interface {
	WriteManifest(pagePath string, m *manifest.PageManifest) (string, error)
}

// Options configures a Builder. Generator, Detector and Sink are optional.
type Options struct {
	Composer    Composer
	Generator   Generator
	Detector    ChangeDetector
	Sink        ManifestSink
	Classifier  *mediapath.Classifier
	Include     []string
	Exclude     []string
	Concurrency int
}

// PageFailure records a page left out of the catalog.
type PageFailure struct {
	Path string
	Err  error
}

// Report summarizes a build.
type Report struct {
	Skipped   []string
	Failed    []PageFailure
	Generated []string
}

// Builder assembles the catalog.
type Builder struct {
	opts Options
}

func NewBuilder(opts Options) (*Builder, error) {
	if opts.Composer == nil {
		return nil, fmt.Errorf("catalog builder needs a composer")
	}
	for _, p := range append(append([]string(nil), opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid page pattern %q", p)
		}
	}
	if opts.Classifier == nil {
		opts.Classifier = mediapath.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Builder{opts: opts}, nil
}

// Build composes every selected top-level page and returns the catalog. A
// page that fails is logged, reported and left out; Build itself fails only
// when ctx is cancelled.
func (b *Builder) Build(ctx context.Context, host string, pages []*manifest.PageData, channels []ChannelRecord) (*Catalog, *Report, error) {
	meta := make(map[string]ChannelRecord, len(channels))
	for _, c := range channels {
		meta[c.Path] = c
	}

	report := &Report{}
	selected := b.selectPages(pages, report)

	results := make([]*ChannelEntry, len(selected))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for i, page := range selected {
		g.Go(func() error {
			entry, generated, err := b.buildPage(gctx, host, page, meta)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Error("page skipped", logger.String("path", page.Path), logger.Err(err))
				mu.Lock()
				report.Failed = append(report.Failed, PageFailure{Path: page.Path, Err: err})
				mu.Unlock()
				return nil
			}
			if generated != "" {
				mu.Lock()
				report.Generated = append(report.Generated, generated)
				mu.Unlock()
			}
			results[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	cat := &Catalog{Channels: make([]ChannelEntry, 0, len(results))}
	for _, e := range results {
		if e != nil {
			cat.Channels = append(cat.Channels, *e)
		}
	}
	sort.SliceStable(cat.Channels, func(i, j int) bool {
		a, b := cat.Channels[i], cat.Channels[j]
		if a.ExternalID != b.ExternalID {
			return a.ExternalID < b.ExternalID
		}
		return a.path < b.path
	})
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Path < report.Failed[j].Path })
	sort.Strings(report.Generated)
	return cat, report, nil
}

// selectPages drops fragments (pages included by another page) and pages
// filtered out by the include/exclude patterns.
func (b *Builder) selectPages(pages []*manifest.PageData, report *Report) []*manifest.PageData {
	fragments := make(map[string]struct{})
	for _, p := range pages {
		for _, f := range p.Fragments {
			fragments[f] = struct{}{}
		}
	}

	var out []*manifest.PageData
	for _, p := range pages {
		if _, isFragment := fragments[p.Path]; isFragment {
			logger.Debug("fragment is not a channel", logger.String("path", p.Path))
			continue
		}
		if !b.matches(p.Path) {
			report.Skipped = append(report.Skipped, p.Path)
			continue
		}
		out = append(out, p)
	}
	return out
}

func (b *Builder) matches(path string) bool {
	for _, pat := range b.opts.Exclude {
		if ok, _ := doublestar.Match(pat, path); ok {
			return false
		}
	}
	if len(b.opts.Include) == 0 {
		return true
	}
	for _, pat := range b.opts.Include {
		if ok, _ := doublestar.Match(pat, path); ok {
			return true
		}
	}
	return false
}

func (b *Builder) buildPage(ctx context.Context, host string, page *manifest.PageData, meta map[string]ChannelRecord) (*ChannelEntry, string, error) {
	fresh := false
	var extra []string
	var generated string
	if b.opts.Generator != nil {
		res, err := b.opts.Generator.Generate(ctx, host, page)
		if err != nil {
			// The origin copy is still usable for the manifest.
			logger.Warn("html generation failed", logger.String("path", page.Path), logger.Err(err))
		} else {
			extra = res.Extra
			generated = res.File
			if res.File != "" && b.opts.Detector != nil {
				modified, err := b.opts.Detector.IsPathLocallyModified(res.File)
				if err != nil {
					logger.Warn("cannot compare generated html with git", logger.String("path", res.File), logger.Err(err))
				}
				fresh = modified
			}
		}
	}

	m, err := b.opts.Composer.Compose(ctx, host, page, fresh, extra)
	if err != nil {
		return nil, "", err
	}

	manifestPath := page.Path + ".manifest.json"
	if b.opts.Sink != nil {
		if manifestPath, err = b.opts.Sink.WriteManifest(page.Path, m); err != nil {
			return nil, "", err
		}
	}

	entry := &ChannelEntry{
		ManifestPath: &manifestPath,
		LastModified: FromMillis(m.Timestamp),
		Hierarchy:    b.opts.Classifier.ParentHierarchy(page.Path),
		path:         page.Path,
		entries:      len(m.Entries),
	}
	if rec, ok := meta[page.Path]; ok {
		entry.ExternalID = rec.ExternalID
		entry.Title = rec.Title
		entry.LiveURL = rec.LiveURL
		entry.EditURL = rec.EditURL
		if rec.Online {
			entry.ManifestPath = nil
		}
	} else {
		entry.ExternalID = page.Path
		entry.LiveURL = fetch.JoinURL(host, page.Path)
	}
	logger.Debug("channel built",
		logger.String("path", page.Path),
		logger.Int("entries", len(m.Entries)),
		logger.Bool("fresh", fresh))
	return entry, generated, nil
}
