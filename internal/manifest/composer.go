package manifest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/fulmenhq/offlinegen/pkg/logger"
	"github.com/fulmenhq/offlinegen/pkg/mediapath"
	"golang.org/x/sync/errgroup"
)

// resourceWorkers bounds concurrent HEAD checks within one page.
const resourceWorkers = 8

// ComposerOptions configures a Composer
type ComposerOptions struct {
	AdaptiveRenditions bool
	Delivery           *ContentDelivery
	Classifier         *mediapath.Classifier
	Clock              func() time.Time
}

// Composer builds page manifests, flattening nested fragments into the page
// that includes them.
type Composer struct {
	resolver   *Resolver
	pages      PageSource
	classifier *mediapath.Classifier
	clock      func() time.Time
	delivery   ContentDelivery
	adaptive   bool
}

// NewComposer wires a composer over a head fetcher and the page index used
// to look up fragments.
func NewComposer(fetcher HeadFetcher, pages PageSource, opts ComposerOptions) *Composer {
	classifier := opts.Classifier
	if classifier == nil {
		classifier = mediapath.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	delivery := DefaultContentDelivery()
	if opts.Delivery != nil {
		delivery = *opts.Delivery
	}
	return &Composer{
		resolver:   NewResolver(fetcher, classifier, clock),
		pages:      pages,
		classifier: classifier,
		clock:      clock,
		delivery:   delivery,
		adaptive:   opts.AdaptiveRenditions,
	}
}

// composed is the result of one page-plus-fragments traversal before it is
// turned into a PageManifest.
type composed struct {
	entries  map[string]Entry
	latest   int64
	hasStamp bool
}

func (c *composed) observe(ts *int64) {
	if ts == nil {
		return
	}
	if !c.hasStamp || *ts > c.latest {
		c.latest = *ts
	}
	c.hasStamp = true
}

// Compose builds the manifest for page. freshlyGenerated stamps the page
// entry with the synthesis time; extraResources are added to the declared
// lists. The page's own entry failing is an error; missing resources and
// fragments are logged and left out. A fragment cycle fails the page with
// *CyclicFragmentError.
func (c *Composer) Compose(ctx context.Context, host string, page *PageData, freshlyGenerated bool, extraResources []string) (*PageManifest, error) {
	res, err := c.compose(ctx, host, page, freshlyGenerated, extraResources, nil)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(res.entries))
	for _, e := range res.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	ts := res.latest
	if !res.hasStamp {
		ts = c.clock().UnixMilli()
	}

	logger.Debug("manifest composed",
		logger.String("page", page.Path),
		logger.Int("entries", len(entries)),
		logger.Int64("timestamp", ts))

	delivery := c.delivery
	delivery.Providers = append([]Provider(nil), c.delivery.Providers...)
	return &PageManifest{
		Version:         Version,
		Timestamp:       ts,
		Entries:         entries,
		ContentDelivery: delivery,
	}, nil
}

func (c *Composer) compose(ctx context.Context, host string, page *PageData, fresh bool, extra []string, chain []string) (*composed, error) {
	for _, p := range chain {
		if p == page.Path {
			cycle := append(append([]string(nil), chain...), page.Path)
			return nil, &CyclicFragmentError{Chain: cycle}
		}
	}
	// Each branch owns its chain; siblings never see each other's paths.
	chain = append(append(make([]string, 0, len(chain)+1), chain...), page.Path)

	pageEntry, err := c.resolver.ResolvePageEntry(ctx, host, page.Path, fresh)
	if err != nil {
		return nil, err
	}

	res := &composed{entries: make(map[string]Entry)}
	res.entries[pageEntry.Path] = pageEntry
	res.observe(pageEntry.Timestamp)

	parent := mediapath.ParentFromPath(page.Path)
	resources := c.collectResources(page, extra)

	resolved := make([]*Entry, len(resources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resourceWorkers)
	for i, rp := range resources {
		g.Go(func() error {
			target := c.classifier.Rebase(parent, rp)
			entry, err := c.resolver.ResolveResourceEntry(gctx, host, target, c.adaptive)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				var ru *ResourceUnavailable
				if errors.As(err, &ru) {
					ru.Page = page.Path
				}
				logger.Warn("resource not available, skipping",
					logger.String("path", target),
					logger.String("page", page.Path),
					logger.Err(err))
				return nil
			}
			resolved[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, e := range resolved {
		if e == nil {
			continue
		}
		res.entries[e.Path] = *e
		res.observe(e.Timestamp)
	}

	frags, err := c.composeFragments(ctx, host, page, chain)
	if err != nil {
		return nil, err
	}
	// Merge in declared order so the last fragment wins deterministically.
	for _, f := range frags {
		if f == nil {
			continue
		}
		if f.hasStamp {
			res.observe(&f.latest)
		}
		for _, e := range sortedEntries(f.entries) {
			if c.classifier.IsMedia(e.Path) {
				e = c.rebaseEntry(parent, e)
			}
			res.entries[e.Path] = e
		}
	}
	return res, nil
}

// composeFragments resolves all fragments concurrently. Results keep the
// declared order; skipped fragments leave a nil slot.
func (c *Composer) composeFragments(ctx context.Context, host string, page *PageData, chain []string) ([]*composed, error) {
	out := make([]*composed, len(page.Fragments))
	g, gctx := errgroup.WithContext(ctx)
	for i, fragPath := range page.Fragments {
		g.Go(func() error {
			frag, ok := c.pages.Page(fragPath)
			if !ok {
				logger.Warn("fragment not in page index, skipping",
					logger.String("path", fragPath),
					logger.String("page", page.Path))
				return nil
			}
			res, err := c.compose(gctx, host, frag, false, []string{fragPath + ".plain.html"}, chain)
			if err != nil {
				var cyc *CyclicFragmentError
				if errors.As(err, &cyc) {
					return err
				}
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("fragment unavailable, skipping",
					logger.String("path", fragPath),
					logger.String("page", page.Path),
					logger.Err(err))
				return nil
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// collectResources unions the declared lists into an ordered set. Asset and
// inline image references are trimmed first; the others are taken verbatim.
func (c *Composer) collectResources(page *PageData, extra []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, list := range [][]string{page.Scripts, page.Styles} {
		for _, p := range list {
			add(p)
		}
	}
	for _, list := range [][]string{page.Assets, page.InlineImages} {
		for _, p := range list {
			add(mediapath.TrimResourcePath(p))
		}
	}
	for _, list := range [][]string{page.Dependencies, extra} {
		for _, p := range list {
			add(p)
		}
	}
	return out
}

// rebaseEntry moves a fragment's media entry (and its renditions) under the
// including page's directory.
func (c *Composer) rebaseEntry(parent string, e Entry) Entry {
	e.Path = c.classifier.Rebase(parent, e.Path)
	if len(e.Renditions) > 0 {
		rs := make([]Rendition, len(e.Renditions))
		for i, r := range e.Renditions {
			r.Path = c.classifier.Rebase(parent, r.Path)
			rs[i] = r
		}
		e.Renditions = rs
	}
	return e
}

func sortedEntries(m map[string]Entry) []Entry {
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
