/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/fulmenhq/offlinegen/internal/catalog"
	"github.com/fulmenhq/offlinegen/internal/generator"
	"github.com/fulmenhq/offlinegen/internal/gitctx"
	"github.com/fulmenhq/offlinegen/internal/manifest"
	"github.com/fulmenhq/offlinegen/internal/output"
	"github.com/fulmenhq/offlinegen/internal/sheet"
	"github.com/fulmenhq/offlinegen/pkg/ascii"
	"github.com/fulmenhq/offlinegen/pkg/buildinfo"
	"github.com/fulmenhq/offlinegen/pkg/config"
	"github.com/fulmenhq/offlinegen/pkg/exitcode"
	"github.com/fulmenhq/offlinegen/pkg/fetch"
	"github.com/fulmenhq/offlinegen/pkg/logger"
	"github.com/fulmenhq/offlinegen/pkg/mediapath"
	"github.com/spf13/cobra"
)

const allowlistHeader = "x-franklin-allowlist-key"

// Swapped by tests.
var (
	newHTTPFetcher = fetch.NewHTTPFetcher
	now            = time.Now
)

// runMode selects which stages a command runs.
type runMode struct {
	generate bool
	catalog  bool
}

// addRunFlags registers the flags shared by manifests and resources. Every
// flag overrides the config key of the same meaning.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "Origin URL (default: derived from the git checkout)")
	cmd.Flags().String("output-dir", ".", "Directory the manifests and catalog are written to")
	cmd.Flags().String("pages-index", "/manifest", "Origin path of the page index")
	cmd.Flags().String("channels-index", "/channels", "Origin path of the channel metadata")
	cmd.Flags().Bool("adaptive-renditions", false, "Probe landscape and portrait renditions of images")
	cmd.Flags().Int("concurrency", 0, "Pages processed in parallel (0 = number of CPUs)")
	cmd.Flags().StringSlice("include", nil, "Only process pages matching these globs")
	cmd.Flags().StringSlice("exclude", nil, "Skip pages matching these globs")
	cmd.Flags().Bool("validate", true, "Validate output against the embedded JSON schemas")
	cmd.Flags().Duration("timeout", 30*time.Second, "HTTP request timeout")
}

func runSynthesis(cmd *cobra.Command, mode runMode) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return exitcode.Wrap(exitcode.ConfigError, err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	host := cfg.Host
	if host == "" {
		host, err = gitctx.DetectHost(".")
		if err != nil {
			return exitcode.Wrap(exitcode.GitError, fmt.Errorf("cannot derive origin host (set --host): %w", err))
		}
		logger.Info("Origin host derived from git", logger.String("host", host))
	}

	headers := map[string]string{"User-Agent": buildinfo.UserAgent()}
	if cfg.Fetch.AllowlistKey != "" {
		headers[allowlistHeader] = cfg.Fetch.AllowlistKey
	}
	cache := fetch.NewCache(newHTTPFetcher(cfg.Fetch.Timeout), headers)

	pages, index, err := loadPages(ctx, cache, host, cfg.PagesIndexPath())
	if err != nil {
		return err
	}
	var channels []catalog.ChannelRecord
	if mode.catalog {
		if channels, err = loadChannels(ctx, cache, host, cfg.ChannelsIndexPath()); err != nil {
			return err
		}
	}

	classifier := mediapath.New(cfg.Media.Prefix, cfg.Media.Scene7Prefix, cfg.Hierarchy.Root)
	writer := output.NewOS(cfg.Output.Dir, output.Options{CatalogFile: cfg.Output.Catalog, Validate: cfg.Validate})
	composer := manifest.NewComposer(cache, index, manifest.ComposerOptions{
		AdaptiveRenditions: cfg.Renditions.Adaptive,
		Delivery: &manifest.ContentDelivery{
			Providers:       []manifest.Provider{{Name: cfg.Delivery.Provider, Endpoint: cfg.Delivery.Endpoint}},
			DefaultProvider: cfg.Delivery.Provider,
		},
		Classifier: classifier,
		Clock:      now,
	})

	opts := catalog.Options{
		Composer:    composer,
		Sink:        writer,
		Classifier:  classifier,
		Include:     cfg.Pages.Include,
		Exclude:     cfg.Pages.Exclude,
		Concurrency: cfg.Concurrency,
	}
	if mode.generate && cfg.Generate.Enabled {
		registry, err := newRegistry(cache, writer, cfg.Generate.Registry)
		if err != nil {
			return exitcode.Wrap(exitcode.ConfigError, err)
		}
		opts.Generator = registry
		if repo, err := gitctx.Open(cfg.Output.Dir); err == nil {
			opts.Detector = repo
		} else {
			logger.Warn("Output directory is not in a git checkout, generated pages use origin timestamps",
				logger.String("dir", cfg.Output.Dir), logger.Err(err))
		}
	}

	builder, err := catalog.NewBuilder(opts)
	if err != nil {
		return exitcode.Wrap(exitcode.ConfigError, err)
	}

	start := now()
	cat, report, err := builder.Build(ctx, host, pages, channels)
	if err != nil {
		return exitcode.Wrap(exitcode.GeneralError, err)
	}

	catalogFile := ""
	if mode.catalog {
		if catalogFile, err = writer.WriteCatalog(cat); err != nil {
			return exitcode.Wrap(exitcode.FileSystemError, fmt.Errorf("write catalog: %w", err))
		}
	}

	logger.Info("Synthesis complete",
		logger.Int("manifests", len(cat.Channels)),
		logger.Int("failed", len(report.Failed)),
		logger.Int("skipped", len(report.Skipped)),
		logger.Int("generated", len(report.Generated)),
		logger.Duration("elapsed", now().Sub(start)))
	stats := cache.Stats()
	logger.Debug("Fetch cache",
		logger.Int("requests", stats.Requests),
		logger.Int("hits", stats.Hits),
		logger.Int("misses", stats.Misses))
	printSummary(cmd.OutOrStdout(), cat, report, catalogFile)
	return nil
}

func newRegistry(cache *fetch.Cache, writer *output.Writer, registryFile string) (*generator.Registry, error) {
	var templates map[string]string
	if registryFile != "" {
		var err error
		if templates, err = generator.LoadTemplateMap(registryFile); err != nil {
			return nil, err
		}
	}
	return generator.NewRegistry(cache, writer, templates)
}

// loadPages fetches and decodes the page index. Rows that fail to parse are
// logged and left out; an unreachable or undecodable index fails the run.
func loadPages(ctx context.Context, cache *fetch.Cache, host, path string) ([]*manifest.PageData, manifest.Index, error) {
	raw, err := cache.Text(ctx, host, path)
	if err != nil {
		return nil, nil, exitcode.Wrap(exitcode.NetworkError, fmt.Errorf("fetch page index: %w", err))
	}
	records, err := sheet.Rows[manifest.PageRecord]([]byte(raw), "")
	if err != nil {
		return nil, nil, exitcode.Wrap(exitcode.ValidationError,
			&manifest.InvalidManifestData{Path: path, Reason: "page index", Err: err})
	}
	pages, index, errs := manifest.BuildIndex(records)
	for _, e := range errs {
		var pe *manifest.ParseError
		if errors.As(e, &pe) {
			logger.Warn("Page row skipped", logger.String("path", pe.Path), logger.String("field", pe.Field), logger.Err(pe.Err))
			continue
		}
		logger.Warn("Page row skipped", logger.Err(e))
	}
	logger.Debug("Page index loaded", logger.String("path", path), logger.Int("pages", len(pages)))
	return pages, index, nil
}

func loadChannels(ctx context.Context, cache *fetch.Cache, host, path string) ([]catalog.ChannelRecord, error) {
	raw, err := cache.Text(ctx, host, path)
	if err != nil {
		return nil, exitcode.Wrap(exitcode.NetworkError, fmt.Errorf("fetch channel metadata: %w", err))
	}
	records, err := sheet.Rows[catalog.ChannelRecord]([]byte(raw), "")
	if err != nil {
		return nil, exitcode.Wrap(exitcode.ValidationError,
			&manifest.InvalidManifestData{Path: path, Reason: "channel metadata", Err: err})
	}
	return records, nil
}

func printSummary(w io.Writer, cat *catalog.Catalog, report *catalog.Report, catalogFile string) {
	if catalogFile != "" {
		rows := make([][]string, 0, len(cat.Channels))
		for _, ch := range cat.Channels {
			rows = append(rows, []string{
				ch.ExternalID,
				ch.Title,
				strconv.Itoa(ch.Entries()),
				ch.LastModified.UTC().Format(time.RFC3339),
			})
		}
		fmt.Fprint(w, ascii.Table([]string{"EXTERNAL ID", "TITLE", "ENTRIES", "LAST MODIFIED"}, rows, 48))
		fmt.Fprintln(w)
	}

	lines := []string{fmt.Sprintf("Manifests written: %d", len(cat.Channels))}
	if catalogFile != "" {
		lines = append(lines, "Catalog: "+catalogFile)
	}
	if len(report.Generated) > 0 {
		lines = append(lines, fmt.Sprintf("Pages generated: %d", len(report.Generated)))
	}
	if len(report.Skipped) > 0 {
		lines = append(lines, fmt.Sprintf("Pages filtered: %d", len(report.Skipped)))
	}
	if len(report.Failed) > 0 {
		failed := make([]string, 0, len(report.Failed))
		for _, f := range report.Failed {
			failed = append(failed, f.Path)
		}
		sort.Strings(failed)
		lines = append(lines, fmt.Sprintf("Pages failed: %d", len(failed)))
		for _, p := range failed {
			lines = append(lines, "  "+p)
		}
	}
	fmt.Fprint(w, ascii.Box(lines))
}
