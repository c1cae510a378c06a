package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	mdpreview "github.com/alnah/go-mdpreview"
	"github.com/alnah/go-mdpreview/internal/assets"
	"github.com/alnah/go-mdpreview/internal/config"
	"github.com/alnah/go-mdpreview/internal/fileutil"
	"github.com/alnah/go-mdpreview/internal/hints"
)

// Sentinel errors for CLI operations.
var (
	ErrNoInput          = errors.New("no input specified")
	ErrInvalidExtension = errors.New("file must have .md or .markdown extension")
	ErrWriteOutput      = errors.New("failed to write preview page")
)

// filePermissions applies to rendered pages: rw-r--r--.
const filePermissions = 0o644

// runPreview loads the document, starts the pipeline, and keeps the output
// page current until the context is canceled (or after one patch with --once).
func runPreview(ctx context.Context, positional []string, flags *previewFlags, env *Environment) error {
	cfg, err := loadConfiguration(flags, env)
	if err != nil {
		return err
	}

	logger := buildLogger(env.Stderr, cfg, &flags.common)

	inputPath, err := resolveInputPath(positional)
	if err != nil {
		return err
	}
	outputPath := resolveOutputPath(inputPath, flags.output, cfg)

	opts, err := buildPipelineOptions(cfg, logger)
	if err != nil {
		return err
	}

	p, err := mdpreview.NewPipeline(opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	builder, err := buildPage(inputPath, cfg)
	if err != nil {
		return err
	}
	// Relative image and link paths survive as-is when the page sits next to
	// the source; anywhere else they must be resolved against the source dir.
	if filepath.Clean(filepath.Dir(outputPath)) != filepath.Clean(filepath.Dir(inputPath)) {
		builder.SetBaseDir(filepath.Dir(inputPath))
	}

	p.OpenFile(inputPath)
	logger.Info("preview started", "input", inputPath, "output", outputPath)

	if err := previewLoop(ctx, p, builder, outputPath, flags.once, logger); err != nil {
		return err
	}

	if flags.common.verbose {
		printCacheSummary(env.Stderr, p.CacheStats())
	}
	return nil
}

// previewLoop consumes patches and events until the context ends. Every
// patch is folded into the builder and the whole page rewritten atomically,
// so readers of the output file never observe a half-written page.
func previewLoop(ctx context.Context, p *mdpreview.Pipeline, builder *mdpreview.PageBuilder, outputPath string, once bool, logger *slog.Logger) error {
	rendered := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case pt, ok := <-p.Patches():
			if !ok {
				return nil
			}
			builder.Apply(pt)
			page, err := builder.HTML()
			if err != nil {
				return err
			}
			if err := fileutil.WriteFileAtomic(outputPath, []byte(page), filePermissions); err != nil {
				return fmt.Errorf("%w: %v%s", ErrWriteOutput, err, hints.ForOutputDirectory())
			}
			rendered = true
			logger.Debug("page written",
				"path", outputPath,
				"generation", uint64(pt.Generation),
				"fragments", len(pt.Fragments))
			if once {
				return nil
			}
		case ev, ok := <-p.Events():
			if !ok {
				return nil
			}
			// Failures before anything rendered are setup failures: no
			// document to preview, or no watch to follow it with. Later
			// ones are transient and logged.
			if ioErr, isIO := ev.(mdpreview.IOError); isIO && !rendered {
				switch ioErr.Op {
				case "read":
					return ioErr.Err
				case "watch":
					if !once {
						return fmt.Errorf("%w%s", ioErr.Err, hints.ForWatchFailure())
					}
				}
			}
			logEvent(logger, ev)
		}
	}
}

// logEvent maps pipeline events onto log levels.
func logEvent(logger *slog.Logger, ev mdpreview.Event) {
	switch e := ev.(type) {
	case mdpreview.RenderStarted:
		logger.Debug("render cycle started", "generation", uint64(e.Generation))
	case mdpreview.RenderCompleted:
		logger.Debug("render cycle completed",
			"generation", uint64(e.Generation),
			"duration", e.Duration)
	case mdpreview.BlockRenderFailed:
		logger.Warn("block render failed", "block", uint64(e.ID), "err", e.Reason)
	case mdpreview.FileLoaded:
		logger.Info("document loaded", "path", e.Path)
	case mdpreview.FileSaved:
		logger.Info("document saved", "path", e.Path)
	case mdpreview.IOError:
		logger.Warn("io failure", "op", e.Op, "path", e.Path, "err", e.Err)
	}
}

// loadConfiguration resolves the effective config from file, environment,
// and flags. Precedence: CLI flags > env vars > config file > defaults.
func loadConfiguration(flags *previewFlags, env *Environment) (*config.Config, error) {
	envCfg := loadEnvConfig()
	if !flags.common.quiet {
		warnUnknownEnvVars(env.Stderr)
	}

	configName := flags.common.config
	if configName == "" {
		configName = envCfg.ConfigPath
	}

	cfg := env.Config
	if configName != "" {
		loaded, err := config.LoadConfig(configName)
		if err != nil {
			if errors.Is(err, config.ErrConfigNotFound) {
				return nil, fmt.Errorf("%w%s", err, hints.ForConfigNotFound(configSearchPaths(configName)))
			}
			return nil, err
		}
		cfg = loaded
	}

	applyEnvConfig(envCfg, cfg)
	mergeFlags(flags, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configSearchPaths mirrors the config loader's search order for hint text.
func configSearchPaths(name string) []string {
	paths := []string{name + ".yaml", name + ".yml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "mdpreview", name+".yaml"))
	}
	return paths
}

// mergeFlags merges CLI flags into config. CLI values override config values.
func mergeFlags(flags *previewFlags, cfg *config.Config) {
	if flags.pipeline.workers != 0 {
		cfg.Render.Workers = flags.pipeline.workers
	}
	if flags.pipeline.cacheSize != "" {
		cfg.Render.CacheSize = flags.pipeline.cacheSize
	}
	if flags.pipeline.minDelay != "" {
		cfg.Preview.MinDelay = flags.pipeline.minDelay
	}
	if flags.pipeline.maxDelay != "" {
		cfg.Preview.MaxDelay = flags.pipeline.maxDelay
	}
	if flags.pipeline.watchQuiet != "" {
		cfg.Preview.WatchQuiet = flags.pipeline.watchQuiet
	}
	if flags.pipeline.similarity != 0 {
		cfg.Preview.Similarity = flags.pipeline.similarity
	}
	if flags.page.theme != "" {
		cfg.Page.Theme = flags.page.theme
	}
	if flags.page.title != "" {
		cfg.Page.Title = flags.page.title
	}
	if flags.page.assetDir != "" {
		cfg.Assets.BasePath = flags.page.assetDir
	}
}

// buildLogger constructs the CLI logger from config and verbosity flags.
// --verbose and --quiet win over the config level.
func buildLogger(w io.Writer, cfg *config.Config, common *commonFlags) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if common.verbose {
		level = slog.LevelDebug
	}
	if common.quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// buildPipelineOptions translates the merged config into pipeline options.
func buildPipelineOptions(cfg *config.Config, logger *slog.Logger) ([]mdpreview.Option, error) {
	opts := []mdpreview.Option{mdpreview.WithLogger(logger)}

	if cfg.Render.Workers > 0 {
		opts = append(opts, mdpreview.WithWorkers(cfg.Render.Workers))
	}
	cacheBytes, err := cfg.Render.CacheBytes()
	if err != nil {
		return nil, err
	}
	if cacheBytes > 0 {
		opts = append(opts, mdpreview.WithCacheCapacity(int(cacheBytes)))
	}

	minDelay, err := cfg.Preview.MinDelayDuration()
	if err != nil {
		return nil, err
	}
	maxDelay, err := cfg.Preview.MaxDelayDuration()
	if err != nil {
		return nil, err
	}
	if minDelay > 0 || maxDelay > 0 {
		opts = append(opts, mdpreview.WithDelayBounds(minDelay, maxDelay))
	}

	quiet, err := cfg.Preview.WatchQuietDuration()
	if err != nil {
		return nil, err
	}
	if quiet > 0 {
		opts = append(opts, mdpreview.WithWatchQuiet(quiet))
	}
	if cfg.Preview.Similarity > 0 {
		opts = append(opts, mdpreview.WithSimilarityThreshold(cfg.Preview.Similarity))
	}

	return opts, nil
}

// resolveInputPath validates the positional document argument.
func resolveInputPath(args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrNoInput
	}
	path := args[0]
	if err := validateMarkdownExtension(path); err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInvalidExtension, path)
	}
	return path, nil
}

// validateMarkdownExtension checks that the file has a .md or .markdown extension.
func validateMarkdownExtension(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".md" && ext != ".markdown" {
		return fmt.Errorf("%w: %s", ErrInvalidExtension, path)
	}
	return nil
}

// resolveOutputPath determines where the rendered page goes.
// Priority: --output flag > config output.defaultDir > next to the source.
func resolveOutputPath(inputPath, flagOutput string, cfg *config.Config) string {
	if flagOutput != "" {
		return flagOutput
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath)) + ".html"
	if cfg.Output.DefaultDir != "" {
		return filepath.Join(cfg.Output.DefaultDir, base)
	}
	return filepath.Join(filepath.Dir(inputPath), base)
}

// buildPage constructs the page builder, defaulting the title to the file name.
func buildPage(inputPath string, cfg *config.Config) (*mdpreview.PageBuilder, error) {
	title := cfg.Page.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	}

	builder, err := mdpreview.NewPageBuilder(title, cfg.Page.Theme, cfg.Assets.BasePath)
	if err != nil {
		switch {
		case errors.Is(err, mdpreview.ErrInvalidTheme):
			return nil, fmt.Errorf("%w%s", err, hints.ForThemeNotFound(mdpreview.Themes()))
		case errors.Is(err, assets.ErrInvalidBasePath):
			return nil, fmt.Errorf("%w%s", err, hints.ForAssetDir())
		}
		return nil, err
	}
	return builder, nil
}

// runThemes lists the built-in themes.
func runThemes(w io.Writer) {
	for _, theme := range mdpreview.Themes() {
		fmt.Fprintln(w, theme)
	}
}

// printCacheSummary reports cache effectiveness once the loop ends.
func printCacheSummary(w io.Writer, stats mdpreview.CacheStats) {
	fmt.Fprintf(w, "cache: %d entries, %s, %.0f%% hit rate (%d hits, %d misses, %d evictions)\n",
		stats.Entries,
		humanize.IBytes(uint64(stats.Bytes)),
		stats.HitRate()*100,
		stats.Hits, stats.Misses, stats.Evictions)
}
