package main

// Notes:
// - The end-to-end test drives runPreview with --once against a temp dir, so
//   it exercises the real pipeline, page builder, and atomic file write.
// - previewLoop's transient-vs-fatal IOError split is covered indirectly: a
//   missing input fails in resolveInputPath before the loop ever starts, and
//   simulating a read failure mid-loop would need racy file deletion.
// These are acceptable gaps: we test observable behavior, not implementation details.

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mdpreview "github.com/alnah/go-mdpreview"
	"github.com/alnah/go-mdpreview/internal/config"
)

// newTestEnv returns an Environment with buffered output and a fresh config,
// since runPreview mutates the config in place.
func newTestEnv() (*Environment, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	env := DefaultEnv()
	env.Stdout = &stdout
	env.Stderr = &stderr
	env.Config = config.DefaultConfig()
	return env, &stdout, &stderr
}

// ---------------------------------------------------------------------------
// TestResolveInputPath - Positional argument validation
// ---------------------------------------------------------------------------

func TestResolveInputPath(t *testing.T) {
	t.Parallel()

	t.Run("no arguments", func(t *testing.T) {
		t.Parallel()

		_, err := resolveInputPath(nil)
		if !errors.Is(err, ErrNoInput) {
			t.Errorf("error = %v, want ErrNoInput", err)
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		t.Parallel()

		_, err := resolveInputPath([]string{"notes.txt"})
		if !errors.Is(err, ErrInvalidExtension) {
			t.Errorf("error = %v, want ErrInvalidExtension", err)
		}
	})

	t.Run("nonexistent file", func(t *testing.T) {
		t.Parallel()

		_, err := resolveInputPath([]string{filepath.Join(t.TempDir(), "missing.md")})
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("error = %v, want wrapped os.ErrNotExist", err)
		}
	})

	t.Run("directory with markdown extension", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "docs.md")
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}

		_, err := resolveInputPath([]string{dir})
		if !errors.Is(err, ErrInvalidExtension) {
			t.Errorf("error = %v, want ErrInvalidExtension for directory", err)
		}
	})

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "notes.md")
		if err := os.WriteFile(path, []byte("# Hi\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		got, err := resolveInputPath([]string{path})
		if err != nil {
			t.Fatalf("resolveInputPath() error = %v", err)
		}
		if got != path {
			t.Errorf("path = %q, want %q", got, path)
		}
	})
}

// ---------------------------------------------------------------------------
// TestValidateMarkdownExtension - Extension rules
// ---------------------------------------------------------------------------

func TestValidateMarkdownExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"md extension", "notes.md", false},
		{"markdown extension", "notes.markdown", false},
		{"uppercase extension", "NOTES.MD", false},
		{"text file", "notes.txt", true},
		{"no extension", "notes", true},
		{"html file", "notes.html", true},
		{"md in directory name only", "docs.md/notes", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validateMarkdownExtension(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateMarkdownExtension(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidExtension) {
				t.Errorf("error = %v, want ErrInvalidExtension", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestResolveOutputPath - Output destination priority
// ---------------------------------------------------------------------------

func TestResolveOutputPath(t *testing.T) {
	t.Parallel()

	defaults := config.DefaultConfig()
	withDir := config.DefaultConfig()
	withDir.Output.DefaultDir = "/srv/previews"

	tests := []struct {
		name       string
		inputPath  string
		flagOutput string
		cfg        *config.Config
		want       string
	}{
		{"flag wins", "docs/notes.md", "custom.html", withDir, "custom.html"},
		{"config default dir", "docs/notes.md", "", withDir, filepath.Join("/srv/previews", "notes.html")},
		{"next to source", "docs/notes.md", "", defaults, filepath.Join("docs", "notes.html")},
		{"markdown extension stripped", "guide.markdown", "", defaults, "guide.html"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := resolveOutputPath(tt.inputPath, tt.flagOutput, tt.cfg)
			if got != tt.want {
				t.Errorf("resolveOutputPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestMergeFlags - CLI flags override config
// ---------------------------------------------------------------------------

func TestMergeFlags(t *testing.T) {
	t.Parallel()

	t.Run("set flags override config values", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Render.Workers = 2
		cfg.Page.Theme = "github"
		cfg.Preview.MinDelay = "100ms"

		flags := &previewFlags{}
		flags.pipeline.workers = 8
		flags.pipeline.cacheSize = "64MiB"
		flags.pipeline.minDelay = "50ms"
		flags.pipeline.similarity = 0.7
		flags.page.theme = "dark"
		flags.page.title = "Draft"
		flags.page.assetDir = "/srv/assets"

		mergeFlags(flags, cfg)

		if cfg.Render.Workers != 8 {
			t.Errorf("Workers = %d, want 8", cfg.Render.Workers)
		}
		if cfg.Render.CacheSize != "64MiB" {
			t.Errorf("CacheSize = %q, want 64MiB", cfg.Render.CacheSize)
		}
		if cfg.Preview.MinDelay != "50ms" {
			t.Errorf("MinDelay = %q, want 50ms", cfg.Preview.MinDelay)
		}
		if cfg.Preview.Similarity != 0.7 {
			t.Errorf("Similarity = %v, want 0.7", cfg.Preview.Similarity)
		}
		if cfg.Page.Theme != "dark" {
			t.Errorf("Theme = %q, want dark", cfg.Page.Theme)
		}
		if cfg.Page.Title != "Draft" {
			t.Errorf("Title = %q, want Draft", cfg.Page.Title)
		}
		if cfg.Assets.BasePath != "/srv/assets" {
			t.Errorf("BasePath = %q, want /srv/assets", cfg.Assets.BasePath)
		}
	})

	t.Run("zero flags leave config alone", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Render.Workers = 2
		cfg.Page.Theme = "github"

		mergeFlags(&previewFlags{}, cfg)

		if cfg.Render.Workers != 2 || cfg.Page.Theme != "github" {
			t.Errorf("config changed by empty flags: workers=%d theme=%q", cfg.Render.Workers, cfg.Page.Theme)
		}
	})
}

// ---------------------------------------------------------------------------
// TestBuildLogger - Level and format selection
// ---------------------------------------------------------------------------

func TestBuildLogger(t *testing.T) {
	t.Parallel()

	t.Run("default level hides debug", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := buildLogger(&buf, config.DefaultConfig(), &commonFlags{})

		logger.Debug("hidden")
		logger.Info("shown")

		if strings.Contains(buf.String(), "hidden") {
			t.Error("debug message leaked at default level")
		}
		if !strings.Contains(buf.String(), "shown") {
			t.Error("info message missing at default level")
		}
	})

	t.Run("config level debug", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Log.Level = "debug"

		var buf bytes.Buffer
		logger := buildLogger(&buf, cfg, &commonFlags{})

		logger.Debug("detail")
		if !strings.Contains(buf.String(), "detail") {
			t.Error("debug message missing when config level is debug")
		}
	})

	t.Run("verbose flag enables debug", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := buildLogger(&buf, config.DefaultConfig(), &commonFlags{verbose: true})

		logger.Debug("detail")
		if !strings.Contains(buf.String(), "detail") {
			t.Error("debug message missing with --verbose")
		}
	})

	t.Run("quiet wins over verbose", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := buildLogger(&buf, config.DefaultConfig(), &commonFlags{verbose: true, quiet: true})

		logger.Info("chatty")
		logger.Error("broken")

		if strings.Contains(buf.String(), "chatty") {
			t.Error("info message leaked with --quiet")
		}
		if !strings.Contains(buf.String(), "broken") {
			t.Error("error message missing with --quiet")
		}
	})

	t.Run("json format", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Log.Format = "json"

		var buf bytes.Buffer
		logger := buildLogger(&buf, cfg, &commonFlags{})

		logger.Info("structured")
		if !strings.Contains(buf.String(), `"msg":"structured"`) {
			t.Errorf("output %q is not JSON", buf.String())
		}
	})
}

// ---------------------------------------------------------------------------
// TestBuildPipelineOptions - Config to option translation
// ---------------------------------------------------------------------------

func TestBuildPipelineOptions(t *testing.T) {
	t.Parallel()

	logger := buildLogger(&bytes.Buffer{}, config.DefaultConfig(), &commonFlags{})

	t.Run("default config yields logger only", func(t *testing.T) {
		t.Parallel()

		opts, err := buildPipelineOptions(config.DefaultConfig(), logger)
		if err != nil {
			t.Fatalf("buildPipelineOptions() error = %v", err)
		}
		if len(opts) != 1 {
			t.Errorf("len(opts) = %d, want 1 (logger only)", len(opts))
		}
	})

	t.Run("full config yields all options", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Render.Workers = 4
		cfg.Render.CacheSize = "16MiB"
		cfg.Preview.MinDelay = "50ms"
		cfg.Preview.MaxDelay = "1s"
		cfg.Preview.WatchQuiet = "80ms"
		cfg.Preview.Similarity = 0.6

		opts, err := buildPipelineOptions(cfg, logger)
		if err != nil {
			t.Fatalf("buildPipelineOptions() error = %v", err)
		}
		// logger + workers + cache + delay bounds + watch quiet + similarity
		if len(opts) != 6 {
			t.Errorf("len(opts) = %d, want 6", len(opts))
		}
	})

	t.Run("options build a working pipeline", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Render.Workers = 2
		cfg.Preview.MinDelay = "20ms"
		cfg.Preview.MaxDelay = "20ms"

		opts, err := buildPipelineOptions(cfg, logger)
		if err != nil {
			t.Fatalf("buildPipelineOptions() error = %v", err)
		}

		p, err := mdpreview.NewPipeline(opts...)
		if err != nil {
			t.Fatalf("NewPipeline() error = %v", err)
		}
		if err := p.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	t.Run("bad cache size", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Render.CacheSize = "several"

		if _, err := buildPipelineOptions(cfg, logger); err == nil {
			t.Error("expected error for unparseable cache size")
		}
	})

	t.Run("bad delay", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Preview.MinDelay = "soon"

		if _, err := buildPipelineOptions(cfg, logger); err == nil {
			t.Error("expected error for unparseable delay")
		}
	})
}

// ---------------------------------------------------------------------------
// TestLoadConfiguration - File, env, and flag layering
// ---------------------------------------------------------------------------

func TestLoadConfiguration(t *testing.T) {
	t.Run("defaults without config file", func(t *testing.T) {
		env, _, _ := newTestEnv()

		cfg, err := loadConfiguration(&previewFlags{}, env)
		if err != nil {
			t.Fatalf("loadConfiguration() error = %v", err)
		}
		if cfg.Page.Theme != "" {
			t.Errorf("Theme = %q, want empty default", cfg.Page.Theme)
		}
	})

	t.Run("missing config file carries a hint", func(t *testing.T) {
		env, _, _ := newTestEnv()

		flags := &previewFlags{}
		flags.common.config = "definitely-not-a-real-config"

		_, err := loadConfiguration(flags, env)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Fatalf("error = %v, want ErrConfigNotFound", err)
		}
		if !strings.Contains(err.Error(), "hint:") {
			t.Errorf("error %q should carry a hint", err)
		}
	})

	t.Run("config file loaded from flag", func(t *testing.T) {
		env, _, _ := newTestEnv()

		path := filepath.Join(t.TempDir(), "preview.yaml")
		if err := os.WriteFile(path, []byte("page:\n  theme: dark\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		flags := &previewFlags{}
		flags.common.config = path

		cfg, err := loadConfiguration(flags, env)
		if err != nil {
			t.Fatalf("loadConfiguration() error = %v", err)
		}
		if cfg.Page.Theme != "dark" {
			t.Errorf("Theme = %q, want dark", cfg.Page.Theme)
		}
	})

	t.Run("env var names the config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "preview.yaml")
		if err := os.WriteFile(path, []byte("page:\n  title: From Env\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("MDPREVIEW_CONFIG", path)

		env, _, _ := newTestEnv()

		cfg, err := loadConfiguration(&previewFlags{}, env)
		if err != nil {
			t.Fatalf("loadConfiguration() error = %v", err)
		}
		if cfg.Page.Title != "From Env" {
			t.Errorf("Title = %q, want From Env", cfg.Page.Title)
		}
	})

	t.Run("flags override config file", func(t *testing.T) {
		env, _, _ := newTestEnv()

		path := filepath.Join(t.TempDir(), "preview.yaml")
		if err := os.WriteFile(path, []byte("page:\n  theme: dark\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		flags := &previewFlags{}
		flags.common.config = path
		flags.page.theme = "github"

		cfg, err := loadConfiguration(flags, env)
		if err != nil {
			t.Fatalf("loadConfiguration() error = %v", err)
		}
		if cfg.Page.Theme != "github" {
			t.Errorf("Theme = %q, want github (flag wins)", cfg.Page.Theme)
		}
	})

	t.Run("merged config is validated", func(t *testing.T) {
		env, _, _ := newTestEnv()

		flags := &previewFlags{}
		flags.pipeline.similarity = 1.5

		if _, err := loadConfiguration(flags, env); err == nil {
			t.Error("expected validation error for similarity 1.5")
		}
	})
}

// ---------------------------------------------------------------------------
// TestConfigSearchPaths - Hint path construction
// ---------------------------------------------------------------------------

func TestConfigSearchPaths(t *testing.T) {
	t.Parallel()

	paths := configSearchPaths("myconfig")
	if len(paths) < 2 {
		t.Fatalf("len(paths) = %d, want at least 2", len(paths))
	}
	if paths[0] != "myconfig.yaml" || paths[1] != "myconfig.yml" {
		t.Errorf("paths = %v, want myconfig.yaml and myconfig.yml first", paths)
	}
	for _, p := range paths[2:] {
		if !strings.Contains(p, "mdpreview") {
			t.Errorf("user config path %q should live under an mdpreview directory", p)
		}
	}
}

// ---------------------------------------------------------------------------
// TestBuildPage - Page builder construction and hints
// ---------------------------------------------------------------------------

func TestBuildPage(t *testing.T) {
	t.Parallel()

	t.Run("title defaults to file name", func(t *testing.T) {
		t.Parallel()

		builder, err := buildPage(filepath.Join("docs", "release-notes.md"), config.DefaultConfig())
		if err != nil {
			t.Fatalf("buildPage() error = %v", err)
		}

		page, err := builder.HTML()
		if err != nil {
			t.Fatalf("HTML() error = %v", err)
		}
		if !strings.Contains(page, "<title>release-notes</title>") {
			t.Error("page title should default to the file stem")
		}
	})

	t.Run("configured title wins", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Page.Title = "Release Notes"

		builder, err := buildPage("notes.md", cfg)
		if err != nil {
			t.Fatalf("buildPage() error = %v", err)
		}

		page, err := builder.HTML()
		if err != nil {
			t.Fatalf("HTML() error = %v", err)
		}
		if !strings.Contains(page, "<title>Release Notes</title>") {
			t.Error("configured title should appear in the page")
		}
	})

	t.Run("unknown theme lists available ones", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Page.Theme = "neon"

		_, err := buildPage("notes.md", cfg)
		if !errors.Is(err, mdpreview.ErrInvalidTheme) {
			t.Fatalf("error = %v, want ErrInvalidTheme", err)
		}
		if !strings.Contains(err.Error(), "available:") {
			t.Errorf("error %q should list available themes", err)
		}
	})

	t.Run("bad asset directory carries layout hint", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Assets.BasePath = filepath.Join(t.TempDir(), "nope")

		_, err := buildPage("notes.md", cfg)
		if err == nil {
			t.Fatal("expected error for missing asset directory")
		}
		if !strings.Contains(err.Error(), "styles/") {
			t.Errorf("error %q should describe the expected layout", err)
		}
	})
}

// ---------------------------------------------------------------------------
// TestRunPreview - End to end with --once
// ---------------------------------------------------------------------------

func TestRunPreview(t *testing.T) {
	t.Parallel()

	t.Run("no input", func(t *testing.T) {
		t.Parallel()

		env, _, _ := newTestEnv()

		err := runPreview(context.Background(), nil, &previewFlags{}, env)
		if !errors.Is(err, ErrNoInput) {
			t.Errorf("error = %v, want ErrNoInput", err)
		}
	})

	t.Run("renders a page once and exits", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		input := filepath.Join(dir, "sample.md")
		output := filepath.Join(dir, "out.html")
		source := "# Sample\n\nSome *text* here.\n\n```go\nfmt.Println(\"hi\")\n```\n"
		if err := os.WriteFile(input, []byte(source), 0o644); err != nil {
			t.Fatal(err)
		}

		env, _, _ := newTestEnv()
		flags := &previewFlags{once: true, output: output}
		flags.pipeline.minDelay = "20ms"
		flags.pipeline.maxDelay = "20ms"

		if err := runPreview(context.Background(), []string{input}, flags, env); err != nil {
			t.Fatalf("runPreview() error = %v", err)
		}

		page, err := os.ReadFile(output)
		if err != nil {
			t.Fatalf("reading output: %v", err)
		}
		html := string(page)
		for _, want := range []string{"<h1", "Sample", "<em>text</em>", "markdown-body", "<title>sample</title>"} {
			if !strings.Contains(html, want) {
				t.Errorf("output page missing %q", want)
			}
		}
	})

	t.Run("context cancellation stops the loop", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		input := filepath.Join(dir, "sample.md")
		if err := os.WriteFile(input, []byte("# Watching\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		env, _, _ := newTestEnv()
		flags := &previewFlags{output: filepath.Join(dir, "out.html")}
		flags.pipeline.minDelay = "20ms"
		flags.pipeline.maxDelay = "20ms"

		go func() {
			done <- runPreview(ctx, []string{input}, flags, env)
		}()

		cancel()
		if err := <-done; err != nil {
			t.Errorf("runPreview() after cancel = %v, want nil", err)
		}
	})

	t.Run("verbose prints cache summary", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		input := filepath.Join(dir, "sample.md")
		if err := os.WriteFile(input, []byte("# Stats\n\nBody.\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		env, _, stderr := newTestEnv()
		flags := &previewFlags{once: true, output: filepath.Join(dir, "out.html")}
		flags.common.verbose = true
		flags.pipeline.minDelay = "20ms"
		flags.pipeline.maxDelay = "20ms"

		if err := runPreview(context.Background(), []string{input}, flags, env); err != nil {
			t.Fatalf("runPreview() error = %v", err)
		}
		if !strings.Contains(stderr.String(), "hit rate") {
			t.Errorf("stderr %q should contain the cache summary", stderr.String())
		}
	})
}

// ---------------------------------------------------------------------------
// TestRunThemes / TestPrintCacheSummary - Small output helpers
// ---------------------------------------------------------------------------

func TestRunThemes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	runThemes(&buf)

	out := buf.String()
	for _, theme := range []string{"github", "dark"} {
		if !strings.Contains(out, theme) {
			t.Errorf("themes output %q missing %q", out, theme)
		}
	}
}

func TestPrintCacheSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printCacheSummary(&buf, mdpreview.CacheStats{
		Hits:    3,
		Misses:  1,
		Bytes:   2048,
		Entries: 2,
	})

	out := buf.String()
	if !strings.Contains(out, "2 entries") {
		t.Errorf("summary %q missing entry count", out)
	}
	if !strings.Contains(out, "75% hit rate") {
		t.Errorf("summary %q missing hit rate", out)
	}
	if !strings.Contains(out, "KiB") {
		t.Errorf("summary %q missing humanized size", out)
	}
}
