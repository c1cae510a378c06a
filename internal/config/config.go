package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alnah/go-mdpreview/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
)

// Field length limits so a hostile config file cannot balloon memory.
const (
	MaxThemeLength    = 100  // Theme name
	MaxTitleLength    = 200  // Page title
	MaxPathLength     = 4096 // Filesystem paths
	MaxSizeLength     = 30   // Humanized byte sizes ("64 MiB")
	MaxDurationLength = 30   // Go duration strings ("150ms")
	MaxLevelLength    = 10   // "debug", "info", "warn", "error"
	MaxFormatLength   = 10   // "text", "json"
)

// Config holds all configuration for the preview pipeline and CLI.
type Config struct {
	Preview PreviewConfig `yaml:"preview"`
	Render  RenderConfig  `yaml:"render"`
	Page    PageConfig    `yaml:"page"`
	Output  OutputConfig  `yaml:"output"`
	Assets  AssetsConfig  `yaml:"assets"`
	Log     LogConfig     `yaml:"log"`
}

// PreviewConfig tunes edit debouncing and file watching.
type PreviewConfig struct {
	MinDelay   string  `yaml:"minDelay"`   // Debounce floor, Go duration (empty = built-in default)
	MaxDelay   string  `yaml:"maxDelay"`   // Debounce ceiling, Go duration (empty = built-in default)
	WatchQuiet string  `yaml:"watchQuiet"` // Quiet window after external file changes
	Similarity float64 `yaml:"similarity"` // Block matching threshold, 0 = built-in default
}

// RenderConfig tunes the render worker pool and fragment cache.
type RenderConfig struct {
	Workers   int    `yaml:"workers"`   // Render workers (0 = derive from CPU count)
	CacheSize string `yaml:"cacheSize"` // Humanized byte size, e.g. "64 MiB" (empty = default)
}

// PageConfig defines how rendered fragments are assembled into a page.
type PageConfig struct {
	Theme string `yaml:"theme"` // Name of theme in internal/assets/styles/ (empty = default)
	Title string `yaml:"title"` // Page title (empty = derive from file name)
}

// OutputConfig defines output destination options.
type OutputConfig struct {
	DefaultDir string `yaml:"defaultDir"` // Default output directory (empty = same as source)
}

// AssetsConfig defines asset loading options.
type AssetsConfig struct {
	BasePath string `yaml:"basePath"` // Empty = use embedded assets
}

// LogConfig defines structured logging options.
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error" (empty = "info")
	Format string `yaml:"format"` // "text", "json" (empty = "text")
}

// MinDelayDuration parses the debounce floor. Zero means the pipeline
// default applies.
func (p *PreviewConfig) MinDelayDuration() (time.Duration, error) {
	return parseDuration("preview.minDelay", p.MinDelay)
}

// MaxDelayDuration parses the debounce ceiling. Zero means the pipeline
// default applies.
func (p *PreviewConfig) MaxDelayDuration() (time.Duration, error) {
	return parseDuration("preview.maxDelay", p.MaxDelay)
}

// WatchQuietDuration parses the quiet window for external file changes.
// Zero means the pipeline default applies.
func (p *PreviewConfig) WatchQuietDuration() (time.Duration, error) {
	return parseDuration("preview.watchQuiet", p.WatchQuiet)
}

// CacheBytes parses the humanized cache size. Zero means the pipeline
// default applies.
func (r *RenderConfig) CacheBytes() (uint64, error) {
	if r.CacheSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(r.CacheSize)
	if err != nil {
		return 0, fmt.Errorf("render.cacheSize: invalid size %q", r.CacheSize)
	}
	return n, nil
}

// Validate checks field lengths and value ranges. Called automatically by
// LoadConfig, but available for consumers who construct Config manually.
func (c *Config) Validate() error {
	// Validate preview fields
	if err := validateFieldLength("preview.minDelay", c.Preview.MinDelay, MaxDurationLength); err != nil {
		return err
	}
	if err := validateFieldLength("preview.maxDelay", c.Preview.MaxDelay, MaxDurationLength); err != nil {
		return err
	}
	if err := validateFieldLength("preview.watchQuiet", c.Preview.WatchQuiet, MaxDurationLength); err != nil {
		return err
	}
	minDelay, err := c.Preview.MinDelayDuration()
	if err != nil {
		return err
	}
	maxDelay, err := c.Preview.MaxDelayDuration()
	if err != nil {
		return err
	}
	if minDelay > 0 && maxDelay > 0 && minDelay > maxDelay {
		return fmt.Errorf("preview.minDelay: %s exceeds preview.maxDelay %s", c.Preview.MinDelay, c.Preview.MaxDelay)
	}
	if _, err := c.Preview.WatchQuietDuration(); err != nil {
		return err
	}
	if c.Preview.Similarity < 0 || c.Preview.Similarity > 1 {
		return fmt.Errorf("preview.similarity: must be between 0 and 1, got %.2f", c.Preview.Similarity)
	}

	// Validate render fields
	if c.Render.Workers < 0 || c.Render.Workers > 1024 {
		return fmt.Errorf("render.workers: must be between 0 and 1024, got %d", c.Render.Workers)
	}
	if err := validateFieldLength("render.cacheSize", c.Render.CacheSize, MaxSizeLength); err != nil {
		return err
	}
	if _, err := c.Render.CacheBytes(); err != nil {
		return err
	}

	// Validate page fields
	if err := validateFieldLength("page.theme", c.Page.Theme, MaxThemeLength); err != nil {
		return err
	}
	if err := validateFieldLength("page.title", c.Page.Title, MaxTitleLength); err != nil {
		return err
	}

	// Validate path fields
	if err := validateFieldLength("output.defaultDir", c.Output.DefaultDir, MaxPathLength); err != nil {
		return err
	}
	if err := validateFieldLength("assets.basePath", c.Assets.BasePath, MaxPathLength); err != nil {
		return err
	}

	// Validate log fields
	if err := validateFieldLength("log.level", c.Log.Level, MaxLevelLength); err != nil {
		return err
	}
	if c.Log.Level != "" {
		switch strings.ToLower(c.Log.Level) {
		case "debug", "info", "warn", "error":
			// valid
		default:
			return fmt.Errorf("log.level: invalid value %q (must be debug, info, warn, or error)", c.Log.Level)
		}
	}
	if err := validateFieldLength("log.format", c.Log.Format, MaxFormatLength); err != nil {
		return err
	}
	if c.Log.Format != "" {
		switch strings.ToLower(c.Log.Format) {
		case "text", "json":
			// valid
		default:
			return fmt.Errorf("log.format: invalid value %q (must be text or json)", c.Log.Format)
		}
	}

	return nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// parseDuration parses an optional duration field. Empty means unset.
func parseDuration(fieldName, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", fieldName, value)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %s", fieldName, value)
	}
	return d, nil
}

// DefaultConfig returns a neutral configuration where every pipeline
// default applies.
func DefaultConfig() *Config {
	return &Config{
		Preview: PreviewConfig{},
		Render:  RenderConfig{},
		Page:    PageConfig{Theme: ""},
		Output:  OutputConfig{DefaultDir: ""},
		Assets:  AssetsConfig{BasePath: ""},
		Log:     LogConfig{},
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if isFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// isFilePath returns true if the string looks like a file path.
func isFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/mdpreview/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2) // 2 locations

	// Try current directory first (both extensions)
	for _, ext := range extensions {
		localPath := name + ext
		if fileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	// Try user config directory (both extensions)
	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "mdpreview", name+ext)
			if fileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}

// fileExists returns true if the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
