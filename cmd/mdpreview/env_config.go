package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alnah/go-mdpreview/internal/config"
)

// envConfig holds configuration from environment variables.
// Provides CI/CD-friendly overrides without requiring YAML files.
type envConfig struct {
	ConfigPath string // MDPREVIEW_CONFIG: config file name or path
	Theme      string // MDPREVIEW_THEME: theme name
	AssetDir   string // MDPREVIEW_ASSET_DIR: custom asset directory
	OutputDir  string // MDPREVIEW_OUTPUT_DIR: default output directory
	CacheSize  string // MDPREVIEW_CACHE_SIZE: fragment cache budget
	Workers    int    // MDPREVIEW_WORKERS: render workers
}

// knownEnvVars lists valid MDPREVIEW_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	"MDPREVIEW_CONFIG":     true,
	"MDPREVIEW_THEME":      true,
	"MDPREVIEW_ASSET_DIR":  true,
	"MDPREVIEW_OUTPUT_DIR": true,
	"MDPREVIEW_CACHE_SIZE": true,
	"MDPREVIEW_WORKERS":    true,
}

// loadEnvConfig reads configuration from environment variables.
// Returns a struct with all recognized MDPREVIEW_* values.
func loadEnvConfig() *envConfig {
	cfg := &envConfig{
		ConfigPath: os.Getenv("MDPREVIEW_CONFIG"),
		Theme:      os.Getenv("MDPREVIEW_THEME"),
		AssetDir:   os.Getenv("MDPREVIEW_ASSET_DIR"),
		OutputDir:  os.Getenv("MDPREVIEW_OUTPUT_DIR"),
		CacheSize:  os.Getenv("MDPREVIEW_CACHE_SIZE"),
	}

	// Parse int for workers
	if workers := os.Getenv("MDPREVIEW_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Workers = w
		}
	}

	return cfg
}

// warnUnknownEnvVars logs warnings for unrecognized MDPREVIEW_* variables.
// Helps catch typos like MDPREVIEW_THEMES instead of MDPREVIEW_THEME.
func warnUnknownEnvVars(w io.Writer) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "MDPREVIEW_") {
			name := strings.SplitN(env, "=", 2)[0]
			if !knownEnvVars[name] {
				fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
			}
		}
	}
}

// applyEnvConfig applies environment variable values to config.
// Only sets values if the env var is set AND the config value is empty/zero.
// This ensures: CLI flags > env vars > config file > defaults
// (CLI flags are applied later via mergeFlags)
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	if env.Theme != "" && cfg.Page.Theme == "" {
		cfg.Page.Theme = env.Theme
	}
	if env.AssetDir != "" && cfg.Assets.BasePath == "" {
		cfg.Assets.BasePath = env.AssetDir
	}
	if env.OutputDir != "" && cfg.Output.DefaultDir == "" {
		cfg.Output.DefaultDir = env.OutputDir
	}
	if env.CacheSize != "" && cfg.Render.CacheSize == "" {
		cfg.Render.CacheSize = env.CacheSize
	}
	if env.Workers > 0 && cfg.Render.Workers == 0 {
		cfg.Render.Workers = env.Workers
	}
}
