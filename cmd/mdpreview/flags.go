package main

import (
	"os"

	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across modes.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
}

// pipelineFlags holds render pipeline tuning flags.
type pipelineFlags struct {
	workers    int
	cacheSize  string
	minDelay   string
	maxDelay   string
	watchQuiet string
	similarity float64
}

// pageFlags holds page assembly flags.
type pageFlags struct {
	theme    string
	title    string
	assetDir string
}

// previewFlags holds all flags for the preview command.
type previewFlags struct {
	common     commonFlags
	pipeline   pipelineFlags
	page       pageFlags
	output     string
	once       bool
	listThemes bool
	version    bool
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show debug detail and cache summary")
}

// addPipelineFlags adds pipeline tuning flags to a FlagSet.
func addPipelineFlags(fs *flag.FlagSet, f *pipelineFlags) {
	fs.IntVarP(&f.workers, "workers", "w", 0, "render workers (0 = auto)")
	fs.StringVar(&f.cacheSize, "cache-size", "", "fragment cache budget (e.g. 64MiB)")
	fs.StringVar(&f.minDelay, "min-delay", "", "debounce floor (e.g. 100ms)")
	fs.StringVar(&f.maxDelay, "max-delay", "", "debounce ceiling (e.g. 2s)")
	fs.StringVar(&f.watchQuiet, "watch-quiet", "", "quiet window after external changes")
	fs.Float64Var(&f.similarity, "similarity", 0, "block match threshold (0-1, 0 = default)")
}

// addPageFlags adds page assembly flags to a FlagSet.
func addPageFlags(fs *flag.FlagSet, f *pageFlags) {
	fs.StringVarP(&f.theme, "theme", "t", "", "theme name (see 'mdpreview themes')")
	fs.StringVar(&f.title, "title", "", "page title (\"\" = file name)")
	fs.StringVar(&f.assetDir, "asset-dir", "", "custom asset directory")
}

// parsePreviewFlags parses preview flags and returns positional args.
func parsePreviewFlags(args []string) (*previewFlags, []string, error) {
	fs := flag.NewFlagSet("mdpreview", flag.ContinueOnError)
	f := &previewFlags{}

	fs.StringVarP(&f.output, "output", "o", "", "output HTML file")
	fs.BoolVar(&f.once, "once", false, "render once and exit")
	fs.BoolVar(&f.listThemes, "list-themes", false, "list built-in themes and exit")
	fs.BoolVar(&f.version, "version", false, "show version and exit")

	addCommonFlags(fs, &f.common)
	addPipelineFlags(fs, &f.pipeline)
	addPageFlags(fs, &f.page)

	fs.Usage = func() { printUsage(os.Stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	return f, fs.Args(), nil
}
