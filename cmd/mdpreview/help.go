package main

import (
	"fmt"
	"io"
)

// printUsage prints the full usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdpreview <file.md> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Watch a markdown file and keep an HTML preview of it up to date,")
	fmt.Fprintln(w, "re-rendering only the blocks that change.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  themes     List built-in themes")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show this message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Input/Output:")
	fmt.Fprintln(w, "  -o, --output <path>       Output HTML file (default: next to source)")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "      --once                Render once and exit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Page:")
	fmt.Fprintln(w, "  -t, --theme <name>        Theme name (see 'mdpreview themes')")
	fmt.Fprintln(w, "      --title <s>           Page title (\"\" = file name)")
	fmt.Fprintln(w, "      --asset-dir <path>    Custom asset directory")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Pipeline:")
	fmt.Fprintln(w, "  -w, --workers <n>         Render workers (0 = auto)")
	fmt.Fprintln(w, "      --cache-size <s>      Fragment cache budget (e.g. 64MiB)")
	fmt.Fprintln(w, "      --min-delay <d>       Debounce floor (e.g. 100ms)")
	fmt.Fprintln(w, "      --max-delay <d>       Debounce ceiling (e.g. 2s)")
	fmt.Fprintln(w, "      --watch-quiet <d>     Quiet window after external changes")
	fmt.Fprintln(w, "      --similarity <f>      Block match threshold (0-1)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output Control:")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Show debug detail and cache summary")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  MDPREVIEW_CONFIG, MDPREVIEW_THEME, MDPREVIEW_ASSET_DIR,")
	fmt.Fprintln(w, "  MDPREVIEW_OUTPUT_DIR, MDPREVIEW_CACHE_SIZE, MDPREVIEW_WORKERS")
}

// runHelp prints usage. The binary has a single command surface, so every
// help topic shows the same text.
func runHelp(w io.Writer) {
	printUsage(w)
}
