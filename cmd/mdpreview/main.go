package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	os.Exit(runMain(os.Args, DefaultEnv()))
}

// runMain dispatches the command line and returns the process exit code.
func runMain(args []string, env *Environment) int {
	if len(args) > 1 {
		switch args[1] {
		case "version":
			fmt.Fprintln(env.Stdout, "mdpreview", Version)
			return ExitSuccess
		case "themes":
			runThemes(env.Stdout)
			return ExitSuccess
		case "help":
			runHelp(env.Stdout)
			return ExitSuccess
		}
	}

	flags, positional, err := parsePreviewFlags(args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		fmt.Fprintln(env.Stderr, err)
		return ExitUsage
	}
	if flags.version {
		fmt.Fprintln(env.Stdout, "mdpreview", Version)
		return ExitSuccess
	}
	if flags.listThemes {
		runThemes(env.Stdout)
		return ExitSuccess
	}
	if len(positional) == 0 {
		printUsage(env.Stderr)
		return ExitUsage
	}

	configureMaxprocs(flags.common.verbose, env.Stderr)

	ctx, stop := notifyContext(context.Background())
	defer stop()

	if err := runPreview(ctx, positional, flags, env); err != nil {
		fmt.Fprintln(env.Stderr, err)
		return exitCodeFor(err)
	}
	return ExitSuccess
}

// configureMaxprocs aligns GOMAXPROCS with container CPU quotas.
// Error ignored: maxprocs.Set only fails if the GOMAXPROCS env var is
// invalid, in which case Go runtime defaults apply and the program
// continues safely.
func configureMaxprocs(verbose bool, w io.Writer) {
	if verbose {
		_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
			fmt.Fprintf(w, format+"\n", args...)
		}))
	} else {
		_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))
	}
}
