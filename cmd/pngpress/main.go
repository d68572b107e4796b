// Command pngpress compresses PNG files from the command line or serves the
// compressor over HTTP.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/leeforge/pngpress/config"
	"github.com/leeforge/pngpress/logging"
)

const usage = `usage: pngpress <command> [flags]

commands:
  serve      run the HTTP API
  compress   compress PNG files and store the results

run "pngpress <command> --help" for command flags
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "serve":
		err = serve(ctx, args[1:], stderr)
	case "compress":
		err = compressFiles(ctx, args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case err == pflag.ErrHelp:
		return 0
	case isUsageError(err):
		fmt.Fprintln(stderr, err)
		return 2
	default:
		fmt.Fprintln(stderr, "pngpress:", err)
		return 1
	}
}

type usageError struct{ error }

func isUsageError(err error) bool {
	_, ok := err.(usageError)
	return ok
}

// commonFlags are accepted by every command.
type commonFlags struct {
	configDir string
	logLevel  string
	workers   int
}

func newFlagSet(name string, stderr io.Writer, common *commonFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&common.configDir, "config", config.DefaultOptions().BasePath, "directory holding config.yaml and its variants")
	fs.StringVar(&common.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.IntVar(&common.workers, "workers", 0, "compression workers, 0 for one per CPU")
	return fs
}

// load reads the config, letting changed flags override file and
// environment values, and installs the global logger.
func load(fs *pflag.FlagSet, common *commonFlags, bindings map[string]string) (*config.App, logging.Logger, error) {
	opts := config.DefaultOptions()
	opts.BasePath = common.configDir

	loader, err := config.NewLoader(opts)
	if err != nil {
		return nil, nil, err
	}
	bindings["log.level"] = "log-level"
	bindings["pool.workers"] = "workers"
	for key, name := range bindings {
		loader.BindFlag(key, fs.Lookup(name))
	}

	app := &config.App{}
	if err := loader.Bind(app); err != nil {
		return nil, nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(app.Log)
	if err != nil {
		return nil, nil, err
	}
	logging.SetGlobal(logger)
	return app, logger, nil
}
