// Vainilla CLI - assemble, run, debug and serve Vainilla Machine programs
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	zerologbackend "github.com/tliron/commonlog/zerolog"
	"github.com/tliron/kutil/util"

	"github.com/chazu/vainilla/manifest"
)

var log = commonlog.GetLogger("vainilla")

// cli carries what every subcommand needs: the project manifest, the
// global flags and the standard streams.
type cli struct {
	manifest *manifest.Manifest
	stdin    *bufio.Reader // shared by READ and the debugger menu
	stdout   io.Writer
	stderr   io.Writer

	debug   bool
	trace   bool
	verbose bool
}

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	debug := flag.Bool("debug", false, "Step through the program with an interactive menu")
	trace := flag.Bool("trace", false, "Log every executed instruction (implies debug-level logging)")
	logPath := flag.String("log", "", "Write logs to this file instead of stderr")
	logFormat := flag.String("log-format", "text", "Log format: text or json")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vainilla [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run <file.vm|file.vmi>   Assemble (or load) and run a program\n")
		fmt.Fprintf(os.Stderr, "  run-stdin                Read a program from standard input and run it\n")
		fmt.Fprintf(os.Stderr, "  parse <file.vm>          Print the assembled instructions\n")
		fmt.Fprintf(os.Stderr, "  build [file.vm]          Assemble into a .vmi image\n")
		fmt.Fprintf(os.Stderr, "  store <subcommand>       Manage the image store (put, list, show, run, rm)\n")
		fmt.Fprintf(os.Stderr, "  serve                    Start the Connect/gRPC server\n")
		fmt.Fprintf(os.Stderr, "  lsp                      Start the language server on stdio\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  vainilla run countdown.vm\n")
		fmt.Fprintf(os.Stderr, "  vainilla -debug run countdown.vm\n")
		fmt.Fprintf(os.Stderr, "  cat countdown.vm | vainilla run-stdin\n")
		fmt.Fprintf(os.Stderr, "  vainilla build -store countdown.vm\n")
	}
	flag.Parse()

	if err := configureLogging(*verbose, *trace, *logPath, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		util.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		util.Exit(2)
	}

	m, err := loadManifest()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		util.Exit(1)
	}

	c := &cli{
		manifest: m,
		stdin:    bufio.NewReader(os.Stdin),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		debug:    *debug,
		trace:    *trace || m.Run.Trace,
		verbose:  *verbose,
	}

	if err := c.dispatch(args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		util.Exit(1)
	}
	util.Exit(0)
}

// dispatch runs one subcommand.
func (c *cli) dispatch(cmd string, args []string) error {
	log.Debugf("command %s %v", cmd, args)
	switch cmd {
	case "run":
		return c.runCommand(args)
	case "run-stdin":
		return c.runStdinCommand(args)
	case "parse":
		return c.parseCommand(args)
	case "build":
		return c.buildCommand(args)
	case "store":
		return c.storeCommand(args)
	case "serve":
		return c.serveCommand(args)
	case "lsp":
		return c.lspCommand(args)
	case "help":
		flag.Usage()
		return nil
	default:
		return fmt.Errorf("unknown command %q (see vainilla -h)", cmd)
	}
}

// configureLogging selects the commonlog backend and verbosity. Without
// -v only errors are logged.
func configureLogging(verbose, trace bool, path, format string) error {
	switch format {
	case "text":
	case "json":
		commonlog.SetBackend(zerologbackend.NewBackend())
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	verbosity := -2
	switch {
	case trace:
		verbosity = 2
	case verbose:
		verbosity = 1
	}

	var logFile *string
	if path != "" {
		logFile = &path
	}
	commonlog.Configure(verbosity, logFile)
	return nil
}

// loadManifest finds vainilla.toml above the working directory, or
// returns defaults rooted at the working directory.
func loadManifest() (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m != nil {
		log.Infof("using manifest %s/%s", m.Dir, manifest.FileName)
		return m, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return manifest.Default(wd), nil
}

// newFlagSet creates a subcommand flag set that reports errors instead of
// exiting.
func (c *cli) newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: vainilla %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}
