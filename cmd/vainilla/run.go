package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kr/pretty"

	"github.com/chazu/vainilla/asm"
	"github.com/chazu/vainilla/image"
	"github.com/chazu/vainilla/manifest"
	"github.com/chazu/vainilla/vm"
)

// SourceExtension is the required extension of assembly files.
const SourceExtension = ".vm"

var errNeedSource = errors.New("the input file must have a .vm extension")

// loadProgram assembles a .vm file or decodes a .vmi image.
func loadProgram(path string) ([]vm.Instruction, error) {
	switch filepath.Ext(path) {
	case SourceExtension:
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		prog, err := asm.Assemble(string(source))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return prog, nil
	case image.Extension:
		img, err := image.Load(path)
		if err != nil {
			return nil, err
		}
		log.Infof("loaded image %s (%s)", img.Hash.Short(), img.Name)
		return img.Instructions()
	default:
		return nil, fmt.Errorf("%w: %s", errNeedSource, path)
	}
}

// entryPath returns the first argument, or the manifest's entry program.
func (c *cli) entryPath(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if p := c.manifest.EntryPath(); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("no input file given and no [source] entry in %s", manifest.FileName)
}

// runCommand handles `vainilla run`.
func (c *cli) runCommand(args []string) error {
	fs := c.newFlagSet("run", "[options] <file.vm|file.vmi>")
	debug := fs.Bool("debug", c.debug, "Step through the program with an interactive menu")
	prompt := fs.String("prompt", c.manifest.Prompt(), "Text written before READ waits for input")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, err := c.entryPath(fs.Arg(0))
	if err != nil {
		return err
	}
	prog, err := loadProgram(path)
	if err != nil {
		return err
	}
	return c.execute(prog, *prompt, *debug)
}

// runStdinCommand handles `vainilla run-stdin`. The whole of stdin is the
// program, so READ sees end of input unless the debugger is driving.
func (c *cli) runStdinCommand(args []string) error {
	fs := c.newFlagSet("run-stdin", "[options] < program.vm")
	debug := fs.Bool("debug", c.debug, "Step through the program with an interactive menu")
	prompt := fs.String("prompt", c.manifest.Prompt(), "Text written before READ waits for input")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var source []byte
	var err error
	if *debug {
		// The debugger menu reads stdin too: the program ends at the
		// first blank line.
		source, err = c.readUntilBlank()
	} else {
		source, err = io.ReadAll(c.stdin)
	}
	if err != nil {
		return fmt.Errorf("cannot read program from stdin: %w", err)
	}

	prog, err := asm.Assemble(string(source))
	if err != nil {
		return err
	}
	return c.execute(prog, *prompt, *debug)
}

func (c *cli) readUntilBlank() ([]byte, error) {
	var source []byte
	for {
		line, err := c.stdin.ReadString('\n')
		if line == "\n" || line == "\r\n" {
			return source, nil
		}
		source = append(source, line...)
		if errors.Is(err, io.EOF) {
			return source, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// execute runs prog to completion or hands it to the debugger.
func (c *cli) execute(prog []vm.Instruction, prompt string, debug bool) error {
	machine := vm.New(prog,
		vm.WithInput(c.stdin),
		vm.WithOutput(c.stdout),
		vm.WithPrompt(prompt),
		vm.WithTrace(c.trace),
	)

	if debug {
		return c.debugLoop(machine)
	}

	if c.verbose {
		fmt.Fprintln(c.stderr, "Running program...")
	}
	if err := machine.Run(); err != nil {
		return err
	}
	log.Infof("program finished after %d steps", machine.Steps())
	return nil
}

// parseCommand handles `vainilla parse`: print the assembled program.
func (c *cli) parseCommand(args []string) error {
	fs := c.newFlagSet("parse", "[options] <file.vm>")
	raw := fs.Bool("raw", false, "Dump the decoded instruction structs")
	asSource := fs.Bool("source", false, "Print re-assemblable source with synthesized labels")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, err := c.entryPath(fs.Arg(0))
	if err != nil {
		return err
	}
	if filepath.Ext(path) != SourceExtension {
		return fmt.Errorf("%w: %s", errNeedSource, path)
	}
	prog, err := loadProgram(path)
	if err != nil {
		return err
	}

	switch {
	case *raw:
		pretty.Fprintf(c.stdout, "%# v\n", prog)
	case *asSource:
		name := filepath.Base(path)
		fmt.Fprint(c.stdout, vm.DisassembleWithName(prog, name))
	default:
		fmt.Fprint(c.stdout, vm.Listing(prog))
	}
	return nil
}
