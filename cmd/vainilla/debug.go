package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chazu/vainilla/vm"
)

const debugMenu = `
Debugger options:
1. Step to next instruction
2. Run to the end
3. Show stack
4. Show variables
5. Quit
Select an option: `

// debugLoop drives machine from a numbered menu read from c.stdin. Runtime
// errors are reported and the session continues; end of input quits.
func (c *cli) debugLoop(machine *vm.VM) error {
	fmt.Fprintln(c.stdout, "Running program in debug mode...")
	for {
		fmt.Fprint(c.stdout, debugMenu)
		line, err := c.stdin.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(c.stdout)
			return nil
		}

		switch strings.TrimSpace(line) {
		case "1":
			fmt.Fprintf(c.stdout, "Current instruction: %s\n", describeCurrent(machine))
			if err := machine.Step(); err != nil {
				fmt.Fprintf(c.stdout, "Error: %v\n", err)
			}
			fmt.Fprintf(c.stdout, "Next instruction: %s\n", describeCurrent(machine))
		case "2":
			if err := machine.Run(); err != nil {
				fmt.Fprintf(c.stdout, "Error: %v\n", err)
			} else {
				fmt.Fprintln(c.stdout, "Program finished.")
			}
		case "3":
			fmt.Fprintln(c.stdout, "Stack contents:")
			printStack(c.stdout, machine.SnapshotStack())
		case "4":
			fmt.Fprintln(c.stdout, "Variables:")
			printVars(c.stdout, machine)
		case "5":
			fmt.Fprintln(c.stdout, "Exiting debugger.")
			return nil
		default:
			fmt.Fprintln(c.stdout, "Invalid option, please try again.")
		}
	}
}

func describeCurrent(machine *vm.VM) string {
	in, ok := machine.CurrentInstruction()
	if !ok {
		return "none (program finished)"
	}
	return fmt.Sprintf("%04d  %s", machine.IP(), in)
}

// printStack writes the stack bottom first.
func printStack(w io.Writer, stack []vm.Value) {
	fmt.Fprintf(w, "%-5s | %-10s\n", "Index", "Value")
	fmt.Fprintln(w, strings.Repeat("-", 21))
	for i, v := range stack {
		fmt.Fprintf(w, "%-5d | %-10s\n", i, v)
	}
}

// printVars writes variables sorted by name.
func printVars(w io.Writer, machine *vm.VM) {
	vars := machine.SnapshotVars()
	fmt.Fprintf(w, "%-10s | %-10s\n", "Variable", "Value")
	fmt.Fprintln(w, strings.Repeat("-", 26))
	for _, name := range machine.VarNames() {
		fmt.Fprintf(w, "%-10s | %-10s\n", name, vars[name])
	}
}
