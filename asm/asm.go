// Package asm translates Vainilla assembly source into a jump-resolved
// instruction sequence for the vm package.
//
// Source is line oriented: one instruction or label declaration per line,
// ';' starts a comment that runs to the end of the line, and blank lines
// are ignored. A label is an identifier followed by ':' on its own line
// and names the index of the next instruction.
package asm

import (
	"strings"
	"unicode"

	"github.com/tliron/commonlog"

	"github.com/chazu/vainilla/vm"
)

var log = commonlog.GetLogger("vainilla.asm")

// Line is a source line after comment stripping and trimming.
type Line struct {
	No   int    // 1-based source line number
	Col  int    // 1-based column where Text starts
	Text string // trimmed, comment-free content; never empty
}

// IsLabel reports whether the line declares a label.
func (l Line) IsLabel() bool {
	return strings.HasSuffix(l.Text, ":")
}

// Label returns the declared label name with trailing colons removed.
func (l Line) Label() string {
	return strings.TrimRight(l.Text, ":")
}

// Token is a whitespace-separated word of a Line.
type Token struct {
	Text string
	Col  int // 1-based column in the original source line
}

// Tokens splits the line on Unicode whitespace.
func (l Line) Tokens() []Token {
	var toks []Token
	start := -1
	for i, r := range l.Text {
		space := unicode.IsSpace(r)
		switch {
		case !space && start < 0:
			start = i
		case space && start >= 0:
			toks = append(toks, Token{Text: l.Text[start:i], Col: l.Col + start})
			start = -1
		}
	}
	if start >= 0 {
		toks = append(toks, Token{Text: l.Text[start:], Col: l.Col + start})
	}
	return toks
}

// Lines strips comments and whitespace from every source line and drops
// the lines left empty. Only the returned lines count toward instruction
// indices.
func Lines(source string) []Line {
	var lines []Line
	for i, raw := range strings.Split(source, "\n") {
		if pos := strings.IndexByte(raw, ';'); pos >= 0 {
			raw = raw[:pos]
		}
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		lines = append(lines, Line{
			No:   i + 1,
			Col:  strings.Index(raw, text) + 1,
			Text: text,
		})
	}
	return lines
}

// Assembler holds the per-source state of one assembly: the label table
// and the instruction buffer. Both are reset by every call to Assemble.
type Assembler struct {
	labels map[string]int
	prog   []vm.Instruction

	// When collect is set, errors are recorded in errs and assembly continues.
	collect bool
	errs    []*Error
}

// NewAssembler creates an Assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]int),
	}
}

// Assemble assembles source with a fresh Assembler.
func Assemble(source string) ([]vm.Instruction, error) {
	return NewAssembler().Assemble(source)
}

// Assemble translates source into an instruction sequence. It stops at the
// first error and returns no partial program.
func (a *Assembler) Assemble(source string) ([]vm.Instruction, error) {
	a.reset()
	lines := Lines(source)

	if err := a.pass1(lines); err != nil {
		return nil, err
	}
	if err := a.pass2(lines); err != nil {
		return nil, err
	}

	log.Debugf("assembled %d instructions, %d labels", len(a.prog), len(a.labels))
	prog := a.prog
	a.prog = nil
	return prog, nil
}

// Labels returns a copy of the label table built by the last Assemble.
func (a *Assembler) Labels() map[string]int {
	labels := make(map[string]int, len(a.labels))
	for name, idx := range a.labels {
		labels[name] = idx
	}
	return labels
}

func (a *Assembler) reset() {
	a.labels = make(map[string]int)
	a.prog = nil
	a.errs = nil
}

// fail records err in collect mode and otherwise returns it.
func (a *Assembler) fail(err *Error) error {
	if a.collect {
		a.errs = append(a.errs, err)
		return nil
	}
	return err
}

// pass1 maps every label to the index of the next instruction: its
// position among the kept lines minus the labels declared before it.
func (a *Assembler) pass1(lines []Line) error {
	seen := 0
	for pos, ln := range lines {
		if !ln.IsLabel() {
			continue
		}
		name := ln.Label()
		if _, exists := a.labels[name]; exists {
			if err := a.fail(&Error{Line: ln.No, Column: ln.Col, Token: name, Err: ErrDuplicateLabel}); err != nil {
				return err
			}
			seen++
			continue
		}
		a.labels[name] = pos - seen
		seen++
	}
	return nil
}

// pass2 decodes every non-label line into an instruction.
func (a *Assembler) pass2(lines []Line) error {
	for _, ln := range lines {
		if ln.IsLabel() {
			continue
		}
		instr, err := a.decode(ln)
		if err != nil {
			if err := a.fail(err); err != nil {
				return err
			}
			// Keep indices aligned for the remaining diagnostics.
			instr = vm.Simple(vm.OpAdd)
		}
		a.prog = append(a.prog, instr)
	}
	return nil
}

func (a *Assembler) decode(ln Line) (vm.Instruction, *Error) {
	toks := ln.Tokens()
	mnemonic := toks[0]

	op, ok := vm.LookupMnemonic(mnemonic.Text)
	if !ok {
		return vm.Instruction{}, &Error{Line: ln.No, Column: mnemonic.Col, Token: mnemonic.Text, Err: ErrUnknownInstruction}
	}

	kind := op.Operand()
	if kind == vm.OperandNone {
		return vm.Simple(op), nil
	}
	if len(toks) < 2 {
		return vm.Instruction{}, &Error{Line: ln.No, Column: mnemonic.Col, Token: mnemonic.Text, Err: ErrMissingOperand}
	}
	operand := toks[1]

	switch kind {
	case vm.OperandInt, vm.OperandFloat:
		f, err := vm.ParseFloat(operand.Text)
		if err != nil {
			return vm.Instruction{}, &Error{Line: ln.No, Column: operand.Col, Token: operand.Text, Err: ErrInvalidNumber}
		}
		if v := vm.NumberValue(f); v.IsInt() {
			return vm.LoadConstInt(v.Int()), nil
		}
		return vm.LoadConstFloat(f), nil

	case vm.OperandName:
		return vm.Instruction{Op: op, Name: operand.Text}, nil

	case vm.OperandTarget:
		target, ok := a.labels[operand.Text]
		if !ok {
			return vm.Instruction{}, &Error{Line: ln.No, Column: operand.Col, Token: operand.Text, Err: ErrLabelNotFound}
		}
		return vm.Jump(op, target), nil
	}

	return vm.Instruction{}, &Error{Line: ln.No, Column: mnemonic.Col, Token: mnemonic.Text, Err: ErrUnknownInstruction}
}
